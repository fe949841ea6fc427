package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/onoacademic/campusid/internal/domain"
)

func validStudentForm() StudentForm {
	return StudentForm{
		FullName:         "יהונתן כהן",
		StudentID:        "CS12345",
		NationalID:       "000000018",
		Email:            "y@x.com",
		AcademicTrackIDs: []string{"t1"},
	}
}

func TestValidateStudentFormValid(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{}}
	v := NewFormValidator(NewUniquenessChecker(src, FailOpen, nil), 0)

	res := v.ValidateStudentForm(context.Background(), validStudentForm(), "")
	if !res.IsValid || len(res.Errors) != 0 {
		t.Fatalf("expected valid form, got %+v", res)
	}
	if res.Err() != nil {
		t.Fatalf("valid result must not produce an error, got %v", res.Err())
	}
}

func TestValidateStudentFormBadChecksumSkipsUniqueness(t *testing.T) {
	form := validStudentForm()
	form.NationalID = "123456789"
	form.StudentID = "1"
	form.Email = "bad"
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionStudents: {{"id": "s1", "national_id": "123456789"}},
	}}
	v := NewFormValidator(NewUniquenessChecker(src, FailOpen, nil), 0)

	res := v.ValidateStudentForm(context.Background(), form, "")
	if res.IsValid {
		t.Fatal("expected invalid form")
	}
	if _, ok := res.Errors["national_id"]; !ok {
		t.Fatalf("expected national_id error, got %v", res.Errors)
	}
	if src.calls != 0 {
		t.Fatalf("malformed fields must never reach a uniqueness check, got %d reads", src.calls)
	}
	if len(res.Conflicts()) != 0 {
		t.Fatalf("shape failures are not conflicts, got %v", res.Conflicts())
	}
}

func TestValidateStudentFormReportsEveryField(t *testing.T) {
	v := NewFormValidator(nil, 0)
	res := v.ValidateStudentForm(context.Background(), StudentForm{
		FullName: "John",
		Phone:    "123",
	}, "")
	for _, field := range []string{"full_name", "student_id", "email", "phone", "academic_track_ids"} {
		if _, ok := res.Errors[field]; !ok {
			t.Errorf("missing error for %s in %v", field, res.Errors)
		}
	}
	if _, ok := res.Errors["national_id"]; ok {
		t.Error("an absent optional national_id must not fail")
	}
}

func TestValidateStudentFormDuplicateNationalID(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionStudents: {{"id": "s1", "national_id": "000000018", "email": "other@x.com", "student_id": "CS99999"}},
	}}
	v := NewFormValidator(NewUniquenessChecker(src, FailOpen, nil), 0)

	res := v.ValidateStudentForm(context.Background(), validStudentForm(), "")
	if res.IsValid {
		t.Fatal("expected duplicate national id to be rejected")
	}
	if got := res.Conflicts(); len(got) != 1 || got[0] != "national_id" {
		t.Fatalf("unexpected conflicts %v", got)
	}
	err := res.Err()
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, domain.ErrUniquenessConflict) {
		t.Fatalf("expected validation and conflict sentinels, got %v", err)
	}

	if res := v.ValidateStudentForm(context.Background(), validStudentForm(), "s1"); !res.IsValid {
		t.Fatalf("updating the same record must pass, got %v", res.Errors)
	}
}

func TestValidateStudentFormTracks(t *testing.T) {
	v := NewFormValidator(nil, 2)
	cases := map[string][]string{
		"too many":  {"t1", "t2", "t3"},
		"duplicate": {"t1", "t1"},
		"blank":     {"t1", " "},
		"empty":     nil,
	}
	for name, tracks := range cases {
		form := validStudentForm()
		form.AcademicTrackIDs = tracks
		if res := v.ValidateStudentForm(context.Background(), form, ""); res.IsValid {
			t.Errorf("%s: expected academic_track_ids error", name)
		}
	}
}

func TestValidateLecturerForm(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionLecturers: {{"id": "l1", "employee_id": "EMP1234", "email": "moshe@ono.ac.il"}},
	}}
	v := NewFormValidator(NewUniquenessChecker(src, FailOpen, nil), 0)
	form := LecturerForm{FullName: "משה לוי", EmployeeID: "emp1234", Email: "new@ono.ac.il"}

	res := v.ValidateLecturerForm(context.Background(), form, "")
	if _, ok := res.Errors["employee_id"]; !ok {
		t.Fatalf("expected employee_id conflict after upper-casing, got %v", res.Errors)
	}

	form.EmployeeID = "EMP5678"
	if res := v.ValidateLecturerForm(context.Background(), form, ""); !res.IsValid {
		t.Fatalf("expected valid lecturer form, got %v", res.Errors)
	}
}

func TestValidateCourseForm(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionCourses: {{"id": "c1", "code": "CS101"}},
	}}
	v := NewFormValidator(NewUniquenessChecker(src, FailOpen, nil), 0)

	res := v.ValidateCourseForm(context.Background(), CourseForm{Name: "מבוא למדעי המחשב", Code: "CS101"}, "")
	if _, ok := res.Errors["code"]; !ok {
		t.Fatalf("expected code conflict, got %v", res.Errors)
	}
	if _, ok := res.Errors["lecturer_id"]; !ok {
		t.Fatalf("expected lecturer_id error, got %v", res.Errors)
	}

	res = v.ValidateCourseForm(context.Background(), CourseForm{Name: "מבני נתונים", Code: "CS102", LecturerID: "l1"}, "")
	if !res.IsValid {
		t.Fatalf("expected valid course form, got %v", res.Errors)
	}
}

func TestFormErrorMessageIsSorted(t *testing.T) {
	err := (&FormError{Errors: map[string]string{"phone": "p", "email": "e"}}).Error()
	if err != "validation failed: email: e; phone: p" {
		t.Fatalf("unexpected message %q", err)
	}
}
