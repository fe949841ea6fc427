package validation

import (
	"context"
	"strings"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/observability/metrics"
)

// DefaultMaxAcademicTracks bounds how many tracks one profile may hold
const DefaultMaxAcademicTracks = 3

// StudentForm is the input of student create/update flows
type StudentForm struct {
	FullName         string   `json:"full_name"`
	StudentID        string   `json:"student_id"`
	NationalID       string   `json:"national_id,omitempty"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone,omitempty"`
	AcademicTrackIDs []string `json:"academic_track_ids"`
}

// LecturerForm is the input of lecturer create/update flows
type LecturerForm struct {
	FullName         string   `json:"full_name"`
	EmployeeID       string   `json:"employee_id"`
	NationalID       string   `json:"national_id,omitempty"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone,omitempty"`
	AcademicTrackIDs []string `json:"academic_track_ids"`
}

// CourseForm is the input of course create/update flows
type CourseForm struct {
	Name            string `json:"name"`
	Code            string `json:"code"`
	LecturerID      string `json:"lecturer_id"`
	AcademicTrackID string `json:"academic_track_id,omitempty"`
}

// FormValidator composes field validators with uniqueness checks.
// A field only reaches its uniqueness check once its shape is valid.
type FormValidator struct {
	checker   *UniquenessChecker
	maxTracks int
}

// NewFormValidator creates a form validator; a nil checker skips uniqueness checks
func NewFormValidator(checker *UniquenessChecker, maxTracks int) *FormValidator {
	if maxTracks <= 0 {
		maxTracks = DefaultMaxAcademicTracks
	}
	return &FormValidator{checker: checker, maxTracks: maxTracks}
}

// ValidateStudentForm validates every field of a student form, excluding excludeID from uniqueness scans
func (v *FormValidator) ValidateStudentForm(ctx context.Context, form StudentForm, excludeID string) FormResult {
	res := newFormResult()
	const coll = domain.CollectionStudents

	res.add("full_name", ValidateHebrewName(form.FullName))
	if res.add("student_id", ValidateStudentID(form.StudentID)) {
		res.add("student_id", v.unique(ctx, form.StudentID, "student_id", coll, excludeID))
	}
	if form.NationalID != "" && res.add("national_id", ValidateIsraeliID(form.NationalID)) {
		res.add("national_id", v.unique(ctx, form.NationalID, "national_id", coll, excludeID))
	}
	if res.add("email", ValidateEmail(form.Email)) {
		res.add("email", v.unique(ctx, form.Email, "email", coll, excludeID))
	}
	res.add("phone", ValidatePhone(form.Phone))
	res.add("academic_track_ids", v.validateTracks(form.AcademicTrackIDs, true))

	out := res.finish()
	metrics.ObserveFormValidation("student", out.IsValid)
	return out
}

// ValidateLecturerForm validates every field of a lecturer form
func (v *FormValidator) ValidateLecturerForm(ctx context.Context, form LecturerForm, excludeID string) FormResult {
	res := newFormResult()
	const coll = domain.CollectionLecturers

	res.add("full_name", ValidateHebrewName(form.FullName))
	if res.add("employee_id", ValidateEmployeeID(form.EmployeeID)) {
		res.add("employee_id", v.unique(ctx, strings.ToUpper(strings.TrimSpace(form.EmployeeID)), "employee_id", coll, excludeID))
	}
	if form.NationalID != "" && res.add("national_id", ValidateIsraeliID(form.NationalID)) {
		res.add("national_id", v.unique(ctx, form.NationalID, "national_id", coll, excludeID))
	}
	if res.add("email", ValidateEmail(form.Email)) {
		res.add("email", v.unique(ctx, form.Email, "email", coll, excludeID))
	}
	res.add("phone", ValidatePhone(form.Phone))
	res.add("academic_track_ids", v.validateTracks(form.AcademicTrackIDs, false))

	out := res.finish()
	metrics.ObserveFormValidation("lecturer", out.IsValid)
	return out
}

// ValidateCourseForm validates every field of a course form
func (v *FormValidator) ValidateCourseForm(ctx context.Context, form CourseForm, excludeID string) FormResult {
	res := newFormResult()

	res.add("name", ValidateRequired(form.Name, "שם הקורס", 2, 100))
	if res.add("code", ValidateCourseCode(form.Code)) {
		res.add("code", v.unique(ctx, strings.TrimSpace(form.Code), "code", domain.CollectionCourses, excludeID))
	}
	if strings.TrimSpace(form.LecturerID) == "" {
		res.add("lecturer_id", invalid("יש לבחור מרצה לקורס"))
	}

	out := res.finish()
	metrics.ObserveFormValidation("course", out.IsValid)
	return out
}

func (v *FormValidator) unique(ctx context.Context, value, field, collection, excludeID string) FieldResult {
	if v.checker == nil {
		return valid()
	}
	return v.checker.CheckUnique(ctx, value, field, collection, excludeID)
}

func (v *FormValidator) validateTracks(ids []string, required bool) FieldResult {
	if len(ids) == 0 {
		if required {
			return invalid("יש לבחור לפחות מסלול אקדמי אחד")
		}
		return valid()
	}
	if len(ids) > v.maxTracks {
		return invalidf("ניתן לבחור עד %d מסלולים אקדמיים", v.maxTracks)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid("מזהה מסלול אקדמי אינו תקין")
		}
		if seen[id] {
			return invalid("לא ניתן לבחור את אותו מסלול פעמיים")
		}
		seen[id] = true
	}
	return valid()
}
