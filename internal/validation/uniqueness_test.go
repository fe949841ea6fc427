package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/onoacademic/campusid/internal/domain"
)

// fakeSource serves fixed records per collection and counts reads
type fakeSource struct {
	records map[string][]domain.Record
	err     error
	calls   int
}

func (f *fakeSource) ListCollection(_ context.Context, collection string) ([]domain.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[collection], nil
}

func TestCheckUniqueDetectsConflict(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionStudents: {{"id": "s1", "national_id": "000000018"}},
	}}
	c := NewUniquenessChecker(src, FailOpen, nil)

	res := c.CheckUnique(context.Background(), "000000018", "national_id", domain.CollectionStudents, "")
	if res.IsValid || !res.IsConflict() {
		t.Fatalf("expected conflict, got %+v", res)
	}
	if res.Error == "" {
		t.Fatal("expected a user-facing message")
	}
}

func TestCheckUniqueExcludesOwnRecord(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionStudents: {{"id": "s1", "student_id": "CS12345"}},
	}}
	c := NewUniquenessChecker(src, FailOpen, nil)

	if res := c.CheckUnique(context.Background(), "CS12345", "student_id", domain.CollectionStudents, "s1"); !res.IsValid {
		t.Fatalf("a record must not conflict with itself, got %+v", res)
	}
}

func TestCheckUniqueEmailIsCaseInsensitive(t *testing.T) {
	src := &fakeSource{records: map[string][]domain.Record{
		domain.CollectionLecturers: {{"id": "l1", "email": "Moshe@Ono.ac.il"}},
	}}
	c := NewUniquenessChecker(src, FailOpen, nil)

	if res := c.CheckUnique(context.Background(), "moshe@ono.ac.il", "email", domain.CollectionLecturers, ""); res.IsValid {
		t.Fatal("expected case-insensitive email conflict")
	}
	src.records[domain.CollectionLecturers] = []domain.Record{{"id": "l1", "employee_id": "emp1234"}}
	if res := c.CheckUnique(context.Background(), "EMP1234", "employee_id", domain.CollectionLecturers, ""); !res.IsValid {
		t.Fatal("non-email fields compare exactly")
	}
}

func TestCheckUniqueEmptyValueSkipsRead(t *testing.T) {
	src := &fakeSource{}
	c := NewUniquenessChecker(src, FailClosed, nil)
	if res := c.CheckUnique(context.Background(), "  ", "national_id", domain.CollectionStudents, ""); !res.IsValid {
		t.Fatal("empty values are never conflicts")
	}
	if src.calls != 0 {
		t.Fatal("empty values must not hit the backend")
	}
}

func TestCheckUniqueFailsOpenOnBackendError(t *testing.T) {
	src := &fakeSource{err: domain.ErrBackendUnavailable}
	c := NewUniquenessChecker(src, FailOpen, nil)

	res := c.CheckUnique(context.Background(), "000000018", "national_id", domain.CollectionStudents, "")
	if !res.IsValid {
		t.Fatalf("fail-open policy must treat an unreadable backend as unique, got %+v", res)
	}
}

func TestCheckUniqueFailsClosedOnBackendError(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	c := NewUniquenessChecker(src, FailClosed, nil)

	res := c.CheckUnique(context.Background(), "000000018", "national_id", domain.CollectionStudents, "")
	if res.IsValid || res.IsConflict() {
		t.Fatalf("fail-closed policy must reject without reporting a conflict, got %+v", res)
	}
	if c.Policy().String() != "fail_closed" {
		t.Fatalf("unexpected policy name %s", c.Policy())
	}
}
