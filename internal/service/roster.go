package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/validation"
)

// RosterService performs validated writes of students, lecturers and courses.
// Nothing reaches the backend unless the matching form validates.
type RosterService struct {
	entities *entity.Client
	forms    *validation.FormValidator
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewRosterService(entities *entity.Client, forms *validation.FormValidator, auditLog *audit.Logger, logger *slog.Logger) *RosterService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &RosterService{entities: entities, forms: forms, audit: auditLog, logger: logger}
}

func (s *RosterService) CreateStudent(ctx context.Context, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.StudentForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateStudentForm(ctx, f, "")
	return s.create(ctx, s.entities.Students(), res, studentRecord(f))
}

func (s *RosterService) UpdateStudent(ctx context.Context, id string, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.StudentForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateStudentForm(ctx, f, id)
	return s.update(ctx, s.entities.Students(), id, res, studentRecord(f))
}

func (s *RosterService) DeleteStudent(ctx context.Context, id string) (bool, error) {
	return s.delete(ctx, s.entities.Students(), id)
}

func (s *RosterService) CreateLecturer(ctx context.Context, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.LecturerForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateLecturerForm(ctx, f, "")
	return s.create(ctx, s.entities.Lecturers(), res, lecturerRecord(f))
}

func (s *RosterService) UpdateLecturer(ctx context.Context, id string, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.LecturerForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateLecturerForm(ctx, f, id)
	return s.update(ctx, s.entities.Lecturers(), id, res, lecturerRecord(f))
}

func (s *RosterService) DeleteLecturer(ctx context.Context, id string) (bool, error) {
	return s.delete(ctx, s.entities.Lecturers(), id)
}

func (s *RosterService) CreateCourse(ctx context.Context, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.CourseForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateCourseForm(ctx, f, "")
	return s.create(ctx, s.entities.Courses(), res, courseRecord(f))
}

func (s *RosterService) UpdateCourse(ctx context.Context, id string, form domain.Record) (domain.Record, error) {
	f, err := domain.DecodeRecord[validation.CourseForm](form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	res := s.forms.ValidateCourseForm(ctx, f, id)
	return s.update(ctx, s.entities.Courses(), id, res, courseRecord(f))
}

func (s *RosterService) DeleteCourse(ctx context.Context, id string) (bool, error) {
	return s.delete(ctx, s.entities.Courses(), id)
}

// Validated reports whether collection has a form validated by this service
func Validated(collection string) bool {
	switch collection {
	case domain.CollectionStudents, domain.CollectionLecturers, domain.CollectionCourses:
		return true
	}
	return false
}

// Create dispatches a validated create by collection name
func (s *RosterService) Create(ctx context.Context, collection string, form domain.Record) (domain.Record, error) {
	switch collection {
	case domain.CollectionStudents:
		return s.CreateStudent(ctx, form)
	case domain.CollectionLecturers:
		return s.CreateLecturer(ctx, form)
	case domain.CollectionCourses:
		return s.CreateCourse(ctx, form)
	}
	return nil, fmt.Errorf("no form for collection %q", collection)
}

// Update dispatches a validated update by collection name
func (s *RosterService) Update(ctx context.Context, collection, id string, form domain.Record) (domain.Record, error) {
	switch collection {
	case domain.CollectionStudents:
		return s.UpdateStudent(ctx, id, form)
	case domain.CollectionLecturers:
		return s.UpdateLecturer(ctx, id, form)
	case domain.CollectionCourses:
		return s.UpdateCourse(ctx, id, form)
	}
	return nil, fmt.Errorf("no form for collection %q", collection)
}

func (s *RosterService) create(ctx context.Context, a *entity.Accessor, res validation.FormResult, rec domain.Record) (domain.Record, error) {
	actor := ActorFromContext(ctx)
	if err := res.Err(); err != nil {
		s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "create", a.Collection(), "", "rejected")
		return nil, err
	}
	out, err := a.Create(ctx, rec)
	if err != nil {
		s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "create", a.Collection(), "", "failure")
		return nil, err
	}
	s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "create", a.Collection(), out.ID(), "success")
	return out, nil
}

func (s *RosterService) update(ctx context.Context, a *entity.Accessor, id string, res validation.FormResult, rec domain.Record) (domain.Record, error) {
	actor := ActorFromContext(ctx)
	if err := res.Err(); err != nil {
		s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "update", a.Collection(), id, "rejected")
		return nil, err
	}
	out, ok, err := a.Update(ctx, id, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", a.Collection(), id, domain.ErrNotFound)
	}
	s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "update", a.Collection(), id, "success")
	return out, nil
}

func (s *RosterService) delete(ctx context.Context, a *entity.Accessor, id string) (bool, error) {
	actor := ActorFromContext(ctx)
	ok, err := a.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	status := "success"
	if !ok {
		status = "not_found"
	}
	s.audit.LogEntityChange(ctx, actor.UserID, string(actor.Role), "delete", a.Collection(), id, status)
	return ok, nil
}

func studentRecord(f validation.StudentForm) domain.Record {
	return domain.Record{
		"full_name":          f.FullName,
		"student_id":         strings.TrimSpace(f.StudentID),
		"national_id":        f.NationalID,
		"email":              strings.TrimSpace(f.Email),
		"phone":              strings.TrimSpace(f.Phone),
		"academic_track_ids": f.AcademicTrackIDs,
	}
}

func lecturerRecord(f validation.LecturerForm) domain.Record {
	tracks := f.AcademicTrackIDs
	if tracks == nil {
		tracks = []string{}
	}
	return domain.Record{
		"full_name":          f.FullName,
		"employee_id":        strings.ToUpper(strings.TrimSpace(f.EmployeeID)),
		"national_id":        f.NationalID,
		"email":              strings.TrimSpace(f.Email),
		"phone":              strings.TrimSpace(f.Phone),
		"academic_track_ids": tracks,
	}
}

func courseRecord(f validation.CourseForm) domain.Record {
	rec := domain.Record{
		"name":        strings.TrimSpace(f.Name),
		"code":        strings.TrimSpace(f.Code),
		"lecturer_id": f.LecturerID,
	}
	if f.AcademicTrackID != "" {
		rec["academic_track_id"] = f.AcademicTrackID
	}
	return rec
}
