package domain

import "time"

// Collection names shared by every persistence backend
const (
	CollectionUsers          = "users"
	CollectionStudents       = "students"
	CollectionLecturers      = "lecturers"
	CollectionCourses        = "courses"
	CollectionFiles          = "files"
	CollectionMessages       = "messages"
	CollectionNotifications  = "notifications"
	CollectionAcademicTracks = "academic_tracks"
)

// Collections lists every collection the entity layer exposes
var Collections = []string{
	CollectionUsers,
	CollectionStudents,
	CollectionLecturers,
	CollectionCourses,
	CollectionFiles,
	CollectionMessages,
	CollectionNotifications,
	CollectionAcademicTracks,
}

// ProfileCollection returns the collection holding role-specific profiles
func ProfileCollection(r Role) (string, bool) {
	switch r {
	case RoleStudent:
		return CollectionStudents, true
	case RoleLecturer:
		return CollectionLecturers, true
	default:
		return "", false
	}
}

// Student is the role profile of a student, linked to a User by email
type Student struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	StudentID        string    `json:"student_id"`
	NationalID       string    `json:"national_id,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	AcademicTrackIDs []string  `json:"academic_track_ids"`
	CreatedDate      time.Time `json:"created_date,omitzero"`
	UpdatedDate      time.Time `json:"updated_date,omitzero"`
}

// Lecturer is the role profile of a lecturer, linked to a User by email
type Lecturer struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	EmployeeID       string    `json:"employee_id"`
	NationalID       string    `json:"national_id,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	AcademicTrackIDs []string  `json:"academic_track_ids"`
	CreatedDate      time.Time `json:"created_date,omitzero"`
	UpdatedDate      time.Time `json:"updated_date,omitzero"`
}

// Course is a course offered by a lecturer
type Course struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	LecturerID      string    `json:"lecturer_id"`
	AcademicTrackID string    `json:"academic_track_id,omitempty"`
	CreatedDate     time.Time `json:"created_date,omitzero"`
	UpdatedDate     time.Time `json:"updated_date,omitzero"`
}
