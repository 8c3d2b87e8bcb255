package course

import (
	"time"

	"github.com/trezcool/kazi/core"
)

// ExtensionPolicy controls whether extension balances are tracked on the team
// pool or on each member's individual balance.
type ExtensionPolicy string

const (
	PolicyPerTeam    ExtensionPolicy = "per_team"
	PolicyPerStudent ExtensionPolicy = "per_student"
)

func (p ExtensionPolicy) Valid() bool {
	return p == PolicyPerTeam || p == PolicyPerStudent
}

type Course struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	ExtensionPolicy   ExtensionPolicy `json:"extension_policy"`
	DefaultExtensions int             `json:"default_extensions"`
	CreatedAt         time.Time       `json:"created_at"` // UTC
	UpdatedAt         time.Time       `json:"updated_at"` // UTC
}

type Assignment struct {
	ID          string        `json:"id"`
	CourseID    string        `json:"course_id"`
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Deadline    time.Time     `json:"deadline"` // UTC
	GracePeriod time.Duration `json:"grace_period"`
	MinStudents int           `json:"min_students"`
	MaxStudents int           `json:"max_students"`
	CreatedAt   time.Time     `json:"created_at"` // UTC
	UpdatedAt   time.Time     `json:"updated_at"` // UTC
}

// Cutoff is the last instant a submission is accepted free of charge.
func (a Assignment) Cutoff() time.Time {
	return a.Deadline.Add(a.GracePeriod)
}

type Student struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Extensions int       `json:"extensions"`
	Dropped    bool      `json:"dropped"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code              string          `json:"code" validate:"required,min=2,alphanum_"`
	Name              string          `json:"name" validate:"required"`
	ExtensionPolicy   ExtensionPolicy `json:"extension_policy" validate:"required,extpolicy"`
	DefaultExtensions int             `json:"default_extensions" validate:"min=0"`
}

func (nc *NewCourse) Validate() error {
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	nc.Name = core.CleanString(nc.Name)
	return core.Validate.Struct(nc)
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	CourseID    string        `json:"course_id" validate:"required"`
	Slug        string        `json:"slug" validate:"required,min=2,alphanum_"`
	Name        string        `json:"name" validate:"required"`
	Deadline    time.Time     `json:"deadline" validate:"required"`
	GracePeriod time.Duration `json:"grace_period" validate:"min=0"`
	MinStudents int           `json:"min_students" validate:"min=1"`
	MaxStudents int           `json:"max_students" validate:"min=1,gtefield=MinStudents"`
}

func (na *NewAssignment) Validate() error {
	na.Slug = core.CleanString(na.Slug, true /* lower */)
	na.Name = core.CleanString(na.Name)
	return core.Validate.Struct(na)
}

// NewStudent contains information needed to enroll a Student in a Course.
type NewStudent struct {
	CourseID string `json:"course_id" validate:"required"`
	Username string `json:"username" validate:"required,min=2,alphanum_"`
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate() error {
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return core.Validate.Struct(ns)
}
