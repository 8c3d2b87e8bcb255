package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/kazi/core"
)

var (
	// errors
	ErrNotFound           = errors.New("course not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrCourseExists       = errors.New("a course with this code already exists")
	ErrStudentExists      = errors.New("a student with this username is already enrolled")
)

// UnknownStudentError reports partner usernames that are not enrolled in the
// course (or have dropped it).
type UnknownStudentError struct {
	Usernames []string
}

func (e *UnknownStudentError) Error() string {
	return fmt.Sprintf("unknown students: %s", strings.Join(e.Usernames, ", "))
}

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		GetCourseByCode(ctx context.Context, code string) (Course, error)
		QueryAllCourses(ctx context.Context) ([]Course, error)

		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		GetAssignmentBySlug(ctx context.Context, courseID, slug string) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]Assignment, error)

		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		GetStudentByUsername(ctx context.Context, courseID, username string) (Student, error)
		// GetStudentsByUsername returns the found subset; callers detect gaps.
		GetStudentsByUsername(ctx context.Context, courseID string, usernames []string) ([]Student, error)
		GetStudentsByID(ctx context.Context, ids []string) ([]Student, error)
		QueryStudents(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
	}

	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		GetCourseByCode(ctx context.Context, code string) (Course, error)
		QueryCourses(ctx context.Context) ([]Course, error)

		CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error)

		Enroll(ctx context.Context, ns NewStudent) (Student, error)
		Drop(ctx context.Context, studentID string) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		GetStudents(ctx context.Context, ids []string) ([]Student, error)
		GetStudentByUsername(ctx context.Context, courseID, username string) (Student, error)
		QueryStudents(ctx context.Context, courseID string) ([]Student, error)
		// ResolveStudents maps usernames to enrolled, non-dropped students.
		// Missing or dropped usernames are reported in an UnknownStudentError.
		ResolveStudents(ctx context.Context, courseID string, usernames []string) ([]Student, error)
		GrantExtensions(ctx context.Context, studentID string, count int) (Student, error)
	}

	service struct {
		repo Repository
		log  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, log core.Logger) Service {
	return &service{repo: repo, log: log}
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if _, err := svc.repo.GetCourseByCode(ctx, nc.Code); err == nil {
		return Course{}, core.NewValidationError(ErrCourseExists, core.FieldError{Field: "code", Error: ErrCourseExists.Error()})
	} else if err != ErrNotFound {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Code:              nc.Code,
		Name:              nc.Name,
		ExtensionPolicy:   nc.ExtensionPolicy,
		DefaultExtensions: nc.DefaultExtensions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *service) GetCourseByCode(ctx context.Context, code string) (Course, error) {
	return svc.repo.GetCourseByCode(ctx, core.CleanString(code, true /* lower */))
}

func (svc *service) QueryCourses(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryAllCourses(ctx)
}

func (svc *service) CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	if _, err := svc.repo.GetCourseByID(ctx, na.CourseID); err != nil {
		return Assignment{}, err
	}

	now := time.Now().UTC()
	a := Assignment{
		CourseID:    na.CourseID,
		Slug:        na.Slug,
		Name:        na.Name,
		Deadline:    na.Deadline.UTC(),
		GracePeriod: na.GracePeriod,
		MinStudents: na.MinStudents,
		MaxStudents: na.MaxStudents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *service) QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, courseID, core.DBOrdering{Field: "deadline", Ascending: true})
}

// Enroll registers a student in the course. Under the per-student policy the
// course's default extension count is credited to their balance.
func (svc *service) Enroll(ctx context.Context, ns NewStudent) (Student, error) {
	crs, err := svc.repo.GetCourseByID(ctx, ns.CourseID)
	if err != nil {
		return Student{}, err
	}
	if _, err := svc.repo.GetStudentByUsername(ctx, crs.ID, ns.Username); err == nil {
		return Student{}, core.NewValidationError(ErrStudentExists, core.FieldError{Field: "username", Error: ErrStudentExists.Error()})
	} else if err != ErrStudentNotFound {
		return Student{}, err
	}

	var extensions int
	if crs.ExtensionPolicy == PolicyPerStudent {
		extensions = crs.DefaultExtensions
	}

	now := time.Now().UTC()
	s := Student{
		CourseID:   crs.ID,
		Username:   ns.Username,
		Name:       ns.Name,
		Email:      ns.Email,
		Extensions: extensions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateStudent(ctx, s)
}

// Drop marks the student as dropped. Their historical extension consumption is
// kept; they are excluded from future team formation and availability math.
func (svc *service) Drop(ctx context.Context, studentID string) (Student, error) {
	s, err := svc.repo.GetStudentByID(ctx, studentID)
	if err != nil {
		return Student{}, err
	}
	if s.Dropped {
		return s, nil
	}
	s.Dropped = true
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *service) GetStudents(ctx context.Context, ids []string) ([]Student, error) {
	return svc.repo.GetStudentsByID(ctx, ids)
}

func (svc *service) GetStudentByUsername(ctx context.Context, courseID, username string) (Student, error) {
	return svc.repo.GetStudentByUsername(ctx, courseID, core.CleanString(username, true /* lower */))
}

func (svc *service) QueryStudents(ctx context.Context, courseID string) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, courseID, core.DBOrdering{Field: "username", Ascending: true})
}

func (svc *service) ResolveStudents(ctx context.Context, courseID string, usernames []string) ([]Student, error) {
	cleaned := make([]string, 0, len(usernames))
	for _, uname := range usernames {
		cleaned = append(cleaned, core.CleanString(uname, true /* lower */))
	}

	students, err := svc.repo.GetStudentsByUsername(ctx, courseID, cleaned)
	if err != nil {
		return nil, err
	}

	found := make(map[string]Student, len(students))
	for _, s := range students {
		if !s.Dropped {
			found[s.Username] = s
		}
	}
	var missing []string
	resolved := make([]Student, 0, len(cleaned))
	for _, uname := range cleaned {
		s, ok := found[uname]
		if !ok {
			missing = append(missing, uname)
			continue
		}
		resolved = append(resolved, s)
	}
	if len(missing) > 0 {
		return nil, &UnknownStudentError{Usernames: missing}
	}
	return resolved, nil
}

func (svc *service) GrantExtensions(ctx context.Context, studentID string, count int) (Student, error) {
	s, err := svc.repo.GetStudentByID(ctx, studentID)
	if err != nil {
		return Student{}, err
	}
	if s.Extensions+count < 0 {
		return Student{}, core.NewValidationError(
			errors.New("grant would make the balance negative"),
			core.FieldError{Field: "count", Error: fmt.Sprintf("balance is %d", s.Extensions)},
		)
	}
	s.Extensions += count
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}
