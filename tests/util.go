package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	code string,
	policy course.ExtensionPolicy,
	defaultExtensions int,
) course.Course {
	t.Helper()

	now := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Code:              code,
		Name:              code,
		ExtensionPolicy:   policy,
		DefaultExtensions: defaultExtensions,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateAssignment(
	t *testing.T,
	repo course.Repository,
	courseID, slug string,
	deadline time.Time,
	grace time.Duration,
	minStudents, maxStudents int,
) course.Assignment {
	t.Helper()

	now := time.Now().UTC()
	a, err := repo.CreateAssignment(context.Background(), course.Assignment{
		CourseID:    courseID,
		Slug:        slug,
		Name:        slug,
		Deadline:    deadline.UTC(),
		GracePeriod: grace,
		MinStudents: minStudents,
		MaxStudents: maxStudents,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

func CreateStudent(
	t *testing.T,
	repo course.Repository,
	courseID, uname string,
	extensions int,
) course.Student {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateStudent(context.Background(), course.Student{
		CourseID:   courseID,
		Username:   uname,
		Name:       uname,
		Email:      uname + "@test.cd",
		Extensions: extensions,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// Logger discards everything; tests assert on returned errors instead.
type Logger struct{}

var _ core.Logger = (*Logger)(nil)

func (l Logger) Enable(bool)                  {}
func (l Logger) Debug(string, ...interface{}) {}
func (l Logger) Info(string, ...interface{})  {}
func (l Logger) Warn(string, ...interface{})  {}
func (l Logger) Error(string, ...interface{}) {}
func (l Logger) Fatal(string, ...interface{}) {}
