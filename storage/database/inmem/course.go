package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	crs.ID = uuid.New().String()
	repo.db.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetCourseByCode(ctx context.Context, code string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, crs := range repo.db.courses {
		if crs.Code == code {
			return crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		courses = append(courses, crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	return courses, nil
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = a
	return a, nil
}

func (repo *courseRepository) GetAssignmentByID(ctx context.Context, id string) (course.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return a, nil
	}
	return course.Assignment{}, course.ErrAssignmentNotFound
}

func (repo *courseRepository) GetAssignmentBySlug(ctx context.Context, courseID, slug string) (course.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, a := range repo.db.assignments {
		if a.CourseID == courseID && a.Slug == slug {
			return a, nil
		}
	}
	return course.Assignment{}, course.ErrAssignmentNotFound
}

func (repo *courseRepository) QueryAssignments(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]course.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	assignments := make([]course.Assignment, 0)
	for _, a := range repo.db.assignments {
		if a.CourseID == courseID {
			assignments = append(assignments, a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].Deadline.Before(assignments[j].Deadline) })
	return assignments, nil
}

func (repo *courseRepository) CreateStudent(ctx context.Context, s course.Student) (course.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = uuid.New().String()
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *courseRepository) GetStudentByID(ctx context.Context, id string) (course.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return s, nil
	}
	return course.Student{}, course.ErrStudentNotFound
}

func (repo *courseRepository) GetStudentByUsername(ctx context.Context, courseID, username string) (course.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.students {
		if s.CourseID == courseID && s.Username == username {
			return s, nil
		}
	}
	return course.Student{}, course.ErrStudentNotFound
}

func (repo *courseRepository) GetStudentsByUsername(ctx context.Context, courseID string, usernames []string) ([]course.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(usernames))
	for _, uname := range usernames {
		wanted[uname] = true
	}
	students := make([]course.Student, 0, len(usernames))
	for _, s := range repo.db.students {
		if s.CourseID == courseID && wanted[s.Username] {
			students = append(students, s)
		}
	}
	return students, nil
}

func (repo *courseRepository) GetStudentsByID(ctx context.Context, ids []string) ([]course.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]course.Student, 0, len(ids))
	for _, id := range ids {
		if s, ok := repo.db.students[id]; ok {
			students = append(students, s)
		}
	}
	return students, nil
}

func (repo *courseRepository) QueryStudents(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]course.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]course.Student, 0)
	for _, s := range repo.db.students {
		if s.CourseID == courseID {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Username < students[j].Username })
	return students, nil
}

func (repo *courseRepository) UpdateStudent(ctx context.Context, s course.Student) (course.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[s.ID]; !ok {
		return course.Student{}, course.ErrStudentNotFound
	}
	repo.db.students[s.ID] = s
	return s, nil
}
