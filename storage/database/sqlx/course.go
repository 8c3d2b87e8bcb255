package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type (
	courseRow struct {
		ID                string    `db:"id"`
		Code              string    `db:"code"`
		Name              string    `db:"name"`
		ExtensionPolicy   string    `db:"extension_policy"`
		DefaultExtensions int       `db:"default_extensions"`
		CreatedAt         null.Time `db:"created_at"`
		UpdatedAt         null.Time `db:"updated_at"`
	}

	assignmentRow struct {
		ID          string    `db:"id"`
		CourseID    string    `db:"course_id"`
		Slug        string    `db:"slug"`
		Name        string    `db:"name"`
		Deadline    time.Time `db:"deadline"`
		GracePeriod int64     `db:"grace_period"` // seconds
		MinStudents int       `db:"min_students"`
		MaxStudents int       `db:"max_students"`
		CreatedAt   null.Time `db:"created_at"`
		UpdatedAt   null.Time `db:"updated_at"`
	}

	studentRow struct {
		ID         string      `db:"id"`
		CourseID   string      `db:"course_id"`
		Username   string      `db:"username"`
		Name       null.String `db:"name"`
		Email      null.String `db:"email"`
		Extensions int         `db:"extensions"`
		Dropped    bool        `db:"dropped"`
		CreatedAt  null.Time   `db:"created_at"`
		UpdatedAt  null.Time   `db:"updated_at"`
	}
)

func (repo courseRepository) unrowCourse(r courseRow) course.Course {
	return course.Course{
		ID:                r.ID,
		Code:              r.Code,
		Name:              r.Name,
		ExtensionPolicy:   course.ExtensionPolicy(r.ExtensionPolicy),
		DefaultExtensions: r.DefaultExtensions,
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}
}

func (repo courseRepository) unrowAssignment(r assignmentRow) course.Assignment {
	return course.Assignment{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Slug:        r.Slug,
		Name:        r.Name,
		Deadline:    r.Deadline.UTC(),
		GracePeriod: time.Duration(r.GracePeriod) * time.Second,
		MinStudents: r.MinStudents,
		MaxStudents: r.MaxStudents,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
}

func (repo courseRepository) unrowStudent(r studentRow) course.Student {
	return course.Student{
		ID:         r.ID,
		CourseID:   r.CourseID,
		Username:   r.Username,
		Name:       r.Name.String,
		Email:      r.Email.String,
		Extensions: r.Extensions,
		Dropped:    r.Dropped,
		CreatedAt:  r.CreatedAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
}

func (repo courseRepository) unrowStudents(rows []studentRow) []course.Student {
	students := make([]course.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, repo.unrowStudent(r))
	}
	return students
}

func trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	query := `INSERT INTO course (id, code, name, extension_policy, default_extensions, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query,
		crs.ID, crs.Code, crs.Name, string(crs.ExtensionPolicy), crs.DefaultExtensions, crs.CreatedAt.UTC(), crs.UpdatedAt.UTC())
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var r courseRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course by id")
	}
	return repo.unrowCourse(r), nil
}

func (repo courseRepository) GetCourseByCode(ctx context.Context, code string) (course.Course, error) {
	var r courseRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM course WHERE code = $1`, code); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course by code")
	}
	return repo.unrowCourse(r), nil
}

func (repo courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM course ORDER BY code`); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, repo.unrowCourse(r))
	}
	return courses, nil
}

func (repo courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	a.ID = uuid.New().String()
	query := `INSERT INTO assignment (id, course_id, slug, name, deadline, grace_period, min_students, max_students, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, query,
		a.ID, a.CourseID, a.Slug, a.Name, a.Deadline.UTC(), int64(a.GracePeriod/time.Second),
		a.MinStudents, a.MaxStudents, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo courseRepository) GetAssignmentByID(ctx context.Context, id string) (course.Assignment, error) {
	var r assignmentRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return course.Assignment{}, trapNoRowsErr(err, course.ErrAssignmentNotFound, "getting assignment by id")
	}
	return repo.unrowAssignment(r), nil
}

func (repo courseRepository) GetAssignmentBySlug(ctx context.Context, courseID, slug string) (course.Assignment, error) {
	var r assignmentRow
	query := `SELECT * FROM assignment WHERE course_id = $1 AND slug = $2`
	if err := repo.db.GetContext(ctx, &r, query, courseID, slug); err != nil {
		return course.Assignment{}, trapNoRowsErr(err, course.ErrAssignmentNotFound, "getting assignment by slug")
	}
	return repo.unrowAssignment(r), nil
}

func (repo courseRepository) QueryAssignments(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]course.Assignment, error) {
	query := `SELECT * FROM assignment WHERE course_id = $1 ORDER BY ` + orderBy(ordering, "deadline ASC")
	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]course.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, repo.unrowAssignment(r))
	}
	return assignments, nil
}

func (repo courseRepository) CreateStudent(ctx context.Context, s course.Student) (course.Student, error) {
	s.ID = uuid.New().String()
	query := `INSERT INTO student (id, course_id, username, name, email, extensions, dropped, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, query,
		s.ID, s.CourseID, s.Username, null.NewString(s.Name, s.Name != ""), null.NewString(s.Email, s.Email != ""),
		s.Extensions, s.Dropped, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return course.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo courseRepository) GetStudentByID(ctx context.Context, id string) (course.Student, error) {
	var r studentRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM student WHERE id = $1`, id); err != nil {
		return course.Student{}, trapNoRowsErr(err, course.ErrStudentNotFound, "getting student by id")
	}
	return repo.unrowStudent(r), nil
}

func (repo courseRepository) GetStudentByUsername(ctx context.Context, courseID, username string) (course.Student, error) {
	var r studentRow
	query := `SELECT * FROM student WHERE course_id = $1 AND username = $2`
	if err := repo.db.GetContext(ctx, &r, query, courseID, username); err != nil {
		return course.Student{}, trapNoRowsErr(err, course.ErrStudentNotFound, "getting student by username")
	}
	return repo.unrowStudent(r), nil
}

func (repo courseRepository) GetStudentsByUsername(ctx context.Context, courseID string, usernames []string) ([]course.Student, error) {
	var rows []studentRow
	query := `SELECT * FROM student WHERE course_id = $1 AND username = ANY($2)`
	if err := repo.db.SelectContext(ctx, &rows, query, courseID, pq.Array(usernames)); err != nil {
		return nil, errors.Wrap(err, "querying students by username")
	}
	return repo.unrowStudents(rows), nil
}

func (repo courseRepository) GetStudentsByID(ctx context.Context, ids []string) ([]course.Student, error) {
	var rows []studentRow
	query := `SELECT * FROM student WHERE id = ANY($1)`
	if err := repo.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "querying students by id")
	}
	return repo.unrowStudents(rows), nil
}

func (repo courseRepository) QueryStudents(ctx context.Context, courseID string, ordering ...core.DBOrdering) ([]course.Student, error) {
	query := `SELECT * FROM student WHERE course_id = $1 ORDER BY ` + orderBy(ordering, "username ASC")
	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return repo.unrowStudents(rows), nil
}

func (repo courseRepository) UpdateStudent(ctx context.Context, s course.Student) (course.Student, error) {
	query := `UPDATE student SET name = $1, email = $2, extensions = $3, dropped = $4, updated_at = $5 WHERE id = $6`
	res, err := repo.db.ExecContext(ctx, query,
		null.NewString(s.Name, s.Name != ""), null.NewString(s.Email, s.Email != ""),
		s.Extensions, s.Dropped, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return course.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Student{}, course.ErrStudentNotFound
	}
	return s, nil
}
