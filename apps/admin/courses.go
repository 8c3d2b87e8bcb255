package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/course"
)

func (cli *commandLine) addCourse(code, name, policy string, extensions int) error {
	nc := course.NewCourse{
		Code:              code,
		Name:              name,
		ExtensionPolicy:   course.ExtensionPolicy(policy),
		DefaultExtensions: extensions,
	}
	if err := nc.Validate(); err != nil {
		return err
	}
	if _, err := cli.courseSvc.CreateCourse(context.Background(), nc); err != nil {
		return errors.Wrap(err, "creating course")
	}
	return nil
}

func (cli *commandLine) addAssignment(code, slug, name string, deadline time.Time, grace time.Duration, min, max int) error {
	ctx := context.Background()
	crs, err := cli.courseSvc.GetCourseByCode(ctx, code)
	if err != nil {
		return err
	}

	na := course.NewAssignment{
		CourseID:    crs.ID,
		Slug:        slug,
		Name:        name,
		Deadline:    deadline.UTC(),
		GracePeriod: grace,
		MinStudents: min,
		MaxStudents: max,
	}
	if err := na.Validate(); err != nil {
		return err
	}
	if _, err := cli.courseSvc.CreateAssignment(ctx, na); err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return nil
}

func (cli *commandLine) enroll(code, uname, name, email string) error {
	ctx := context.Background()
	crs, err := cli.courseSvc.GetCourseByCode(ctx, code)
	if err != nil {
		return err
	}

	ns := course.NewStudent{
		CourseID: crs.ID,
		Username: uname,
		Name:     name,
		Email:    email,
	}
	if err := ns.Validate(); err != nil {
		return err
	}
	if _, err := cli.courseSvc.Enroll(ctx, ns); err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return nil
}

func (cli *commandLine) grantExtensions(code, uname string, count int) error {
	ctx := context.Background()
	student, err := cli.getStudent(ctx, code, uname)
	if err != nil {
		return err
	}
	if _, err := cli.courseSvc.GrantExtensions(ctx, student.ID, count); err != nil {
		return errors.Wrap(err, "granting extensions")
	}
	return nil
}

func (cli *commandLine) dropStudent(code, uname string) error {
	ctx := context.Background()
	student, err := cli.getStudent(ctx, code, uname)
	if err != nil {
		return err
	}
	if _, err := cli.courseSvc.Drop(ctx, student.ID); err != nil {
		return errors.Wrap(err, "dropping student")
	}
	return nil
}

func (cli *commandLine) balance(code, uname string) error {
	ctx := context.Background()
	student, err := cli.getStudent(ctx, code, uname)
	if err != nil {
		return err
	}
	bal, err := cli.subSvc.StudentBalance(ctx, student.ID)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	fmt.Printf("%s has %d extension(s) remaining (%s policy)\n", student.Username, bal.Available, bal.Policy)
	return nil
}

func (cli *commandLine) getStudent(ctx context.Context, code, uname string) (course.Student, error) {
	crs, err := cli.courseSvc.GetCourseByCode(ctx, code)
	if err != nil {
		return course.Student{}, err
	}
	return cli.courseSvc.GetStudentByUsername(ctx, crs.ID, uname)
}
