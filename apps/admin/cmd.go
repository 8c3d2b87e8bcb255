package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrSvc    user.Service
	courseSvc course.Service
	subSvc    submission.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  adduser -name NAME -username USERNAME [-email EMAIL] [-admin] - create a user; the password will be prompted")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset a user's password")
	fmt.Println("  addcourse -code CODE -name NAME -policy per_team|per_student [-extensions N] - create a course")
	fmt.Println("  addassignment -course CODE -slug SLUG -name NAME -deadline RFC3339 [-grace DUR] [-min N] [-max N] - create an assignment")
	fmt.Println("  enroll -course CODE -username USERNAME [-name NAME] [-email EMAIL] - enroll a student")
	fmt.Println("  grantextensions -course CODE -username USERNAME -count N - grant extra extensions to a student")
	fmt.Println("  dropstudent -course CODE -username USERNAME - drop a student from a course")
	fmt.Println("  balance -course CODE -username USERNAME - print a student's remaining extensions")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		cmd := flag.NewFlagSet("adduser", flag.ExitOnError)
		name := cmd.String("name", "", "The user's full name.")
		uname := cmd.String("username", "", "The user's username. The password will be prompted next.")
		email := cmd.String("email", "", "The user's email address.")
		isAdmin := cmd.Bool("admin", false, "Grant all roles.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addUser(*name, *uname, *email, pwd, *isAdmin)

	case "resetpassword":
		cmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
		uname := cmd.String("username", "", "The user's username or email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*uname, pwd)

	case "addcourse":
		cmd := flag.NewFlagSet("addcourse", flag.ExitOnError)
		code := cmd.String("code", "", "The course code.")
		name := cmd.String("name", "", "The course name.")
		policy := cmd.String("policy", string(course.PolicyPerTeam), "The extension policy: per_team or per_student.")
		extensions := cmd.Int("extensions", 0, "The default extension credit.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *name == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addCourse(*code, *name, *policy, *extensions)

	case "addassignment":
		cmd := flag.NewFlagSet("addassignment", flag.ExitOnError)
		code := cmd.String("course", "", "The course code.")
		slug := cmd.String("slug", "", "The assignment slug.")
		name := cmd.String("name", "", "The assignment name.")
		deadline := cmd.String("deadline", "", "The deadline in RFC3339 format.")
		grace := cmd.Duration("grace", 0, "The grace period, e.g. 15m.")
		min := cmd.Int("min", 1, "The minimum team size.")
		max := cmd.Int("max", 1, "The maximum team size.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *slug == "" || *name == "" || *deadline == "" {
			cmd.Usage()
			return errHelp
		}
		due, err := time.Parse(time.RFC3339, *deadline)
		if err != nil {
			return fmt.Errorf("deadline must be in RFC3339 format (got %q)", *deadline)
		}
		return cli.addAssignment(*code, *slug, *name, due, *grace, *min, *max)

	case "enroll":
		cmd := flag.NewFlagSet("enroll", flag.ExitOnError)
		code := cmd.String("course", "", "The course code.")
		uname := cmd.String("username", "", "The student's username.")
		name := cmd.String("name", "", "The student's full name.")
		email := cmd.String("email", "", "The student's email address.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *uname == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.enroll(*code, *uname, *name, *email)

	case "grantextensions":
		cmd := flag.NewFlagSet("grantextensions", flag.ExitOnError)
		code := cmd.String("course", "", "The course code.")
		uname := cmd.String("username", "", "The student's username.")
		count := cmd.Int("count", 0, "The number of extensions to grant.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *uname == "" || *count < 1 {
			cmd.Usage()
			return errHelp
		}
		return cli.grantExtensions(*code, *uname, *count)

	case "dropstudent":
		cmd := flag.NewFlagSet("dropstudent", flag.ExitOnError)
		code := cmd.String("course", "", "The course code.")
		uname := cmd.String("username", "", "The student's username.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *uname == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.dropStudent(*code, *uname)

	case "balance":
		cmd := flag.NewFlagSet("balance", flag.ExitOnError)
		code := cmd.String("course", "", "The course code.")
		uname := cmd.String("username", "", "The student's username.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *uname == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.balance(*code, *uname)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
