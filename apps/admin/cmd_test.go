package main

import (
	"context"
	"database/sql"
	"fmt"
	iofs "io/fs"
	"strconv"
	"testing"
	"time"

	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
	inmemdb "github.com/trezcool/kazi/storage/database/inmem"
	testutil "github.com/trezcool/kazi/tests"
)

var (
	usrRepo user.Repository
	crsRepo course.Repository
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	db := inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	crsRepo = inmemdb.NewCourseRepository(db)

	logger := testutil.Logger{}
	courseSvc := course.NewService(crsRepo, logger)
	regSvc := registration.NewService(inmemdb.NewRegistrationRepository(db), courseSvc, nil, logger)
	return &commandLine{
		usrSvc:    user.NewService(usrRepo, logger),
		courseSvc: courseSvc,
		subSvc:    submission.NewService(inmemdb.NewSubmissionRepository(db), regSvc, courseSvc, nil, logger),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
		return
	}
	if tt.wantErr != nil {
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	} else if tt.wantErrStr != "" {
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	} else {
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys iofs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "name but no password", args: []string{"adduser", "-name", "Admin", "-username", "boss"}, wantErr: errHelp},
		{
			name:  "created",
			args:  []string{"adduser", "-name", "Admin", "-username", "boss", "-email", "boss@test.cd", "-admin"},
			extra: extra{pwd: "LordOfTheRings"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))

			if tt.name == "created" {
				usr, err := cli.usrSvc.Authenticate(context.Background(), "boss", "LordOfTheRings")
				if err != nil {
					t.Fatalf("Authenticate(): %v", err)
				}
				if !usr.IsAdmin() {
					t.Error("failed! IsAdmin() = false")
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				pwd := tt.extra.(extra).pwd
				if _, err := cli.usrSvc.Authenticate(context.Background(), usr.Username, pwd); err != nil {
					t.Errorf("failed to update new password: %v", err)
				}
			} else {
				tt.check(t, err)
			}
		})
	}
}

func Test_commandLine_courses(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339)

	tests := []cliTest{
		{name: "addcourse: no args", args: []string{"addcourse"}, wantErr: errHelp},
		{name: "addcourse", args: []string{"addcourse", "-code", "cs3110", "-name", "Functional Programming", "-policy", "per_team", "-extensions", "2"}},
		{name: "addassignment: no args", args: []string{"addassignment"}, wantErr: errHelp},
		{
			name:       "addassignment: bad deadline",
			args:       []string{"addassignment", "-course", "cs3110", "-slug", "a1", "-name", "A1", "-deadline", "tomorrow"},
			wantErrStr: `deadline must be in RFC3339 format (got "tomorrow")`,
		},
		{
			name:    "addassignment: unknown course",
			args:    []string{"addassignment", "-course", "lol", "-slug", "a1", "-name", "A1", "-deadline", deadline},
			wantErr: course.ErrNotFound,
		},
		{name: "addassignment", args: []string{"addassignment", "-course", "cs3110", "-slug", "a1", "-name", "A1", "-deadline", deadline, "-grace", "15m", "-min", "1", "-max", "2"}},
		{name: "enroll: no args", args: []string{"enroll"}, wantErr: errHelp},
		{name: "enroll", args: []string{"enroll", "-course", "cs3110", "-username", "alice", "-name", "Alice", "-email", "alice@test.cd"}},
		{name: "grantextensions: no count", args: []string{"grantextensions", "-course", "cs3110", "-username", "alice"}, wantErr: errHelp},
		{name: "grantextensions: unknown student", args: []string{"grantextensions", "-course", "cs3110", "-username", "zed", "-count", "1"}, wantErr: course.ErrStudentNotFound},
		{name: "grantextensions", args: []string{"grantextensions", "-course", "cs3110", "-username", "alice", "-count", "3"}},
		{name: "balance: no args", args: []string{"balance"}, wantErr: errHelp},
		{name: "balance: unknown student", args: []string{"balance", "-course", "cs3110", "-username", "zed"}, wantErr: course.ErrStudentNotFound},
		{name: "balance", args: []string{"balance", "-course", "cs3110", "-username", "alice"}},
		{name: "dropstudent", args: []string{"dropstudent", "-course", "cs3110", "-username", "alice"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	// final state
	crs, err := cli.courseSvc.GetCourseByCode(ctx, "cs3110")
	if err != nil {
		t.Fatalf("GetCourseByCode(): %v", err)
	}
	if crs.DefaultExtensions != 2 || crs.ExtensionPolicy != course.PolicyPerTeam {
		t.Errorf("course = %+v", crs)
	}
	assignments, err := cli.courseSvc.QueryAssignments(ctx, crs.ID)
	if err != nil || len(assignments) != 1 {
		t.Fatalf("QueryAssignments() = %v, %v", assignments, err)
	}
	s, err := cli.courseSvc.GetStudentByUsername(ctx, crs.ID, "alice")
	if err != nil {
		t.Fatalf("GetStudentByUsername(): %v", err)
	}
	if s.Extensions != 3 {
		t.Errorf("Extensions = %d, want 3", s.Extensions)
	}
	if !s.Dropped {
		t.Error("Dropped = false, want true")
	}
}
