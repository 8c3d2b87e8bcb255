package registration_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	inmemdb "github.com/trezcool/kazi/storage/database/inmem"
	testutil "github.com/trezcool/kazi/tests"
)

type regFixture struct {
	db      *inmemdb.DB
	regRepo registration.Repository
	subRepo submission.Repository
	crsRepo course.Repository
	svc     registration.Service
	crs     course.Course
	a1, a2  course.Assignment
}

func newRegFixture(t *testing.T, policy course.ExtensionPolicy, defaultExt int) *regFixture {
	t.Helper()

	db := inmemdb.NewDB()
	crsRepo := inmemdb.NewCourseRepository(db)
	regRepo := inmemdb.NewRegistrationRepository(db)
	logger := testutil.Logger{}
	courseSvc := course.NewService(crsRepo, logger)
	svc := registration.NewService(regRepo, courseSvc, nil, logger)

	crs := testutil.CreateCourse(t, crsRepo, "cs3110", policy, defaultExt)
	deadline := time.Now().Add(7 * 24 * time.Hour).UTC()
	a1 := testutil.CreateAssignment(t, crsRepo, crs.ID, "a1", deadline, 15*time.Minute, 1, 2)
	a2 := testutil.CreateAssignment(t, crsRepo, crs.ID, "a2", deadline.Add(7*24*time.Hour), 15*time.Minute, 1, 2)

	return &regFixture{
		db:      db,
		regRepo: regRepo,
		subRepo: inmemdb.NewSubmissionRepository(db),
		crsRepo: crsRepo,
		svc:     svc,
		crs:     crs,
		a1:      a1,
		a2:      a2,
	}
}

func (f *regFixture) student(t *testing.T, uname string) course.Student {
	t.Helper()
	return testutil.CreateStudent(t, f.crsRepo, f.crs.ID, uname, f.crs.DefaultExtensions)
}

func actor(uname string) core.Actor { return core.Actor{Username: uname} }

var staff = core.Actor{Username: "prof", Staff: true}

func TestService_Register_newTeam(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 3)
	f.student(t, "alice")
	f.student(t, "bob")
	ctx := context.Background()

	res, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID,
		Requester:    "alice",
		Partners:     []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if !res.NewTeam {
		t.Error("NewTeam = false, want true")
	}
	if res.Team.Name != "alice-bob" {
		t.Errorf("Team.Name = %q, want %q", res.Team.Name, "alice-bob")
	}
	if res.Team.Extensions != 3 {
		t.Errorf("Team.Extensions = %d, want 3", res.Team.Extensions)
	}
	if res.Registration.AssignmentID != f.a1.ID {
		t.Errorf("Registration.AssignmentID = %q, want %q", res.Registration.AssignmentID, f.a1.ID)
	}
	for _, m := range res.Members {
		wantConfirmed := m.Username == "alice"
		if m.Confirmed != wantConfirmed {
			t.Errorf("member %s Confirmed = %v, want %v", m.Username, m.Confirmed, wantConfirmed)
		}
	}
}

func TestService_Register_perStudentPolicyLeavesPoolEmpty(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerStudent, 3)
	f.student(t, "alice")

	res, err := f.svc.Register(context.Background(), actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID,
		Requester:    "alice",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if res.Team.Extensions != 0 {
		t.Errorf("Team.Extensions = %d, want 0 under per-student policy", res.Team.Extensions)
	}
}

func TestService_Register_idempotent(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	f.student(t, "bob")
	ctx := context.Background()

	nr := registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"bob"}}
	first, err := f.svc.Register(ctx, actor("alice"), nr)
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	// bob re-asserts the same party; this confirms his membership
	nr2 := registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "bob", Partners: []string{"alice"}}
	second, err := f.svc.Register(ctx, actor("bob"), nr2)
	if err != nil {
		t.Fatalf("Register() (repeat) failed: %v", err)
	}

	if !second.AlreadyRegistered {
		t.Error("AlreadyRegistered = false, want true")
	}
	if second.Team.ID != first.Team.ID {
		t.Errorf("Team.ID = %q, want %q", second.Team.ID, first.Team.ID)
	}
	if second.Registration.ID != first.Registration.ID {
		t.Errorf("Registration.ID = %q, want %q", second.Registration.ID, first.Registration.ID)
	}
	for _, m := range second.Members {
		if !m.Confirmed {
			t.Errorf("member %s Confirmed = false after both asserted", m.Username)
		}
	}
}

func TestService_Register_existingTeamSecondAssignment(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 2)
	f.student(t, "alice")
	f.student(t, "bob")
	ctx := context.Background()

	first, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	second, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a2.ID, Requester: "alice", Partners: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Register() (second assignment) failed: %v", err)
	}

	if second.NewTeam {
		t.Error("NewTeam = true, want reuse of the existing team")
	}
	if second.Team.ID != first.Team.ID {
		t.Errorf("Team.ID = %q, want %q", second.Team.ID, first.Team.ID)
	}
	if second.Registration.ID == first.Registration.ID {
		t.Error("expected a distinct registration per assignment")
	}
}

func TestService_Register_conflict(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	f.student(t, "bob")
	f.student(t, "carol")
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"bob"},
	}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	// alice is committed to alice-bob for a1
	_, err := f.svc.Register(ctx, actor("carol"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "carol", Partners: []string{"alice"},
	})
	var conflictErr *registration.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Register() error = %v, want ConflictError", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(conflictErr.Conflicts))
	}
	if conflictErr.Conflicts[0].Username != "alice" {
		t.Errorf("Conflicts[0].Username = %q, want %q", conflictErr.Conflicts[0].Username, "alice")
	}

	// same party on the other assignment is fine (the team is uncommitted there)
	res, err := f.svc.Register(ctx, actor("carol"), registration.NewRegistration{
		AssignmentID: f.a2.ID, Requester: "carol", Partners: []string{"alice"},
	})
	if err != nil {
		t.Fatalf("Register() (other assignment) failed: %v", err)
	}
	if !res.NewTeam {
		t.Error("NewTeam = false, want a fresh team for the overlapping party")
	}
}

func TestService_Register_rejections(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	f.student(t, "bob")
	f.student(t, "carol")
	ctx := context.Background()

	tests := []struct {
		name  string
		actor core.Actor
		nr    registration.NewRegistration
		check func(t *testing.T, err error)
	}{
		{
			name:  "cannot act for another student",
			actor: actor("bob"),
			nr:    registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "alice"},
			check: func(t *testing.T, err error) {
				if errors.Cause(err) != core.ErrPermissionDenied {
					t.Errorf("error = %v, want ErrPermissionDenied", err)
				}
			},
		},
		{
			name:  "staff can act for a student",
			actor: staff,
			nr:    registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "carol"},
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("error = %v, want nil", err)
				}
			},
		},
		{
			name:  "self partner",
			actor: actor("alice"),
			nr:    registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"alice"}},
			check: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("error = %v, want ValidationError", err)
				}
			},
		},
		{
			name:  "party too large",
			actor: actor("alice"),
			nr:    registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"bob", "carol"}},
			check: func(t *testing.T, err error) {
				var sizeErr *registration.InvalidPartySizeError
				if !errors.As(err, &sizeErr) {
					t.Fatalf("error = %v, want InvalidPartySizeError", err)
				}
				if sizeErr.Size != 3 || sizeErr.Max != 2 {
					t.Errorf("InvalidPartySizeError = %+v, want Size=3 Max=2", sizeErr)
				}
			},
		},
		{
			name:  "unknown partner",
			actor: actor("alice"),
			nr:    registration.NewRegistration{AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"zed"}},
			check: func(t *testing.T, err error) {
				var unkErr *course.UnknownStudentError
				if !errors.As(err, &unkErr) {
					t.Fatalf("error = %v, want UnknownStudentError", err)
				}
				if len(unkErr.Usernames) != 1 || unkErr.Usernames[0] != "zed" {
					t.Errorf("UnknownStudentError.Usernames = %v, want [zed]", unkErr.Usernames)
				}
			},
		},
		{
			name:  "unknown assignment",
			actor: actor("alice"),
			nr:    registration.NewRegistration{AssignmentID: "nope", Requester: "alice"},
			check: func(t *testing.T, err error) {
				if errors.Cause(err) != course.ErrAssignmentNotFound {
					t.Errorf("error = %v, want ErrAssignmentNotFound", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.actor, tt.nr)
			tt.check(t, err)
		})
	}
}

func TestService_Register_teamNameTaken(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	f.student(t, "bob")
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice", TeamName: "rockets",
	}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	_, err := f.svc.Register(ctx, actor("bob"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "bob", TeamName: "rockets",
	})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Register() error = %v, want ValidationError", err)
	}
}

func TestService_CancelRegistration(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	f.student(t, "mallory")
	ctx := context.Background()

	res, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := f.svc.CancelRegistration(ctx, actor("mallory"), res.Registration.ID); errors.Cause(err) != core.ErrPermissionDenied {
		t.Errorf("CancelRegistration() by non-member error = %v, want ErrPermissionDenied", err)
	}

	if err := f.svc.CancelRegistration(ctx, actor("alice"), res.Registration.ID); err != nil {
		t.Fatalf("CancelRegistration() failed: %v", err)
	}
	if _, err := f.svc.GetRegistration(ctx, res.Registration.ID); errors.Cause(err) != registration.ErrNotFound {
		t.Errorf("GetRegistration() after cancel error = %v, want ErrNotFound", err)
	}
}

func TestService_CancelRegistration_blockedBySubmission(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	ctx := context.Background()

	res, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := f.subRepo.CreateFinalSubmission(ctx, submission.Submission{
		RegistrationID: res.Registration.ID,
		CommitSHA:      "abcdef1",
		SubmittedAt:    now,
		CreatedAt:      now,
	}, submission.LedgerGuard{TeamID: res.Team.ID, TeamLimit: res.Team.Extensions}); err != nil {
		t.Fatalf("CreateFinalSubmission() failed: %v", err)
	}

	if err := f.svc.CancelRegistration(ctx, actor("alice"), res.Registration.ID); errors.Cause(err) != registration.ErrHasSubmission {
		t.Errorf("CancelRegistration() error = %v, want ErrHasSubmission", err)
	}
}

func TestService_AssignGrader(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 0)
	f.student(t, "alice")
	ctx := context.Background()

	res, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if _, err := f.svc.AssignGrader(ctx, actor("alice"), res.Registration.ID, "grader-1"); errors.Cause(err) != core.ErrPermissionDenied {
		t.Errorf("AssignGrader() by student error = %v, want ErrPermissionDenied", err)
	}

	reg, err := f.svc.AssignGrader(ctx, staff, res.Registration.ID, "grader-1")
	if err != nil {
		t.Fatalf("AssignGrader() failed: %v", err)
	}
	if reg.GraderID != "grader-1" {
		t.Errorf("GraderID = %q, want %q", reg.GraderID, "grader-1")
	}
	if !reg.GradingStarted() {
		t.Error("GradingStarted() = false, want true")
	}
}

func TestRepository_CreateTeam_duplicateMemberSet(t *testing.T) {
	f := newRegFixture(t, course.PolicyPerTeam, 3)
	f.student(t, "alice")
	f.student(t, "bob")
	ctx := context.Background()

	res, err := f.svc.Register(ctx, actor("alice"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "alice", Partners: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	// a writer that matched before the team above was committed must be
	// rejected inside the create transaction, explicit name or not
	members := make([]registration.TeamMember, 0, len(res.Team.Members))
	for _, m := range res.Team.Members {
		members = append(members, registration.TeamMember{StudentID: m.StudentID, Username: m.Username})
	}
	now := time.Now().UTC()
	_, _, err = f.regRepo.CreateTeam(ctx, registration.Team{
		CourseID:  f.crs.ID,
		Name:      "the-ringers",
		Active:    true,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}, registration.Registration{AssignmentID: f.a2.ID, CreatedAt: now, UpdatedAt: now})
	if err != registration.ErrTeamExists {
		t.Errorf("CreateTeam() error = %v, want ErrTeamExists", err)
	}

	// the committed team is untouched and still matchable
	again, err := f.svc.Register(ctx, actor("bob"), registration.NewRegistration{
		AssignmentID: f.a1.ID, Requester: "bob", Partners: []string{"alice"},
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if !again.AlreadyRegistered || again.Team.ID != res.Team.ID {
		t.Errorf("Register() = %+v, want the existing team", again)
	}
}
