package submission

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
)

var (
	// errors
	ErrNotFound          = errors.New("submission not found")
	ErrNothingToCancel   = errors.New("there is no submission to cancel")
	ErrGradingInProgress = errors.New("grading has started; the submission is locked")
	ErrNoOpSubmission    = errors.New("this commit is already the final submission")
	// ErrLedgerConflict reports that a concurrent submission spent the
	// extensions this one was validated against; repositories detect it by
	// re-checking the LedgerGuard inside the write transaction.
	ErrLedgerConflict = errors.New("extension balance changed concurrently")
)

type (
	Repository interface {
		GetSubmissionByID(ctx context.Context, id string) (Submission, error)
		// CreateFinalSubmission atomically inserts the submission and points
		// the registration's final submission at it. The guard is re-checked
		// inside the same transaction; ErrLedgerConflict means a concurrent
		// writer spent the pool first and nothing was persisted.
		CreateFinalSubmission(ctx context.Context, sub Submission, guard LedgerGuard) (Submission, error)
		// ClearFinalSubmission detaches the registration's final submission.
		// The superseded record is kept for history.
		ClearFinalSubmission(ctx context.Context, registrationID string) error
		// TeamExtensionsUsed sums extensions_used over the final submissions
		// of every registration of the team.
		TeamExtensionsUsed(ctx context.Context, teamID string) (int, error)
		// StudentExtensionsUsed sums extensions_used over the final
		// submissions of every registration of every team the student
		// belongs to, across all assignments.
		StudentExtensionsUsed(ctx context.Context, studentID string) (int, error)
	}

	Service interface {
		Submit(ctx context.Context, actor core.Actor, registrationID string, ns NewSubmission, submittedAt time.Time) (Result, error)
		CancelSubmission(ctx context.Context, actor core.Actor, registrationID string) error
		GetSubmission(ctx context.Context, id string) (Submission, error)
		TeamBalance(ctx context.Context, teamID string) (Balance, error)
		StudentBalance(ctx context.Context, studentID string) (Balance, error)
	}

	service struct {
		repo    Repository
		regs    registration.Service
		courses course.Service
		mailSvc core.EmailService
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, regs registration.Service, courses course.Service, mailSvc core.EmailService, log core.Logger) Service {
	return &service{
		repo:    repo,
		regs:    regs,
		courses: courses,
		mailSvc: mailSvc,
		log:     log,
	}
}

// Submit validates a submission attempt against the extension ledger and, on
// acceptance, makes it the registration's final submission. The superseded
// final submission's extensions are credited back before the check, so a
// resubmission only ever pays the delta. With ns.DryRun all checks run and
// nothing persists.
func (svc *service) Submit(ctx context.Context, actor core.Actor, registrationID string, ns NewSubmission, submittedAt time.Time) (Result, error) {
	reg, err := svc.regs.GetRegistration(ctx, registrationID)
	if err != nil {
		return Result{}, err
	}
	team, err := svc.regs.GetTeam(ctx, reg.TeamID)
	if err != nil {
		return Result{}, err
	}
	if !actor.Staff {
		if !team.HasMemberUsername(actor.Username) {
			return Result{}, core.ErrPermissionDenied
		}
		if ns.ExtensionsOverride != nil {
			return Result{}, core.ErrPermissionDenied
		}
	}
	if reg.GradingStarted() {
		return Result{}, ErrGradingInProgress
	}

	a, err := svc.courses.GetAssignment(ctx, reg.AssignmentID)
	if err != nil {
		return Result{}, err
	}
	crs, err := svc.courses.GetCourse(ctx, a.CourseID)
	if err != nil {
		return Result{}, err
	}

	var credited int
	if reg.HasFinalSubmission() {
		prior, err := svc.repo.GetSubmissionByID(ctx, reg.FinalSubmissionID)
		if err != nil {
			return Result{}, err
		}
		if prior.CommitSHA == ns.CommitSHA {
			return Result{}, ErrNoOpSubmission
		}
		credited = prior.ExtensionsUsed
	}

	available, err := svc.teamExtensionsAvailable(ctx, crs, team)
	if err != nil {
		return Result{}, err
	}

	requested := ns.ExtensionsRequested
	override := ns.ExtensionsOverride != nil
	if override {
		requested = *ns.ExtensionsOverride
	}
	charge, err := ValidateSubmission(a.Deadline, a.GracePeriod, submittedAt, requested, available, credited, override)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Charged:   charge,
		Needed:    ExtensionsNeeded(a.Deadline, a.GracePeriod, submittedAt),
		Available: available + credited,
		DryRun:    ns.DryRun,
	}
	if ns.DryRun {
		return res, nil
	}

	guard, err := svc.ledgerGuard(ctx, crs, team)
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	sub := Submission{
		RegistrationID: reg.ID,
		CommitSHA:      ns.CommitSHA,
		ExtensionsUsed: charge,
		SubmittedAt:    submittedAt.UTC(),
		CreatedAt:      now,
	}
	sub, err = svc.repo.CreateFinalSubmission(ctx, sub, guard)
	if err != nil {
		if errors.Is(err, ErrLedgerConflict) {
			// a concurrent submission spent the pool between validation and
			// commit; report the ledger as it stands now
			available, aerr := svc.teamExtensionsAvailable(ctx, crs, team)
			if aerr != nil {
				return Result{}, aerr
			}
			return Result{}, &InsufficientExtensionsError{Needed: charge, Available: available + credited}
		}
		return Result{}, err
	}
	res.Submission = sub

	svc.sendReceipt(ctx, a, team, sub)

	return res, nil
}

// CancelSubmission clears the registration's final submission, returning its
// extensions to the ledger (availability re-derives from the current final
// submission, so no explicit refund step exists).
func (svc *service) CancelSubmission(ctx context.Context, actor core.Actor, registrationID string) error {
	reg, err := svc.regs.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	team, err := svc.regs.GetTeam(ctx, reg.TeamID)
	if err != nil {
		return err
	}
	if !actor.Staff && !team.HasMemberUsername(actor.Username) {
		return core.ErrPermissionDenied
	}
	if !reg.HasFinalSubmission() {
		return ErrNothingToCancel
	}
	if reg.GradingStarted() {
		return ErrGradingInProgress
	}
	return svc.repo.ClearFinalSubmission(ctx, reg.ID)
}

func (svc *service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, id)
}

// ledgerGuard captures the limits the repository must re-verify when it
// commits the submission.
func (svc *service) ledgerGuard(ctx context.Context, crs course.Course, team registration.Team) (LedgerGuard, error) {
	guard := LedgerGuard{TeamID: team.ID}
	if crs.ExtensionPolicy == course.PolicyPerTeam {
		guard.TeamLimit = team.Extensions
		return guard, nil
	}
	students, err := svc.courses.GetStudents(ctx, team.MemberIDs())
	if err != nil {
		return LedgerGuard{}, err
	}
	guard.StudentLimits = make(map[string]int, len(students))
	for _, s := range students {
		if !s.Dropped {
			guard.StudentLimits[s.ID] = s.Extensions
		}
	}
	return guard, nil
}

// teamExtensionsAvailable computes the team's spendable extensions under the
// course policy. A negative result means the ledger was overspent by a bug
// elsewhere; it is surfaced as a data-integrity fault, never clamped.
func (svc *service) teamExtensionsAvailable(ctx context.Context, crs course.Course, team registration.Team) (int, error) {
	if crs.ExtensionPolicy == course.PolicyPerTeam {
		used, err := svc.repo.TeamExtensionsUsed(ctx, team.ID)
		if err != nil {
			return 0, err
		}
		available := team.Extensions - used
		if available < 0 {
			return 0, core.NewIntegrityError(fmt.Sprintf(
				"team %q has a negative extension balance (%d granted, %d used)", team.Name, team.Extensions, used))
		}
		return available, nil
	}

	students, err := svc.courses.GetStudents(ctx, team.MemberIDs())
	if err != nil {
		return 0, err
	}
	available := -1
	for _, s := range students {
		if s.Dropped {
			continue
		}
		bal, err := svc.studentExtensionsAvailable(ctx, s)
		if err != nil {
			return 0, err
		}
		if available < 0 || bal < available {
			available = bal
		}
	}
	if available < 0 {
		// no live members; nothing to spend
		return 0, nil
	}
	return available, nil
}

func (svc *service) studentExtensionsAvailable(ctx context.Context, s course.Student) (int, error) {
	used, err := svc.repo.StudentExtensionsUsed(ctx, s.ID)
	if err != nil {
		return 0, err
	}
	available := s.Extensions - used
	if available < 0 {
		return 0, core.NewIntegrityError(fmt.Sprintf(
			"student %q has a negative extension balance (%d granted, %d used)", s.Username, s.Extensions, used))
	}
	return available, nil
}

// TeamBalance reports the team's remaining extensions under the course policy.
func (svc *service) TeamBalance(ctx context.Context, teamID string) (Balance, error) {
	team, err := svc.regs.GetTeam(ctx, teamID)
	if err != nil {
		return Balance{}, err
	}
	crs, err := svc.courses.GetCourse(ctx, team.CourseID)
	if err != nil {
		return Balance{}, err
	}
	available, err := svc.teamExtensionsAvailable(ctx, crs, team)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Policy: string(crs.ExtensionPolicy), Available: available}, nil
}

// StudentBalance reports the student's personal remaining extensions.
func (svc *service) StudentBalance(ctx context.Context, studentID string) (Balance, error) {
	s, err := svc.courses.GetStudent(ctx, studentID)
	if err != nil {
		return Balance{}, err
	}
	crs, err := svc.courses.GetCourse(ctx, s.CourseID)
	if err != nil {
		return Balance{}, err
	}
	available, err := svc.studentExtensionsAvailable(ctx, s)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Policy: string(crs.ExtensionPolicy), Available: available}, nil
}

// sendReceipt mails the accepted submission summary to the team.
func (svc *service) sendReceipt(ctx context.Context, a course.Assignment, team registration.Team, sub Submission) {
	if svc.mailSvc == nil {
		return
	}
	students, err := svc.courses.GetStudents(ctx, team.MemberIDs())
	if err != nil {
		svc.log.Warn("loading team members for submission receipt", err)
		return
	}
	to := make([]mail.Address, 0, len(students))
	for _, s := range students {
		if !s.Dropped && s.Email != "" {
			to = append(to, mail.Address{Name: s.Username, Address: s.Email})
		}
	}
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Submission received for " + a.Name,
		TemplateName: "submission-receipt",
		TemplateData: map[string]interface{}{
			"TeamName":       team.Name,
			"Assignment":     a.Name,
			"CommitSHA":      sub.CommitSHA,
			"SubmittedAt":    sub.SubmittedAt.Format(time.RFC3339),
			"ExtensionsUsed": sub.ExtensionsUsed,
		},
	})
}
