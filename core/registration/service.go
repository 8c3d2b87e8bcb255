package registration

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
)

var (
	// errors
	ErrNotFound      = errors.New("registration not found")
	ErrTeamNotFound  = errors.New("team not found")
	ErrSelfPartner   = errors.New("you cannot partner with yourself")
	ErrTeamNameTaken = errors.New("this team name is already taken")
	ErrHasSubmission = errors.New("the submission must be cancelled before the registration")
	// ErrTeamExists reports that a team with the exact same member set was
	// committed by a concurrent request after matching ran; repositories
	// detect it by re-checking inside the CreateTeam transaction.
	ErrTeamExists = errors.New("an identical team already exists")
)

type (
	Repository interface {
		// FindTeamsWithAnyMember returns active teams sharing at least one
		// member with the given students; dropped students are not loaded as
		// members.
		FindTeamsWithAnyMember(ctx context.Context, courseID string, studentIDs []string) ([]Team, error)
		GetTeamByID(ctx context.Context, id string) (Team, error)
		TeamNameTaken(ctx context.Context, courseID, name string) (bool, error)
		// CreateTeam atomically creates the team, its memberships and the
		// registration. It re-checks for an existing active team with the
		// same member set inside the transaction and reports ErrTeamExists
		// when a concurrent request created one first.
		CreateTeam(ctx context.Context, team Team, reg Registration) (Team, Registration, error)
		ConfirmMembership(ctx context.Context, teamID, studentID string) error

		CreateRegistration(ctx context.Context, reg Registration) (Registration, error)
		GetRegistrationByID(ctx context.Context, id string) (Registration, error)
		GetRegistration(ctx context.Context, teamID, assignmentID string) (Registration, error)
		// RegisteredTeamIDs reports which of the given teams already hold a
		// registration for the assignment.
		RegisteredTeamIDs(ctx context.Context, assignmentID string, teamIDs []string) (map[string]bool, error)
		QueryRegistrations(ctx context.Context, assignmentID string, ordering ...core.DBOrdering) ([]Registration, error)
		SetGrader(ctx context.Context, registrationID, graderID string) (Registration, error)
		DeleteRegistration(ctx context.Context, id string) error
	}

	Service interface {
		Register(ctx context.Context, actor core.Actor, nr NewRegistration) (Result, error)
		CancelRegistration(ctx context.Context, actor core.Actor, registrationID string) error
		GetRegistration(ctx context.Context, id string) (Registration, error)
		GetTeam(ctx context.Context, id string) (Team, error)
		QueryRegistrations(ctx context.Context, assignmentID string, ordering ...core.DBOrdering) ([]Registration, error)
		AssignGrader(ctx context.Context, actor core.Actor, registrationID, graderID string) (Registration, error)
	}

	service struct {
		repo    Repository
		courses course.Service
		mailSvc core.EmailService
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, courses course.Service, mailSvc core.EmailService, log core.Logger) Service {
	return &service{
		repo:    repo,
		courses: courses,
		mailSvc: mailSvc,
		log:     log,
	}
}

// Register matches the party (requester + partners) against existing teams and
// either confirms the requester's membership, registers the existing team for
// the assignment, or creates a new team. All-or-nothing: conflicting overlaps
// reject the whole request with every conflict named.
func (svc *service) Register(ctx context.Context, actor core.Actor, nr NewRegistration) (Result, error) {
	if !actor.ActsFor(nr.Requester) {
		return Result{}, core.ErrPermissionDenied
	}
	for _, p := range nr.Partners {
		if p == nr.Requester {
			return Result{}, core.NewValidationError(ErrSelfPartner, core.FieldError{Field: "partners", Error: ErrSelfPartner.Error()})
		}
	}

	a, err := svc.courses.GetAssignment(ctx, nr.AssignmentID)
	if err != nil {
		return Result{}, err
	}
	crs, err := svc.courses.GetCourse(ctx, a.CourseID)
	if err != nil {
		return Result{}, err
	}

	party, err := svc.resolveParty(ctx, crs.ID, nr)
	if err != nil {
		return Result{}, err
	}
	if size := len(party); size < a.MinStudents || size > a.MaxStudents {
		return Result{}, &InvalidPartySizeError{Size: size, Min: a.MinStudents, Max: a.MaxStudents}
	}

	ids := make([]string, 0, len(party))
	for _, s := range party {
		ids = append(ids, s.ID)
	}
	candidates, err := svc.repo.FindTeamsWithAnyMember(ctx, crs.ID, ids)
	if err != nil {
		return Result{}, err
	}
	candIDs := make([]string, 0, len(candidates))
	for _, t := range candidates {
		candIDs = append(candIDs, t.ID)
	}
	registered, err := svc.repo.RegisteredTeamIDs(ctx, a.ID, candIDs)
	if err != nil {
		return Result{}, err
	}

	match, err := MatchTeams(party, candidates, registered)
	if err != nil {
		return Result{}, err
	}
	if len(match.Conflicts) > 0 {
		return Result{}, &ConflictError{Conflicts: match.Conflicts}
	}
	if match.Team != nil {
		return svc.registerExistingTeam(ctx, nr.Requester, a, *match.Team, registered[match.Team.ID])
	}
	res, err := svc.createTeam(ctx, nr, a, crs, party)
	if errors.Is(err, ErrTeamExists) {
		// another request committed the matching team after matching ran;
		// match again and join it instead
		return svc.Register(ctx, actor, nr)
	}
	return res, err
}

// resolveParty resolves the requester and partners to enrolled students,
// deduplicating partner usernames.
func (svc *service) resolveParty(ctx context.Context, courseID string, nr NewRegistration) ([]course.Student, error) {
	unames := make([]string, 0, len(nr.Partners)+1)
	unames = append(unames, nr.Requester)
	seen := map[string]bool{nr.Requester: true}
	for _, p := range nr.Partners {
		if !seen[p] {
			seen[p] = true
			unames = append(unames, p)
		}
	}

	return svc.courses.ResolveStudents(ctx, courseID, unames)
}

func (svc *service) registerExistingTeam(ctx context.Context, requester string, a course.Assignment, team Team, alreadyRegistered bool) (Result, error) {
	if alreadyRegistered {
		// the requester independently re-asserts the same membership; confirming
		// an already-confirmed membership is a no-op
		for _, m := range team.Members {
			if m.Username == requester && !m.Confirmed {
				if err := svc.repo.ConfirmMembership(ctx, team.ID, m.StudentID); err != nil {
					return Result{}, err
				}
			}
		}
		team, err := svc.repo.GetTeamByID(ctx, team.ID)
		if err != nil {
			return Result{}, err
		}
		reg, err := svc.repo.GetRegistration(ctx, team.ID, a.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Team: team, Registration: reg, AlreadyRegistered: true, Members: team.Members}, nil
	}

	now := time.Now().UTC()
	reg, err := svc.repo.CreateRegistration(ctx, Registration{
		TeamID:       team.ID,
		AssignmentID: a.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Team: team, Registration: reg, Members: team.Members}, nil
}

func (svc *service) createTeam(ctx context.Context, nr NewRegistration, a course.Assignment, crs course.Course, party []course.Student) (Result, error) {
	members := make([]TeamMember, 0, len(party))
	for _, s := range party {
		members = append(members, TeamMember{
			StudentID: s.ID,
			Username:  s.Username,
			Confirmed: s.Username == nr.Requester,
		})
	}

	name := nr.TeamName
	if name != "" {
		taken, err := svc.repo.TeamNameTaken(ctx, crs.ID, name)
		if err != nil {
			return Result{}, err
		}
		if taken {
			return Result{}, core.NewValidationError(ErrTeamNameTaken, core.FieldError{Field: "team_name", Error: ErrTeamNameTaken.Error()})
		}
	} else {
		name = defaultTeamName(members)
	}

	var pool int
	if crs.ExtensionPolicy == course.PolicyPerTeam {
		pool = crs.DefaultExtensions
	}

	now := time.Now().UTC()
	team := Team{
		CourseID:   crs.ID,
		Name:       name,
		Extensions: pool,
		Active:     true,
		Members:    members,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	reg := Registration{AssignmentID: a.ID, CreatedAt: now, UpdatedAt: now}

	team, reg, err := svc.repo.CreateTeam(ctx, team, reg)
	if err != nil {
		return Result{}, err
	}

	svc.sendInvites(nr.Requester, a, team, party)

	return Result{Team: team, Registration: reg, NewTeam: true, Members: team.Members}, nil
}

// sendInvites notifies unconfirmed partners that they were added to a team.
func (svc *service) sendInvites(requester string, a course.Assignment, team Team, party []course.Student) {
	if svc.mailSvc == nil {
		return
	}
	emails := make(map[string]string, len(party))
	for _, s := range party {
		emails[s.Username] = s.Email
	}
	msgs := make([]*core.EmailMessage, 0, len(team.Members))
	for _, m := range team.Members {
		if m.Confirmed || emails[m.Username] == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: m.Username, Address: emails[m.Username]}},
			Subject:      "You were added to team " + team.Name,
			TemplateName: "team-invite",
			TemplateData: map[string]interface{}{
				"Username":     m.Username,
				"Requester":    requester,
				"TeamName":     team.Name,
				"Assignment":   a.Name,
				"AssignmentID": a.ID,
			},
		})
	}
	svc.mailSvc.SendMessages(msgs...)
}

// CancelRegistration deletes a registration that has no final submission.
// A submission never outlives its registration.
func (svc *service) CancelRegistration(ctx context.Context, actor core.Actor, registrationID string) error {
	reg, err := svc.repo.GetRegistrationByID(ctx, registrationID)
	if err != nil {
		return err
	}
	team, err := svc.repo.GetTeamByID(ctx, reg.TeamID)
	if err != nil {
		return err
	}
	if !actor.Staff && !team.HasMemberUsername(actor.Username) {
		return core.ErrPermissionDenied
	}
	if reg.HasFinalSubmission() {
		return ErrHasSubmission
	}
	return svc.repo.DeleteRegistration(ctx, reg.ID)
}

func (svc *service) GetRegistration(ctx context.Context, id string) (Registration, error) {
	return svc.repo.GetRegistrationByID(ctx, id)
}

func (svc *service) GetTeam(ctx context.Context, id string) (Team, error) {
	return svc.repo.GetTeamByID(ctx, id)
}

func (svc *service) QueryRegistrations(ctx context.Context, assignmentID string, ordering ...core.DBOrdering) ([]Registration, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	return svc.repo.QueryRegistrations(ctx, assignmentID, ordering...)
}

// AssignGrader marks grading as started; submissions and cancellations are
// blocked from then on.
func (svc *service) AssignGrader(ctx context.Context, actor core.Actor, registrationID, graderID string) (Registration, error) {
	if !actor.Staff {
		return Registration{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetRegistrationByID(ctx, registrationID); err != nil {
		return Registration{}, err
	}
	return svc.repo.SetGrader(ctx, registrationID, graderID)
}
