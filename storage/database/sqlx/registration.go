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
	"github.com/trezcool/kazi/core/registration"
)

type registrationRepository struct {
	db *sqlx.DB
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db *sqlx.DB) *registrationRepository {
	return &registrationRepository{db: db}
}

type (
	teamRow struct {
		ID         string    `db:"id"`
		CourseID   string    `db:"course_id"`
		Name       string    `db:"name"`
		Extensions int       `db:"extensions"`
		Active     bool      `db:"active"`
		CreatedAt  null.Time `db:"created_at"`
		UpdatedAt  null.Time `db:"updated_at"`
	}

	memberRow struct {
		TeamID    string `db:"team_id"`
		StudentID string `db:"student_id"`
		Username  string `db:"username"`
		Confirmed bool   `db:"confirmed"`
	}

	registrationRow struct {
		ID                string      `db:"id"`
		TeamID            string      `db:"team_id"`
		AssignmentID      string      `db:"assignment_id"`
		FinalSubmissionID null.String `db:"final_submission_id"`
		GraderID          null.String `db:"grader_id"`
		CreatedAt         null.Time   `db:"created_at"`
		UpdatedAt         null.Time   `db:"updated_at"`
	}
)

func (repo registrationRepository) unrowTeam(r teamRow, members []memberRow) registration.Team {
	t := registration.Team{
		ID:         r.ID,
		CourseID:   r.CourseID,
		Name:       r.Name,
		Extensions: r.Extensions,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
	for _, m := range members {
		if m.TeamID != t.ID {
			continue
		}
		t.Members = append(t.Members, registration.TeamMember{
			TeamID:    m.TeamID,
			StudentID: m.StudentID,
			Username:  m.Username,
			Confirmed: m.Confirmed,
		})
	}
	return t
}

func (repo registrationRepository) unrowRegistration(r registrationRow) registration.Registration {
	return registration.Registration{
		ID:                r.ID,
		TeamID:            r.TeamID,
		AssignmentID:      r.AssignmentID,
		FinalSubmissionID: r.FinalSubmissionID.String,
		GraderID:          r.GraderID.String,
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}
}

// queryMembers loads team members joined with students; dropped students are
// excluded so they never participate in matching or availability math.
func (repo registrationRepository) queryMembers(ctx context.Context, teamIDs []string) ([]memberRow, error) {
	query := `SELECT tm.team_id, tm.student_id, tm.confirmed, s.username
			  FROM team_member tm
			  JOIN student s ON s.id = tm.student_id
			  WHERE tm.team_id = ANY($1) AND NOT s.dropped
			  ORDER BY s.username`
	var rows []memberRow
	if err := repo.db.SelectContext(ctx, &rows, query, pq.Array(teamIDs)); err != nil {
		return nil, errors.Wrap(err, "querying team members")
	}
	return rows, nil
}

func (repo registrationRepository) FindTeamsWithAnyMember(ctx context.Context, courseID string, studentIDs []string) ([]registration.Team, error) {
	query := `SELECT DISTINCT t.* FROM team t
			  JOIN team_member tm ON tm.team_id = t.id
			  WHERE t.course_id = $1 AND t.active AND tm.student_id = ANY($2)
			  ORDER BY t.name`
	var rows []teamRow
	if err := repo.db.SelectContext(ctx, &rows, query, courseID, pq.Array(studentIDs)); err != nil {
		return nil, errors.Wrap(err, "querying teams by member")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	members, err := repo.queryMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	teams := make([]registration.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, repo.unrowTeam(r, members))
	}
	return teams, nil
}

func (repo registrationRepository) GetTeamByID(ctx context.Context, id string) (registration.Team, error) {
	var r teamRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM team WHERE id = $1`, id); err != nil {
		return registration.Team{}, trapNoRowsErr(err, registration.ErrTeamNotFound, "getting team by id")
	}
	members, err := repo.queryMembers(ctx, []string{id})
	if err != nil {
		return registration.Team{}, err
	}
	return repo.unrowTeam(r, members), nil
}

func (repo registrationRepository) TeamNameTaken(ctx context.Context, courseID, name string) (bool, error) {
	var taken bool
	query := `SELECT EXISTS (SELECT 1 FROM team WHERE course_id = $1 AND name = $2)`
	if err := repo.db.GetContext(ctx, &taken, query, courseID, name); err != nil {
		return false, errors.Wrap(err, "checking team name")
	}
	return taken, nil
}

// CreateTeam creates the team, its memberships and the registration in one
// serializable transaction. Matching ran outside this transaction, so the
// member rows are locked and the "no identical team" result re-checked here;
// concurrent registrations for the same member set cannot both commit.
func (repo registrationRepository) CreateTeam(ctx context.Context, team registration.Team, reg registration.Registration) (registration.Team, registration.Registration, error) {
	tx, err := repo.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(team.Members))
	for _, m := range team.Members {
		ids = append(ids, m.StudentID)
	}
	// concurrent registrations for an overlapping party serialize here
	var locked []string
	query := `SELECT id FROM student WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err = tx.SelectContext(ctx, &locked, query, pq.Array(ids)); err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "locking students")
	}

	var dup bool
	query = `SELECT EXISTS (
				SELECT 1 FROM team t
				WHERE t.course_id = $1 AND t.active
				  AND NOT EXISTS (SELECT 1 FROM team_member tm WHERE tm.team_id = t.id AND tm.student_id <> ALL($2))
				  AND (SELECT COUNT(*) FROM team_member tm WHERE tm.team_id = t.id) = $3)`
	if err = tx.GetContext(ctx, &dup, query, team.CourseID, pq.Array(ids), len(ids)); err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "checking for an identical team")
	}
	if dup {
		return registration.Team{}, registration.Registration{}, registration.ErrTeamExists
	}

	team.ID = uuid.New().String()
	query = `INSERT INTO team (id, course_id, name, extensions, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, query,
		team.ID, team.CourseID, team.Name, team.Extensions, team.Active, team.CreatedAt.UTC(), team.UpdatedAt.UTC()); err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "inserting team")
	}

	for i := range team.Members {
		team.Members[i].TeamID = team.ID
		m := team.Members[i]
		query = `INSERT INTO team_member (team_id, student_id, confirmed) VALUES ($1, $2, $3)`
		if _, err = tx.ExecContext(ctx, query, m.TeamID, m.StudentID, m.Confirmed); err != nil {
			return registration.Team{}, registration.Registration{}, errors.Wrap(err, "inserting team member")
		}
	}

	reg.ID = uuid.New().String()
	reg.TeamID = team.ID
	query = `INSERT INTO registration (id, team_id, assignment_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, query, reg.ID, reg.TeamID, reg.AssignmentID, reg.CreatedAt.UTC(), reg.UpdatedAt.UTC()); err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "inserting registration")
	}

	if err = tx.Commit(); err != nil {
		return registration.Team{}, registration.Registration{}, errors.Wrap(err, "committing team creation")
	}
	return team, reg, nil
}

func (repo registrationRepository) ConfirmMembership(ctx context.Context, teamID, studentID string) error {
	query := `UPDATE team_member SET confirmed = TRUE WHERE team_id = $1 AND student_id = $2`
	if _, err := repo.db.ExecContext(ctx, query, teamID, studentID); err != nil {
		return errors.Wrap(err, "confirming membership")
	}
	return nil
}

func (repo registrationRepository) CreateRegistration(ctx context.Context, reg registration.Registration) (registration.Registration, error) {
	reg.ID = uuid.New().String()
	query := `INSERT INTO registration (id, team_id, assignment_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, query, reg.ID, reg.TeamID, reg.AssignmentID, reg.CreatedAt.UTC(), reg.UpdatedAt.UTC()); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return registration.Registration{}, core.NewIntegrityError("duplicate registration for team " + reg.TeamID)
		}
		return registration.Registration{}, errors.Wrap(err, "inserting registration")
	}
	return reg, nil
}

func (repo registrationRepository) GetRegistrationByID(ctx context.Context, id string) (registration.Registration, error) {
	var r registrationRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM registration WHERE id = $1`, id); err != nil {
		return registration.Registration{}, trapNoRowsErr(err, registration.ErrNotFound, "getting registration by id")
	}
	return repo.unrowRegistration(r), nil
}

func (repo registrationRepository) GetRegistration(ctx context.Context, teamID, assignmentID string) (registration.Registration, error) {
	var r registrationRow
	query := `SELECT * FROM registration WHERE team_id = $1 AND assignment_id = $2`
	if err := repo.db.GetContext(ctx, &r, query, teamID, assignmentID); err != nil {
		return registration.Registration{}, trapNoRowsErr(err, registration.ErrNotFound, "getting registration")
	}
	return repo.unrowRegistration(r), nil
}

func (repo registrationRepository) RegisteredTeamIDs(ctx context.Context, assignmentID string, teamIDs []string) (map[string]bool, error) {
	var ids []string
	query := `SELECT team_id FROM registration WHERE assignment_id = $1 AND team_id = ANY($2)`
	if err := repo.db.SelectContext(ctx, &ids, query, assignmentID, pq.Array(teamIDs)); err != nil {
		return nil, errors.Wrap(err, "querying registered teams")
	}
	registered := make(map[string]bool, len(ids))
	for _, id := range ids {
		registered[id] = true
	}
	return registered, nil
}

func (repo registrationRepository) QueryRegistrations(ctx context.Context, assignmentID string, ordering ...core.DBOrdering) ([]registration.Registration, error) {
	query := `SELECT * FROM registration WHERE assignment_id = $1 ORDER BY ` + orderBy(ordering, "created_at ASC")
	var rows []registrationRow
	if err := repo.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	regs := make([]registration.Registration, 0, len(rows))
	for _, r := range rows {
		regs = append(regs, repo.unrowRegistration(r))
	}
	return regs, nil
}

func (repo registrationRepository) SetGrader(ctx context.Context, registrationID, graderID string) (registration.Registration, error) {
	query := `UPDATE registration SET grader_id = $1, updated_at = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, null.NewString(graderID, graderID != ""), time.Now().UTC(), registrationID)
	if err != nil {
		return registration.Registration{}, errors.Wrap(err, "setting grader")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registration.Registration{}, registration.ErrNotFound
	}
	return repo.GetRegistrationByID(ctx, registrationID)
}

func (repo registrationRepository) DeleteRegistration(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM registration WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting registration")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registration.ErrNotFound
	}
	return nil
}
