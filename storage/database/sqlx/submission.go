package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
)

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

type submissionRow struct {
	ID             string    `db:"id"`
	RegistrationID string    `db:"registration_id"`
	CommitSHA      string    `db:"commit_sha"`
	ExtensionsUsed int       `db:"extensions_used"`
	SubmittedAt    null.Time `db:"submitted_at"`
	CreatedAt      null.Time `db:"created_at"`
}

func (repo submissionRepository) unrow(r submissionRow) submission.Submission {
	return submission.Submission{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		CommitSHA:      r.CommitSHA,
		ExtensionsUsed: r.ExtensionsUsed,
		SubmittedAt:    r.SubmittedAt.Time,
		CreatedAt:      r.CreatedAt.Time,
	}
}

func (repo submissionRepository) GetSubmissionByID(ctx context.Context, id string) (submission.Submission, error) {
	var r submissionRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "getting submission by id")
	}
	return repo.unrow(r), nil
}

// CreateFinalSubmission inserts the submission, repoints the registration and
// re-checks the ledger guard in one serializable transaction. The caller's
// availability check ran on stale reads; re-summing the usage here, under a
// lock on the team row, is what makes two concurrent submissions unable to
// jointly overdraw the pool.
func (repo submissionRepository) CreateFinalSubmission(ctx context.Context, sub submission.Submission, guard submission.LedgerGuard) (submission.Submission, error) {
	tx, err := repo.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// concurrent submissions spending the same pool serialize here
	var teamID string
	if err = tx.GetContext(ctx, &teamID, `SELECT id FROM team WHERE id = $1 FOR UPDATE`, guard.TeamID); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, registration.ErrTeamNotFound, "locking team")
	}

	sub.ID = uuid.New().String()
	query := `INSERT INTO submission (id, registration_id, commit_sha, extensions_used, submitted_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, query,
		sub.ID, sub.RegistrationID, sub.CommitSHA, sub.ExtensionsUsed, sub.SubmittedAt.UTC(), sub.CreatedAt.UTC()); err != nil {
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}

	query = `UPDATE registration SET final_submission_id = $1, updated_at = $2 WHERE id = $3`
	res, err := tx.ExecContext(ctx, query, sub.ID, time.Now().UTC(), sub.RegistrationID)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "updating final submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return submission.Submission{}, submission.ErrNotFound
	}

	if err = checkLedgerGuard(ctx, tx, guard); err != nil {
		return submission.Submission{}, err
	}

	if err = tx.Commit(); err != nil {
		return submission.Submission{}, errors.Wrap(err, "committing submission")
	}
	return sub, nil
}

// checkLedgerGuard re-sums the usage within the transaction's own view and
// rejects the write if any limit is exceeded.
func checkLedgerGuard(ctx context.Context, tx *sqlx.Tx, guard submission.LedgerGuard) error {
	if guard.StudentLimits == nil {
		used, err := teamExtensionsUsed(ctx, tx, guard.TeamID)
		if err != nil {
			return err
		}
		if used > guard.TeamLimit {
			return submission.ErrLedgerConflict
		}
		return nil
	}
	for id, limit := range guard.StudentLimits {
		used, err := studentExtensionsUsed(ctx, tx, id)
		if err != nil {
			return err
		}
		if used > limit {
			return submission.ErrLedgerConflict
		}
	}
	return nil
}

func (repo submissionRepository) ClearFinalSubmission(ctx context.Context, registrationID string) error {
	query := `UPDATE registration SET final_submission_id = NULL, updated_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, time.Now().UTC(), registrationID); err != nil {
		return errors.Wrap(err, "clearing final submission")
	}
	return nil
}

func (repo submissionRepository) TeamExtensionsUsed(ctx context.Context, teamID string) (int, error) {
	return teamExtensionsUsed(ctx, repo.db, teamID)
}

func (repo submissionRepository) StudentExtensionsUsed(ctx context.Context, studentID string) (int, error) {
	return studentExtensionsUsed(ctx, repo.db, studentID)
}

func teamExtensionsUsed(ctx context.Context, q sqlx.QueryerContext, teamID string) (int, error) {
	var used int
	query := `SELECT COALESCE(SUM(s.extensions_used), 0)
			  FROM registration r
			  JOIN submission s ON s.id = r.final_submission_id
			  WHERE r.team_id = $1`
	if err := sqlx.GetContext(ctx, q, &used, query, teamID); err != nil {
		return 0, errors.Wrap(err, "summing team extensions")
	}
	return used, nil
}

func studentExtensionsUsed(ctx context.Context, q sqlx.QueryerContext, studentID string) (int, error) {
	var used int
	query := `SELECT COALESCE(SUM(s.extensions_used), 0)
			  FROM team_member tm
			  JOIN registration r ON r.team_id = tm.team_id
			  JOIN submission s ON s.id = r.final_submission_id
			  WHERE tm.student_id = $1`
	if err := sqlx.GetContext(ctx, q, &used, query, studentID); err != nil {
		return 0, errors.Wrap(err, "summing student extensions")
	}
	return used, nil
}
