package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil)

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) GetSubmissionByID(ctx context.Context, id string) (submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return sub, nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) CreateFinalSubmission(ctx context.Context, sub submission.Submission, guard submission.LedgerGuard) (submission.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	reg, ok := repo.db.registrations[sub.RegistrationID]
	if !ok {
		return submission.Submission{}, registration.ErrNotFound
	}
	prev := reg

	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = sub

	reg.FinalSubmissionID = sub.ID
	reg.UpdatedAt = time.Now().UTC()
	repo.db.registrations[reg.ID] = reg

	// the caller's availability check ran outside the lock; re-check and
	// back out if a concurrent writer spent the pool first
	if repo.guardViolated(guard) {
		delete(repo.db.submissions, sub.ID)
		repo.db.registrations[prev.ID] = prev
		return submission.Submission{}, submission.ErrLedgerConflict
	}

	return sub, nil
}

func (repo *submissionRepository) guardViolated(guard submission.LedgerGuard) bool {
	if guard.StudentLimits == nil {
		return repo.teamExtensionsUsed(guard.TeamID) > guard.TeamLimit
	}
	for id, limit := range guard.StudentLimits {
		if repo.studentExtensionsUsed(id) > limit {
			return true
		}
	}
	return false
}

func (repo *submissionRepository) ClearFinalSubmission(ctx context.Context, registrationID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	reg, ok := repo.db.registrations[registrationID]
	if !ok {
		return registration.ErrNotFound
	}
	reg.FinalSubmissionID = ""
	reg.UpdatedAt = time.Now().UTC()
	repo.db.registrations[registrationID] = reg
	return nil
}

func (repo *submissionRepository) TeamExtensionsUsed(ctx context.Context, teamID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.teamExtensionsUsed(teamID), nil
}

func (repo *submissionRepository) teamExtensionsUsed(teamID string) int {
	var used int
	for _, reg := range repo.db.registrations {
		if reg.TeamID != teamID || !reg.HasFinalSubmission() {
			continue
		}
		if sub, ok := repo.db.submissions[reg.FinalSubmissionID]; ok {
			used += sub.ExtensionsUsed
		}
	}
	return used
}

func (repo *submissionRepository) StudentExtensionsUsed(ctx context.Context, studentID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.studentExtensionsUsed(studentID), nil
}

func (repo *submissionRepository) studentExtensionsUsed(studentID string) int {
	var used int
	for _, t := range repo.db.teams {
		if t.HasMember(studentID) {
			used += repo.teamExtensionsUsed(t.ID)
		}
	}
	return used
}
