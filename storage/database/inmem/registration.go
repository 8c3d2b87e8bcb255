package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/registration"
)

type registrationRepository struct {
	db *DB
}

var _ registration.Repository = (*registrationRepository)(nil)

func NewRegistrationRepository(db *DB) *registrationRepository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) FindTeamsWithAnyMember(ctx context.Context, courseID string, studentIDs []string) ([]registration.Team, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	teams := make([]registration.Team, 0)
	for _, t := range repo.db.teams {
		if t.CourseID != courseID || !t.Active {
			continue
		}
		for _, m := range t.Members {
			if wanted[m.StudentID] {
				teams = append(teams, repo.loadTeam(t))
				break
			}
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// loadTeam drops members whose student has dropped the course, matching the
// SQL repositories' member join.
func (repo *registrationRepository) loadTeam(t registration.Team) registration.Team {
	t = copyTeam(t)
	members := t.Members[:0]
	for _, m := range t.Members {
		if s, ok := repo.db.students[m.StudentID]; ok && s.Dropped {
			continue
		}
		members = append(members, m)
	}
	t.Members = members
	return t
}

func (repo *registrationRepository) GetTeamByID(ctx context.Context, id string) (registration.Team, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.teams[id]; ok {
		return repo.loadTeam(t), nil
	}
	return registration.Team{}, registration.ErrTeamNotFound
}

func (repo *registrationRepository) TeamNameTaken(ctx context.Context, courseID, name string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.teams {
		if t.CourseID == courseID && t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (repo *registrationRepository) CreateTeam(ctx context.Context, team registration.Team, reg registration.Registration) (registration.Team, registration.Registration, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// matching ran outside the lock; an identical team may have been
	// committed since
	wanted := make(map[string]bool, len(team.Members))
	for _, m := range team.Members {
		wanted[m.StudentID] = true
	}
	for _, t := range repo.db.teams {
		if t.CourseID != team.CourseID || !t.Active || len(t.Members) != len(team.Members) {
			continue
		}
		same := true
		for _, m := range t.Members {
			if !wanted[m.StudentID] {
				same = false
				break
			}
		}
		if same {
			return registration.Team{}, registration.Registration{}, registration.ErrTeamExists
		}
	}

	team = copyTeam(team)
	team.ID = uuid.New().String()
	for i := range team.Members {
		team.Members[i].TeamID = team.ID
	}
	repo.db.teams[team.ID] = team

	reg.ID = uuid.New().String()
	reg.TeamID = team.ID
	repo.db.registrations[reg.ID] = reg

	return copyTeam(team), reg, nil
}

func (repo *registrationRepository) ConfirmMembership(ctx context.Context, teamID, studentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t, ok := repo.db.teams[teamID]
	if !ok {
		return registration.ErrTeamNotFound
	}
	t = copyTeam(t)
	for i, m := range t.Members {
		if m.StudentID == studentID {
			t.Members[i].Confirmed = true
		}
	}
	t.UpdatedAt = time.Now().UTC()
	repo.db.teams[teamID] = t
	return nil
}

func (repo *registrationRepository) CreateRegistration(ctx context.Context, reg registration.Registration) (registration.Registration, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.registrations {
		if existing.TeamID == reg.TeamID && existing.AssignmentID == reg.AssignmentID {
			return registration.Registration{}, core.NewIntegrityError("duplicate registration for team " + reg.TeamID)
		}
	}
	reg.ID = uuid.New().String()
	repo.db.registrations[reg.ID] = reg
	return reg, nil
}

func (repo *registrationRepository) GetRegistrationByID(ctx context.Context, id string) (registration.Registration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if reg, ok := repo.db.registrations[id]; ok {
		return reg, nil
	}
	return registration.Registration{}, registration.ErrNotFound
}

func (repo *registrationRepository) GetRegistration(ctx context.Context, teamID, assignmentID string) (registration.Registration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, reg := range repo.db.registrations {
		if reg.TeamID == teamID && reg.AssignmentID == assignmentID {
			return reg, nil
		}
	}
	return registration.Registration{}, registration.ErrNotFound
}

func (repo *registrationRepository) RegisteredTeamIDs(ctx context.Context, assignmentID string, teamIDs []string) (map[string]bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(teamIDs))
	for _, id := range teamIDs {
		wanted[id] = true
	}
	registered := make(map[string]bool)
	for _, reg := range repo.db.registrations {
		if reg.AssignmentID == assignmentID && wanted[reg.TeamID] {
			registered[reg.TeamID] = true
		}
	}
	return registered, nil
}

func (repo *registrationRepository) QueryRegistrations(ctx context.Context, assignmentID string, ordering ...core.DBOrdering) ([]registration.Registration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	regs := make([]registration.Registration, 0)
	for _, reg := range repo.db.registrations {
		if reg.AssignmentID == assignmentID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].CreatedAt.Before(regs[j].CreatedAt) })
	return regs, nil
}

func (repo *registrationRepository) SetGrader(ctx context.Context, registrationID, graderID string) (registration.Registration, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	reg, ok := repo.db.registrations[registrationID]
	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	reg.GraderID = graderID
	reg.UpdatedAt = time.Now().UTC()
	repo.db.registrations[registrationID] = reg
	return reg, nil
}

func (repo *registrationRepository) DeleteRegistration(ctx context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.registrations[id]; !ok {
		return registration.ErrNotFound
	}
	delete(repo.db.registrations, id)
	return nil
}
