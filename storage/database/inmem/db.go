// Package inmemdb provides map-backed repositories for tests and local
// development. A single DB is shared by all repositories so cross-entity
// queries (ledger totals, membership joins) see one consistent state.
package inmemdb

import (
	"sync"

	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
)

type DB struct {
	mu sync.RWMutex

	users         map[string]user.User
	courses       map[string]course.Course
	assignments   map[string]course.Assignment
	students      map[string]course.Student
	teams         map[string]registration.Team
	registrations map[string]registration.Registration
	submissions   map[string]submission.Submission
}

func NewDB() *DB {
	return &DB{
		users:         make(map[string]user.User),
		courses:       make(map[string]course.Course),
		assignments:   make(map[string]course.Assignment),
		students:      make(map[string]course.Student),
		teams:         make(map[string]registration.Team),
		registrations: make(map[string]registration.Registration),
		submissions:   make(map[string]submission.Submission),
	}
}

func copyTeam(t registration.Team) registration.Team {
	members := make([]registration.TeamMember, len(t.Members))
	copy(members, t.Members)
	t.Members = members
	return t
}
