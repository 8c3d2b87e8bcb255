package registration

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/kazi/core"
)

type Team struct {
	ID         string       `json:"id"`
	CourseID   string       `json:"course_id"`
	Name       string       `json:"name"`
	Extensions int          `json:"extensions"` // pool; only meaningful under the per-team policy
	Active     bool         `json:"active"`
	Members    []TeamMember `json:"members"`
	CreatedAt  time.Time    `json:"created_at"` // UTC
	UpdatedAt  time.Time    `json:"updated_at"` // UTC
}

// MemberIDs returns the member student IDs, sorted.
func (t Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.StudentID)
	}
	sort.Strings(ids)
	return ids
}

func (t Team) HasMember(studentID string) bool {
	for _, m := range t.Members {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}

func (t Team) HasMemberUsername(username string) bool {
	for _, m := range t.Members {
		if m.Username == username {
			return true
		}
	}
	return false
}

type TeamMember struct {
	TeamID    string `json:"team_id"`
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
	Confirmed bool   `json:"confirmed"`
}

type Registration struct {
	ID                string    `json:"id"`
	TeamID            string    `json:"team_id"`
	AssignmentID      string    `json:"assignment_id"`
	FinalSubmissionID string    `json:"final_submission_id,omitempty"` // empty: no final submission
	GraderID          string    `json:"grader_id,omitempty"`           // empty: grading not started
	CreatedAt         time.Time `json:"created_at"`                    // UTC
	UpdatedAt         time.Time `json:"updated_at"`                    // UTC
}

func (r Registration) HasFinalSubmission() bool {
	return r.FinalSubmissionID != ""
}

func (r Registration) GradingStarted() bool {
	return r.GraderID != ""
}

// NewRegistration is a request to register the requester and their partners
// as a team for an assignment.
type NewRegistration struct {
	AssignmentID string   `json:"assignment_id" validate:"required"`
	Requester    string   `json:"requester" validate:"required"` // username
	Partners     []string `json:"partners"`                      // usernames, without the requester
	TeamName     string   `json:"team_name" validate:"omitempty,min=2"`
}

func (nr *NewRegistration) Validate() error {
	nr.Requester = core.CleanString(nr.Requester, true /* lower */)
	for i, p := range nr.Partners {
		nr.Partners[i] = core.CleanString(p, true /* lower */)
	}
	nr.TeamName = core.CleanString(nr.TeamName, true /* lower */)
	return core.Validate.Struct(nr)
}

// Result describes the outcome of a successful registration.
type Result struct {
	Team              Team         `json:"team"`
	Registration      Registration `json:"registration"`
	NewTeam           bool         `json:"new_team"`
	AlreadyRegistered bool         `json:"already_registered"`
	Members           []TeamMember `json:"members"`
}

// Conflict names a student already committed to a different team for the
// assignment.
type Conflict struct {
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
	TeamID    string `json:"team_id"`
	TeamName  string `json:"team_name"`
}

// ConflictError rejects a registration whose party overlaps teams already
// registered for the assignment. Every conflicting student is named.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s is already registered with team %q", c.Username, c.TeamName))
	}
	return strings.Join(parts, "; ")
}

// InvalidPartySizeError rejects a party outside the assignment's team size bounds.
type InvalidPartySizeError struct {
	Size, Min, Max int
}

func (e *InvalidPartySizeError) Error() string {
	return fmt.Sprintf("this assignment requires teams of %d to %d students (got %d)", e.Min, e.Max, e.Size)
}

// defaultTeamName joins the sorted member usernames with hyphens.
func defaultTeamName(members []TeamMember) string {
	unames := make([]string, 0, len(members))
	for _, m := range members {
		unames = append(unames, m.Username)
	}
	sort.Strings(unames)
	return strings.Join(unames, "-")
}
