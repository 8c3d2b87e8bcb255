package registration

import (
	"fmt"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
)

// MatchResult classifies a proposed party against existing teams.
// A perfect match wins; otherwise any conflicts make the registration
// inadmissible; otherwise a new team is needed.
type MatchResult struct {
	Team      *Team      // set-equal membership, if any
	Conflicts []Conflict // students committed to other teams for this assignment
}

// MatchTeams compares the proposed member set against candidate teams (teams
// sharing at least one member with the party, dropped students excluded).
// registered reports which candidate team IDs already hold a registration for
// the assignment.
//
// Two set-equal candidates are duplicate teams: a data-integrity fault, never
// a normal outcome.
func MatchTeams(proposed []course.Student, candidates []Team, registered map[string]bool) (MatchResult, error) {
	want := make(map[string]struct{}, len(proposed))
	for _, s := range proposed {
		want[s.ID] = struct{}{}
	}

	var res MatchResult
	for i := range candidates {
		cand := &candidates[i]
		if setEqual(want, cand) {
			if res.Team != nil {
				return MatchResult{}, core.NewIntegrityError(fmt.Sprintf(
					"duplicate teams with identical membership: %q and %q", res.Team.Name, cand.Name))
			}
			res.Team = cand
			continue
		}
		if !registered[cand.ID] {
			continue // overlapping but uncommitted for this assignment; no obstacle
		}
		for _, m := range cand.Members {
			if _, ok := want[m.StudentID]; ok {
				res.Conflicts = append(res.Conflicts, Conflict{
					StudentID: m.StudentID,
					Username:  m.Username,
					TeamID:    cand.ID,
					TeamName:  cand.Name,
				})
			}
		}
	}
	if res.Team != nil {
		res.Conflicts = nil
	}
	return res, nil
}

func setEqual(want map[string]struct{}, t *Team) bool {
	if len(t.Members) != len(want) {
		return false
	}
	for _, m := range t.Members {
		if _, ok := want[m.StudentID]; !ok {
			return false
		}
	}
	return true
}
