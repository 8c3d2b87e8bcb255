package sqlxrepos

import (
	"strings"

	"github.com/trezcool/kazi/core"
)

// orderBy renders an ORDER BY clause body from the given orderings, falling
// back to def. Fields come from repository code, never from user input.
func orderBy(ords []core.DBOrdering, def string) string {
	if len(ords) == 0 {
		return def
	}
	parts := make([]string, 0, len(ords))
	for _, ord := range ords {
		parts = append(parts, ord.String())
	}
	return strings.Join(parts, ", ")
}
