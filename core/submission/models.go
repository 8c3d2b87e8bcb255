package submission

import (
	"time"

	"github.com/trezcool/kazi/core"
)

type Submission struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	CommitSHA      string    `json:"commit_sha"`
	ExtensionsUsed int       `json:"extensions_used"`
	SubmittedAt    time.Time `json:"submitted_at"` // UTC
	CreatedAt      time.Time `json:"created_at"`   // UTC
}

// NewSubmission is a submission attempt for a registration. The commit is
// trusted to exist; the git-hosting check happens upstream.
type NewSubmission struct {
	CommitSHA           string `json:"commit_sha" validate:"required,min=7,max=40,hexadecimal"`
	ExtensionsRequested int    `json:"extensions_requested" validate:"min=0"`
	// ExtensionsOverride forces the charge to a staff-chosen count,
	// skipping the requested==needed check. Staff only.
	ExtensionsOverride *int `json:"extensions_override,omitempty"`
	DryRun             bool `json:"dry_run"`
}

func (ns *NewSubmission) Validate() error {
	ns.CommitSHA = core.CleanString(ns.CommitSHA, true /* lower */)
	return core.Validate.Struct(ns)
}

// Result reports an accepted (or dry-run-accepted) submission.
type Result struct {
	Submission Submission `json:"submission,omitempty"` // zero value on dry runs
	Charged    int        `json:"charged"`
	Needed     int        `json:"needed"`
	Available  int        `json:"available"` // before the charge, prior credit included
	DryRun     bool       `json:"dry_run"`
}

// Balance is a team's or student's remaining extension allowance.
type Balance struct {
	Policy    string `json:"policy"`
	Available int    `json:"available"`
}

// LedgerGuard restates the extension limits an accepted submission must
// respect. Repositories re-verify it inside the write transaction, so two
// concurrent submissions validated against the same stale reads cannot
// jointly overdraw a pool.
type LedgerGuard struct {
	TeamID    string
	TeamLimit int // granted pool, per-team policy
	// StudentLimits maps student ID to granted extensions; set under the
	// per-student policy, nil under per-team.
	StudentLimits map[string]int
}
