package submission

import (
	"fmt"
	"time"
)

// An extension buys one full day past the deadline (and past any grace
// period). Partial days round up.
const extensionUnit = 24 * time.Hour

// ExtensionsNeeded returns the number of extensions a submission at
// submittedAt must spend, given the assignment deadline and grace period.
// Zero for anything at or before deadline+grace. All arithmetic happens on
// UTC instants; rendering in a local timezone is a presentation concern.
func ExtensionsNeeded(deadline time.Time, grace time.Duration, submittedAt time.Time) int {
	delta := submittedAt.UTC().Sub(deadline.UTC().Add(grace))
	if delta <= 0 {
		return 0
	}
	needed := int(delta / extensionUnit)
	if delta%extensionUnit > 0 {
		needed++
	}
	return needed
}

// InsufficientExtensionsError rejects a submission needing more extensions
// than the team has left (prior-submission credit included in Available).
type InsufficientExtensionsError struct {
	Needed    int
	Available int
}

func (e *InsufficientExtensionsError) Error() string {
	return fmt.Sprintf("not enough extensions: %d needed, %d available", e.Needed, e.Available)
}

// WrongExtensionCountError rejects a submission requesting a different number
// of extensions than the rule computes. It guards against clients
// miscounting silently.
type WrongExtensionCountError struct {
	Requested int
	Needed    int
}

func (e *WrongExtensionCountError) Error() string {
	return fmt.Sprintf("wrong extension count: %d requested, %d needed", e.Requested, e.Needed)
}

// ValidateSubmission decides whether a submission attempt is admissible and
// returns the number of extensions to charge.
//
// creditedFromPrior is the extensions_used of the final submission being
// superseded (0 if none); it is added back to available before the comparison
// so a resubmission never pays twice.
//
// When override is set (privileged callers only), requested is charged as-is
// and the requested==needed check is skipped; the availability check still
// applies, so an override can never overdraw the ledger.
func ValidateSubmission(deadline time.Time, grace time.Duration, submittedAt time.Time,
	requested, available, creditedFromPrior int, override bool) (int, error) {

	needed := ExtensionsNeeded(deadline, grace, submittedAt)
	charge := needed
	if override {
		charge = requested
	} else if requested != needed {
		return 0, &WrongExtensionCountError{Requested: requested, Needed: needed}
	}
	if available+creditedFromPrior < charge {
		return 0, &InsufficientExtensionsError{Needed: charge, Available: available + creditedFromPrior}
	}
	return charge, nil
}
