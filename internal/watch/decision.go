package watch

import (
	"errors"

	"github.com/obentoo/nightwatch/internal/common/semver"
)

// Skip reasons reported for packages that are not updated
const (
	ReasonPlatform        = "platform package"
	ReasonNotLocked       = "not in lock file"
	ReasonUnknownLatest   = "no release known to registry"
	ReasonInvalidVersion  = "unparseable version"
	ReasonInvalidRange    = "unparseable constraint"
	ReasonOutsideRange    = "latest release outside constraint"
	ReasonUpToDate        = "locked version is current"
	ReasonUpdateAvailable = "newer release within constraint"
)

// Decision is the outcome of comparing one package's versions
type Decision struct {
	Update bool
	Reason string
}

// Decide reports whether latest should replace locked under constraint.
// An empty locked or latest version means the value is unknown and never
// leads to an update, and neither does anything that fails to parse.
func Decide(constraint, locked, latest string) Decision {
	if locked == "" {
		return Decision{Reason: ReasonNotLocked}
	}
	if latest == "" {
		return Decision{Reason: ReasonUnknownLatest}
	}

	satisfied, err := semver.Satisfies(latest, constraint)
	if errors.Is(err, semver.ErrInvalidConstraint) {
		return Decision{Reason: ReasonInvalidRange}
	}
	if err != nil {
		return Decision{Reason: ReasonInvalidVersion}
	}
	if !satisfied {
		return Decision{Reason: ReasonOutsideRange}
	}

	newer, err := semver.GreaterThan(latest, locked)
	if err != nil {
		return Decision{Reason: ReasonInvalidVersion}
	}
	if !newer {
		return Decision{Reason: ReasonUpToDate}
	}

	return Decision{Update: true, Reason: ReasonUpdateAvailable}
}
