package licenses

import (
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// State is the derived license state of a user. It is computed from the
// current record's status, dates and cancellation flags; it is never stored.
type State string

const (
	StateNoLicense         State = "no_license"
	StateTrialActive       State = "trial_active"
	StateTrialEnded        State = "trial_ended"
	StateActive            State = "active"
	StateExpired           State = "expired"
	StatePendingRenewal    State = "pending_renewal"
	StateIncompletePayment State = "incomplete_payment"
	StateInactive          State = "inactive"
)

func (s State) String() string {
	return string(s)
}

// Entitled reports whether the state grants feature access.
func (s State) Entitled() bool {
	switch s {
	case StateActive, StateTrialActive, StatePendingRenewal:
		return true
	default:
		return false
	}
}

// StateOf maps a persisted record onto its derived state.
func StateOf(record *models.UserLicenseDetail) State {
	if record == nil {
		return StateNoLicense
	}
	switch record.Status {
	case enums.LicenseStatusActive:
		if record.IsTrial() {
			return StateTrialActive
		}
		return StateActive
	case enums.LicenseStatusRenew:
		return StatePendingRenewal
	case enums.LicenseStatusPastDue, enums.LicenseStatusIncomplete:
		return StateIncompletePayment
	case enums.LicenseStatusExpired:
		return StateExpired
	case enums.LicenseStatusTrialPeriodEnded:
		return StateTrialEnded
	case enums.LicenseStatusInactive:
		return StateInactive
	default:
		return StateNoLicense
	}
}

// Resolution is the answer to "what can this user do right now".
// License is nil for StateNoLicense.
type Resolution struct {
	State   State
	License *models.UserLicenseDetail
}
