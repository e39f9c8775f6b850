package enums

import "fmt"

// LicenseStatus maps to the license_status enum in Postgres.
type LicenseStatus string

const (
	LicenseStatusActive           LicenseStatus = "active"
	LicenseStatusExpired          LicenseStatus = "expired"
	LicenseStatusIncomplete       LicenseStatus = "incomplete"
	LicenseStatusPastDue          LicenseStatus = "past_due"
	LicenseStatusRenew            LicenseStatus = "renew"
	LicenseStatusTrialPeriodEnded LicenseStatus = "trial_period_ended"
	LicenseStatusInactive         LicenseStatus = "inactive"
)

var validLicenseStatuses = []LicenseStatus{
	LicenseStatusActive,
	LicenseStatusExpired,
	LicenseStatusIncomplete,
	LicenseStatusPastDue,
	LicenseStatusRenew,
	LicenseStatusTrialPeriodEnded,
	LicenseStatusInactive,
}

// CurrentLicenseStatuses are the statuses of a user's single live record.
// A partial unique index on user_license_details enforces at most one.
var CurrentLicenseStatuses = []LicenseStatus{
	LicenseStatusActive,
	LicenseStatusRenew,
	LicenseStatusPastDue,
	LicenseStatusIncomplete,
}

// String implements fmt.Stringer.
func (l LicenseStatus) String() string {
	return string(l)
}

// IsValid reports whether the value matches the canonical license_status enum.
func (l LicenseStatus) IsValid() bool {
	for _, candidate := range validLicenseStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsCurrent reports whether the status belongs to a live record.
func (l LicenseStatus) IsCurrent() bool {
	for _, candidate := range CurrentLicenseStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLicenseStatus converts raw input into LicenseStatus.
func ParseLicenseStatus(value string) (LicenseStatus, error) {
	for _, candidate := range validLicenseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license status %q", value)
}

// LicensePlan maps to the license_plan enum in Postgres.
type LicensePlan string

const (
	LicensePlanTrial      LicensePlan = "trial"
	LicensePlanMonthly    LicensePlan = "monthly"
	LicensePlanQuarterly  LicensePlan = "quarterly"
	LicensePlanHalfYearly LicensePlan = "half_yearly"
	LicensePlanYearly     LicensePlan = "yearly"
	LicensePlanCustom     LicensePlan = "custom"
)

var validLicensePlans = []LicensePlan{
	LicensePlanTrial,
	LicensePlanMonthly,
	LicensePlanQuarterly,
	LicensePlanHalfYearly,
	LicensePlanYearly,
	LicensePlanCustom,
}

// String implements fmt.Stringer.
func (l LicensePlan) String() string {
	return string(l)
}

// IsValid reports whether the value matches the canonical license_plan enum.
func (l LicensePlan) IsValid() bool {
	for _, candidate := range validLicensePlans {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLicensePlan converts raw input into LicensePlan.
func ParseLicensePlan(value string) (LicensePlan, error) {
	for _, candidate := range validLicensePlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license plan %q", value)
}
