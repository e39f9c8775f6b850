package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateUserLicense OutboxAggregateType = "user_license"
	AggregateLicenseTier OutboxAggregateType = "license_tier"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUserLicense,
	AggregateLicenseTier,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventLicenseTrialGranted     OutboxEventType = "license.trial_granted"
	EventLicenseExpired          OutboxEventType = "license.expired"
	EventLicenseRenewalPending   OutboxEventType = "license.renewal_pending"
	EventLicenseUpgraded         OutboxEventType = "license.upgraded"
	EventLicenseSubscriptionSync OutboxEventType = "license.subscription_synced"
	EventLicenseDeactivated      OutboxEventType = "license.deactivated"
	EventLicenseTierChanged      OutboxEventType = "license.tier_reconciled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLicenseTrialGranted,
	EventLicenseExpired,
	EventLicenseRenewalPending,
	EventLicenseUpgraded,
	EventLicenseSubscriptionSync,
	EventLicenseDeactivated,
	EventLicenseTierChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
