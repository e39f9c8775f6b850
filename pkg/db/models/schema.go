package models

// CurrentLicenseIndexSQL is the partial unique index that keeps one live
// license per user. Postgres gets it from migrations; GORM-managed databases
// apply it after AutoMigrate.
const CurrentLicenseIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_user_license_details_current
ON user_license_details (user_id)
WHERE status IN ('active', 'renew', 'past_due', 'incomplete')`

// Schema lists every persisted model in dependency order.
func Schema() []any {
	return []any{
		&User{},
		&LicenseTier{},
		&Feature{},
		&FeatureLicenseMapping{},
		&UserLicenseDetail{},
		&Invoice{},
		&OutboxEvent{},
	}
}
