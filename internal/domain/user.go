package domain

import "time"

// Tier is a subscription level that sets the daily analysis allowance.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// User owns agents and spends analysis credits.
// Corresponds to the users table in PostgreSQL.
type User struct {
	ID               string
	DisplayName      string
	Tier             Tier
	CreditsRemaining int
	CreditsResetAt   time.Time
	TotalAnalyses    int
	APITokenHash     string // hex sha256 of the bearer token
	CreatedAt        time.Time
}
