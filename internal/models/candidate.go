package models

import "time"

// Launch candidate terminal/initial states.
const (
	CandidateNew      = "new"
	CandidateAccepted = "accepted"
	CandidateRejected = "rejected"
	CandidateExpired  = "expired"
)

// LaunchCandidate is a normalized discovery event. Unique by (chain, source, token_mint).
type LaunchCandidate struct {
	ID                int64     `json:"id" db:"id"`
	Chain             string    `json:"chain" db:"chain"`
	Source            string    `json:"source" db:"source"`
	TokenMint         string    `json:"token_mint" db:"token_mint"`
	Name              string    `json:"name,omitempty" db:"name"`
	Symbol            string    `json:"symbol,omitempty" db:"symbol"`
	Score             float64   `json:"score" db:"score"`
	Deployer          string    `json:"deployer,omitempty" db:"deployer"`
	BondingCurve      string    `json:"bonding_curve,omitempty" db:"bonding_curve"`
	InitialLiquidity  float64   `json:"initial_liquidity,omitempty" db:"initial_liquidity"`
	RawPayload        JSONMap   `json:"raw_payload,omitempty" db:"raw_payload"`
	Status            string    `json:"status" db:"status"`
	FirstSeenAt       time.Time `json:"first_seen_at" db:"first_seen_at"`
}

// Expired reports whether the candidate has aged past maxAge as of now.
func (c *LaunchCandidate) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.FirstSeenAt) >= maxAge
}
