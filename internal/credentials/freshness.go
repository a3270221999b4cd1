package credentials

import "time"

const (
	// CredentialValidity is how long the identity provider honours a token.
	CredentialValidity = 60 * time.Minute
	// StalenessMargin is the local expiry, kept shorter than CredentialValidity
	// so a token is retired before the provider rejects it.
	StalenessMargin = 50 * time.Minute
)

// IsLikelyExpired reports whether a token issued at issuedAt should no longer
// be trusted. A missing timestamp counts as expired.
func IsLikelyExpired(issuedAt, now time.Time) bool {
	if issuedAt.IsZero() {
		return true
	}
	return Age(issuedAt, now) > StalenessMargin
}

// Age returns how long ago the token was issued, never negative.
func Age(issuedAt, now time.Time) time.Duration {
	if issuedAt.IsZero() {
		return 0
	}
	age := now.Sub(issuedAt)
	if age < 0 {
		return 0
	}
	return age
}
