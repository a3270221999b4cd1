package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsLikelyExpired(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{"missingTimestamp", time.Time{}, true},
		{"justIssued", now, false},
		{"tenMinutes", now.Add(-10 * time.Minute), false},
		{"exactlyAtMargin", now.Add(-StalenessMargin), false},
		{"justPastMargin", now.Add(-StalenessMargin - time.Second), true},
		{"pastValidity", now.Add(-CredentialValidity), true},
		{"clockSkewFuture", now.Add(time.Minute), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLikelyExpired(tc.issuedAt, now))
		})
	}
}

func TestStalenessMarginShorterThanValidity(t *testing.T) {
	assert.Less(t, StalenessMargin, CredentialValidity)
}

func TestAgeNeverNegative(t *testing.T) {
	now := time.Now()
	assert.Equal(t, time.Duration(0), Age(now.Add(time.Hour), now))
	assert.Equal(t, time.Duration(0), Age(time.Time{}, now))
	assert.Equal(t, 5*time.Minute, Age(now.Add(-5*time.Minute), now))
}

func TestValidTokenShape(t *testing.T) {
	long := make([]byte, MinTokenLength)
	for i := range long {
		long[i] = 'a'
	}

	assert.True(t, ValidTokenShape(string(long)))
	assert.False(t, ValidTokenShape(""))
	assert.False(t, ValidTokenShape("   "))
	assert.False(t, ValidTokenShape(string(long[:MinTokenLength-1])))
	assert.False(t, ValidTokenShape(string(long[:50])+" "+string(long[:50])))
}
