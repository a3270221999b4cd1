package dispatch

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/identity"
	"github.com/vidfriends/genbridge/internal/models"
)

// Diagnostics is a read-only snapshot of the daemon's credential state. The
// token itself is never included, only a fingerprint.
type Diagnostics struct {
	CheckedAt time.Time `json:"checkedAt"`

	HasToken        bool       `json:"hasToken"`
	TokenLength     int        `json:"tokenLength"`
	TokenShapeValid bool       `json:"tokenShapeValid"`
	Fingerprint     string     `json:"fingerprint,omitempty"`
	IssuedAt        *time.Time `json:"issuedAt,omitempty"`
	AgeSeconds      int64      `json:"ageSeconds"`
	LikelyExpired   bool       `json:"likelyExpired"`
	MarginSeconds   int64      `json:"stalenessMarginSeconds"`

	User   *models.Subject `json:"user,omitempty"`
	Claims map[string]any  `json:"claims,omitempty"`

	StoreBackend string `json:"storeBackend,omitempty"`
	StoreError   string `json:"storeError,omitempty"`
	AgentURL     string `json:"agentUrl,omitempty"`
	APIEndpoint  string `json:"apiEndpoint,omitempty"`
	Origin       string `json:"origin,omitempty"`
}

func (d *Dispatcher) diagnostics(ctx context.Context) *Diagnostics {
	now := d.now()
	diag := &Diagnostics{
		CheckedAt:     now.UTC(),
		LikelyExpired: true,
		MarginSeconds: int64(credentials.StalenessMargin / time.Second),
		StoreBackend:  d.cfg.StoreBackend,
		AgentURL:      d.cfg.AgentURL,
		APIEndpoint:   d.cfg.APIEndpoint,
		Origin:        d.cfg.Origin,
	}

	stored, err := d.deps.Store.Get(ctx)
	if err != nil {
		diag.StoreError = err.Error()
		return diag
	}
	if stored == nil {
		return diag
	}

	subject := stored.Subject
	diag.User = &subject
	diag.HasToken = stored.Token != ""
	diag.TokenLength = len(stored.Token)
	diag.TokenShapeValid = credentials.ValidTokenShape(stored.Token)
	if diag.HasToken {
		diag.Fingerprint = Fingerprint(stored.Token)
	}
	if !stored.IssuedAt.IsZero() {
		issued := stored.IssuedAt.UTC()
		diag.IssuedAt = &issued
		diag.AgeSeconds = int64(credentials.Age(stored.IssuedAt, now) / time.Second)
	}
	diag.LikelyExpired = credentials.IsLikelyExpired(stored.IssuedAt, now)

	if claims, err := identity.ParseClaims(stored.Token); err == nil {
		diag.Claims = claims
	}

	return diag
}

// Fingerprint returns a short stable digest identifying token in logs and
// diagnostics without revealing it.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
