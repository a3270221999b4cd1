package models

import (
	"strings"
	"time"
)

// Subject identifies the account a bearer token was issued for.
type Subject struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Credential is the bearer token held on behalf of the signed-in subject.
type Credential struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issuedAt"`
	Subject  Subject   `json:"subject"`
}

// Complete reports whether every part of the credential is present.
func (c Credential) Complete() bool {
	return c.Token != "" && !c.IssuedAt.IsZero() && strings.TrimSpace(c.Subject.ID) != ""
}

// GenerationJob describes one outbound generation request. Jobs live only
// for the duration of a single download command.
type GenerationJob struct {
	ID         string
	TargetURL  string
	VideoURL   string
	Prompt     string
	Count      int
	Duration   int
	Size       string
	Language   string
	UserID     string
	UploadedBy string
}

// Generation option sets offered to users.
const (
	MinCount = 1
	MaxCount = 5

	DefaultCount    = 1
	DefaultDuration = 8
	DefaultSize     = "720x1280"
	DefaultLanguage = "english"
)

// Durations lists the clip lengths in seconds the API accepts.
var Durations = []int{4, 8, 12}

// Sizes lists the output resolutions the API accepts.
var Sizes = []string{"720x1280", "1280x720", "1024x1792", "1792x1024"}
