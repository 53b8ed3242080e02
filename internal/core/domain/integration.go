package domain

import "time"

// IntegrationStatus represents the health state of a roster integration
type IntegrationStatus string

const (
	IntegrationStatusActive IntegrationStatus = "active"
	IntegrationStatusPaused IntegrationStatus = "paused"
	IntegrationStatusError  IntegrationStatus = "error"
)

// RateLimits holds per-integration admission limits.
// Zero values mean "use engine defaults".
type RateLimits struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	RequestsPerHour   int `json:"requests_per_hour,omitempty"`
}

// Integration is a connection to an external roster system
// (student/class/enrollment data).
type Integration struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	ProviderType string            `json:"provider_type"` // e.g. "clever", "classlink", "oneroster"
	Enabled      bool              `json:"enabled"`
	Status       IntegrationStatus `json:"status"`
	RateLimits   RateLimits        `json:"rate_limits"`

	// WebhookSecretHash is the bcrypt hash of the shared secret presented
	// by inbound webhook calls
	WebhookSecretHash string `json:"-"`

	// LastSuccessfulSync is advanced by the engine; nil means never synced
	LastSuccessfulSync *time.Time `json:"last_successful_sync,omitempty"`

	// ErrorCount increments once per failed sync attempt and resets to
	// zero on success
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the integration may accept sync jobs.
func (i *Integration) Active() bool {
	return i != nil && i.Enabled && i.Status == IntegrationStatusActive
}
