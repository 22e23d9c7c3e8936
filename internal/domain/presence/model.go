package presence

import "time"

// Sample is one advertiser observation at one sampling tick. Only observed
// advertisers are written; absence is implied by a missing row.
type Sample struct {
	TargetID   string    `json:"target_id"`
	Advertiser string    `json:"advertiser"`
	Timestamp  time.Time `json:"timestamp"`
	Appeared   bool      `json:"appeared"`
}

// Summary is an advertiser's hour-of-day presence over the trailing day.
// FirstHour and LastHour are nil when the advertiser was never seen present.
type Summary struct {
	Advertiser   string `json:"advertiser"`
	HoursPresent int    `json:"hours_present"`
	FirstHour    *int   `json:"first_hour"`
	LastHour     *int   `json:"last_hour"`
}

// Outcome reports what a sampling call did for one target
type Outcome string

const (
	OutcomeSampled Outcome = "sampled"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// BatchResult tallies one pass over every tracked target
type BatchResult struct {
	Sampled int `json:"sampled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
