package auction

import (
	"time"

	"adintel/internal/domain/serp"
)

// Row is the pairwise comparison of two advertisers over a window. Rates are
// fractions of every snapshot in the window, so a pair that never overlaps
// reports zero rather than undefined.
type Row struct {
	AdvertiserA       string  `json:"advertiser_a"`
	AdvertiserB       string  `json:"advertiser_b"`
	OverlapRate       float64 `json:"overlap_rate"`
	OutrankingShareAB float64 `json:"outranking_share_ab"`
	OutrankingShareBA float64 `json:"outranking_share_ba"`
	SnapshotCount     int     `json:"snapshot_count"`
}

// Report is the full result for one job, window and device filter
type Report struct {
	JobID      string    `json:"job_id"`
	WindowDays int       `json:"window_days"`
	Device     string    `json:"device"`
	ComputedAt time.Time `json:"computed_at"`
	Rows       []Row     `json:"rows"`
}

// CompetitorStat summarises one advertiser's appearances over a window
type CompetitorStat struct {
	Advertiser  string  `json:"advertiser"`
	Appearances int     `json:"appearances"`
	TopShare    float64 `json:"top_share"`
	BottomShare float64 `json:"bottom_share"`
}

// DayPoint is one UTC day of an advertiser's appearances
type DayPoint struct {
	Date        string `json:"date"`
	Appearances int    `json:"appearances"`
	Top         int    `json:"top"`
	Bottom      int    `json:"bottom"`
}

// SpendScenario holds the assumptions behind a spend estimate
type SpendScenario struct {
	CPC                 float64 `json:"cpc_assumption"`
	ClicksPerAppearance float64 `json:"clicks_per_appearance"`
}

// CompetitorDetail is the drilldown for one advertiser. Today and ThisWeek
// count every device regardless of the window's device filter.
type CompetitorDetail struct {
	JobID          string          `json:"job_id"`
	Advertiser     string          `json:"advertiser"`
	WindowDays     int             `json:"window_days"`
	Device         string          `json:"device"`
	Total          int             `json:"total"`
	TopShare       float64         `json:"top_share"`
	BottomShare    float64         `json:"bottom_share"`
	Today          int             `json:"today"`
	ThisWeek       int             `json:"this_week"`
	MonthlySpend   int             `json:"monthly_spend"`
	SpendScenario  SpendScenario   `json:"spend_scenario"`
	Series         []DayPoint      `json:"series"`
	Ads            []serp.Sighting `json:"ads"`
	LastSnapshotAt *time.Time      `json:"last_snapshot_at"`
}

// Increase is an advertiser seen more this week than the week before
type Increase struct {
	Advertiser string `json:"advertiser"`
	Delta      int    `json:"delta"`
}

// CompetitorDiffs lists recent changes in who is advertising
type CompetitorDiffs struct {
	NewToday          []string   `json:"new_today"`
	IncreasedThisWeek []Increase `json:"increased_this_week"`
}

// Key identifies a cached set of rows. Generation changes whenever the job
// records a new snapshot, so rows computed before it are never read again.
type Key struct {
	JobID      string
	Generation int64
	WindowDays int
	Device     string
}
