package serp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidWindow     = errors.New("window must be between 1 and 365 days")
	ErrInvalidDevice     = errors.New("device must be one of all, desktop, mobile")
	ErrSourceUnavailable = errors.New("data source unavailable")
)

// MaxWindowDays bounds every analytics window
const MaxWindowDays = 365

// Device is the device class a snapshot was fetched for
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// Devices lists every device a target is fetched for
var Devices = []Device{DeviceDesktop, DeviceMobile}

// DeviceFilter narrows a window read to one device or none
type DeviceFilter string

const (
	DeviceAll           DeviceFilter = "all"
	DeviceFilterDesktop DeviceFilter = "desktop"
	DeviceFilterMobile  DeviceFilter = "mobile"
)

// ParseDeviceFilter accepts all, desktop or mobile in any case; empty means all
func ParseDeviceFilter(s string) (DeviceFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return DeviceAll, nil
	case "desktop":
		return DeviceFilterDesktop, nil
	case "mobile":
		return DeviceFilterMobile, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, s)
	}
}

// Matches reports whether a device passes the filter
func (f DeviceFilter) Matches(d Device) bool {
	return f == DeviceAll || string(f) == string(d)
}

// Block is the ad block a sighting was observed in
type Block string

const (
	BlockTop    Block = "top"
	BlockBottom Block = "bottom"
)

// ParseBlock maps source block labels onto the two known blocks; anything
// that is not recognisably top is treated as bottom.
func ParseBlock(s string) Block {
	if strings.EqualFold(strings.TrimSpace(s), string(BlockTop)) {
		return BlockTop
	}
	return BlockBottom
}

// Job groups the targets under research
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Target is a (keyword, location, language, country) tuple under research
type Target struct {
	ID                      string    `json:"id"`
	JobID                   string    `json:"job_id"`
	Keyword                 string    `json:"keyword"`
	Location                string    `json:"location"`
	SerpLocation            string    `json:"serp_location,omitempty"`
	Country                 string    `json:"country"`
	Language                string    `json:"language"`
	PresenceTrackingEnabled bool      `json:"presence_tracking_enabled"`
	CreatedAt               time.Time `json:"created_at"`
}

// Query builds the fetch query for this target
func (t Target) Query(device Device) Query {
	location := t.SerpLocation
	if location == "" {
		location = t.Location
	}
	return Query{
		Keyword:  t.Keyword,
		Location: location,
		Country:  t.Country,
		Language: t.Language,
		Device:   device,
	}
}

// Snapshot is one fetch of one target on one device at one moment
type Snapshot struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id"`
	Device     Device    `json:"device"`
	CapturedAt time.Time `json:"captured_at"`
	RawPayload []byte    `json:"-"`
}

// Sighting is one ad unit observed within one snapshot
type Sighting struct {
	ID             string    `json:"id"`
	SnapshotID     string    `json:"snapshot_id"`
	JobID          string    `json:"job_id"`
	Advertiser     string    `json:"advertiser"`
	ExternalAdID   string    `json:"external_ad_id,omitempty"`
	Device         Device    `json:"device"`
	Block          Block     `json:"block"`
	Rank           int       `json:"rank"`
	Headline       string    `json:"headline"`
	Description    string    `json:"description"`
	DisplayedLink  string    `json:"displayed_link"`
	DestinationURL string    `json:"destination_url"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Text is the ad copy the brand matcher scans
func (s Sighting) Text() string {
	return strings.Join([]string{s.Headline, s.Description, s.DisplayedLink}, " ")
}

// Window selects sightings for a job. A zero Since reads the full history.
type Window struct {
	JobID  string
	Since  time.Time
	Device DeviceFilter
}

// WindowFor builds a trailing window of days ending at now
func WindowFor(jobID string, days int, device DeviceFilter, now time.Time) (Window, error) {
	if days < 1 || days > MaxWindowDays {
		return Window{}, fmt.Errorf("%w: got %d", ErrInvalidWindow, days)
	}
	if device == "" {
		device = DeviceAll
	}
	return Window{
		JobID:  jobID,
		Since:  now.Add(-time.Duration(days) * 24 * time.Hour),
		Device: device,
	}, nil
}
