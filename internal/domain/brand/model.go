package brand

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrInvalidStatus = errors.New("invalid violation status")
	ErrInvalidAsset  = errors.New("invalid brand asset")
)

// AssetKind tags how an asset is matched
type AssetKind string

const (
	KindLiteral AssetKind = "literal"
	KindRegex   AssetKind = "regex"
)

// ParseAssetKind maps user input onto a kind; empty means literal
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "literal":
		return KindLiteral, nil
	case "regex":
		return KindRegex, nil
	default:
		return "", fmt.Errorf("%w: unknown pattern type %q", ErrInvalidAsset, s)
	}
}

// Asset is a brand term or pattern to watch for. A nil JobID makes it global.
type Asset struct {
	ID        string    `json:"id"`
	JobID     *string   `json:"job_id"`
	Kind      AssetKind `json:"kind"`
	Term      string    `json:"term"`
	Pattern   string    `json:"pattern,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Label is the name violations are recorded under. Long patterns are cut
// to 50 runes.
func (a Asset) Label() string {
	if term := strings.TrimSpace(a.Term); term != "" {
		return term
	}
	if r := []rune(a.Pattern); len(r) > 50 {
		return string(r[:50])
	}
	return a.Pattern
}

// Validate checks the asset carries what its kind needs. Regex syntax is not
// checked here; a bad pattern is skipped at scan time.
func (a Asset) Validate() error {
	switch a.Kind {
	case KindLiteral:
		if strings.TrimSpace(a.Term) == "" {
			return fmt.Errorf("%w: literal asset needs a term", ErrInvalidAsset)
		}
	case KindRegex:
		if a.Pattern == "" {
			return fmt.Errorf("%w: regex asset needs a pattern", ErrInvalidAsset)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAsset, a.Kind)
	}
	return nil
}

// Status is the review state of a violation
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewed  Status = "reviewed"
	StatusDismissed Status = "dismissed"
	StatusEscalated Status = "escalated"
)

// ParseStatus accepts only the fixed status set
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusNew, StatusReviewed, StatusDismissed, StatusEscalated:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Violation is a recorded brand mention in a competitor's ad. At most one
// exists per (job, ad, matched asset).
type Violation struct {
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	AdID           string     `json:"ad_id"`
	Advertiser     string     `json:"advertiser"`
	Source         string     `json:"source"`
	MatchedAsset   string     `json:"matched_asset"`
	MatchedSnippet string     `json:"matched_snippet"`
	CapturedAt     time.Time  `json:"captured_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	Status         Status     `json:"status"`
}

// Key is the dedup identity of a violation
type Key struct {
	JobID        string
	AdID         string
	MatchedAsset string
}

// Key returns the violation's dedup identity
func (v Violation) Key() Key {
	return Key{JobID: v.JobID, AdID: v.AdID, MatchedAsset: v.MatchedAsset}
}
