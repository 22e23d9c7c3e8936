package serp

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// UnknownAdvertiser is recorded when no usable link accompanies an ad
const UnknownAdvertiser = "unknown"

// Query is what the data source needs to fetch one results page
type Query struct {
	Keyword  string
	Location string
	Country  string
	Language string
	Device   Device
}

// Observation is one ad unit as reported by the data source, before the
// advertiser identity is normalized.
type Observation struct {
	ExternalAdID   string
	AdvertiserHint string
	Block          Block
	Rank           int
	Headline       string
	Description    string
	DisplayedLink  string
	DestinationURL string
}

// FetchResult is a resolved fetch: the ad observations plus the raw payload
// kept for audit.
type FetchResult struct {
	Observations []Observation
	Raw          []byte
}

// Fetcher fetches the ads currently shown for a query
type Fetcher interface {
	FetchAdSightings(ctx context.Context, q Query) (FetchResult, error)
}

// Advertiser derives the advertiser identity for an observation. The
// displayed link wins over the destination, mirroring what a searcher sees.
func (o Observation) Advertiser() string {
	for _, candidate := range []string{o.DisplayedLink, o.AdvertiserHint, o.DestinationURL} {
		if adv := NormalizeAdvertiser(candidate); adv != UnknownAdvertiser {
			return adv
		}
	}
	return UnknownAdvertiser
}

// NormalizeAdvertiser reduces a link or bare host to its registrable domain,
// e.g. "https://www.shop.acme.co.uk/deals" becomes "acme.co.uk".
func NormalizeAdvertiser(link string) string {
	link = strings.ToLower(strings.TrimSpace(link))
	if link == "" {
		return UnknownAdvertiser
	}

	host := link
	if strings.Contains(link, "://") {
		if u, err := url.Parse(link); err == nil {
			host = u.Hostname()
		}
	}
	// displayed links look like "acme.com › plumbing" or "acme.com/deals"
	fields := strings.FieldsFunc(host, func(r rune) bool {
		return r == '/' || r == ' ' || r == '›' || r == '?' || r == '#'
	})
	if len(fields) == 0 {
		return UnknownAdvertiser
	}
	host = fields[0]
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.Trim(host, ".")
	if host == "" {
		return UnknownAdvertiser
	}

	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
