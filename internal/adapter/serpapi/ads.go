package serpapi

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"adintel/internal/domain/serp"
)

// topBlockSize is how many ads are assumed to sit above the results when
// the payload carries no block
const topBlockSize = 4

// FetchAdSightings runs a Google search for the query and returns its paid ads
func (c *Client) FetchAdSightings(ctx context.Context, q serp.Query) (serp.FetchResult, error) {
	country := q.Country
	if country == "" {
		country = "us"
	}
	language := q.Language
	if language == "" {
		language = "en"
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", q.Keyword)
	params.Set("location", NormalizeLocation(q.Location, country))
	params.Set("gl", country)
	params.Set("hl", language)
	params.Set("device", string(q.Device))

	body, err := c.search(ctx, params)
	if err != nil {
		return serp.FetchResult{}, err
	}

	return serp.FetchResult{
		Observations: ExtractAds(gjson.ParseBytes(body)),
		Raw:          body,
	}, nil
}

// ExtractAds reads paid ads from a search payload. Both the "ads" and the
// older "paid" key are understood.
func ExtractAds(doc gjson.Result) []serp.Observation {
	ads := doc.Get("ads")
	if !ads.IsArray() || len(ads.Array()) == 0 {
		ads = doc.Get("paid")
	}
	if !ads.IsArray() {
		return nil
	}

	var out []serp.Observation
	for i, ad := range ads.Array() {
		if !ad.IsObject() {
			continue
		}

		block := serp.BlockBottom
		if b := ad.Get("block"); b.Exists() && b.String() != "" {
			block = serp.ParseBlock(b.String())
		} else if i < topBlockSize {
			block = serp.BlockTop
		}

		rank := i + 1
		if p := ad.Get("position"); p.Exists() && p.Int() > 0 {
			rank = int(p.Int())
		}

		out = append(out, serp.Observation{
			ExternalAdID:   firstString(ad, "ad_id", "position"),
			AdvertiserHint: firstString(ad, "source", "advertiser"),
			Block:          block,
			Rank:           rank,
			Headline:       firstString(ad, "title", "headline"),
			Description:    firstString(ad, "description", "snippet"),
			DisplayedLink:  firstString(ad, "displayed_link", "display_link"),
			DestinationURL: firstString(ad, "link", "destination_link"),
		})
	}
	return out
}

// firstString returns the first non-empty value among paths
func firstString(obj gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := obj.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
