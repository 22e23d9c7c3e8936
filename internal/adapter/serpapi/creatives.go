package serpapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"adintel/internal/domain/creative"
)

const transparencyEngine = "google_ads_transparency_center"

// Strategy pulls creatives out of one known payload shape. ok is false when
// the shape is not present, so the next strategy gets a turn.
type Strategy struct {
	Name    string
	Extract func(doc gjson.Result) (creatives []creative.Creative, ok bool)
}

// Strategies are tried in order before falling back to a follow-up query
// by advertiser id
var Strategies = []Strategy{
	{Name: "top_level_list", Extract: topLevelList},
	{Name: "advertiser_wrapped", Extract: advertiserWrapped},
}

// Fallbacks are tried after the follow-up query found nothing
var Fallbacks = []Strategy{
	{Name: "deep_scan", Extract: deepScan},
}

var (
	directKeys  = []string{"ads", "creatives", "results", "advertiser_ads", "ads_by_advertiser"}
	wrapperKeys = []string{"advertiser_results", "advertisers", "search_results"}
	nestedKeys  = []string{"ads", "creatives", "results"}
	idKeys      = []string{"ad_id", "creative_id", "id"}
)

// FetchCreativeInventory lists the advertiser's creatives from the
// transparency center. When the text search only returns advertiser hits,
// a follow-up query by advertiser id fetches their ads.
func (c *Client) FetchCreativeInventory(ctx context.Context, advertiser, region string) (creative.Fetched, error) {
	advertiser = strings.TrimSpace(advertiser)
	if advertiser == "" {
		return creative.Fetched{}, fmt.Errorf("advertiser is required")
	}

	params := url.Values{}
	params.Set("engine", transparencyEngine)
	params.Set("text", advertiser)
	params.Set("region", RegionCode(region))
	params.Set("num", "100")

	body, err := c.search(ctx, params)
	if err != nil {
		return creative.Fetched{}, err
	}
	doc := gjson.ParseBytes(body)

	if creatives, ok := c.extract(Strategies, doc); ok {
		return creative.Fetched{Creatives: creatives, Raw: body}, nil
	}
	if creatives, ok := c.followUp(ctx, doc, region); ok {
		return creative.Fetched{Creatives: creatives, Raw: body}, nil
	}
	if creatives, ok := c.extract(Fallbacks, doc); ok {
		return creative.Fetched{Creatives: creatives, Raw: body}, nil
	}

	c.logger.Info("No creatives found in transparency payload",
		zap.String("advertiser", advertiser),
		zap.String("structure", describe(doc)),
	)
	return creative.Fetched{Raw: body}, nil
}

func (c *Client) extract(strategies []Strategy, doc gjson.Result) ([]creative.Creative, bool) {
	for _, s := range strategies {
		if creatives, ok := s.Extract(doc); ok {
			c.logger.Debug("Extracted creatives", zap.String("strategy", s.Name), zap.Int("count", len(creatives)))
			return creatives, true
		}
	}
	return nil, false
}

// followUp queries by the first advertiser id found under a wrapper key
func (c *Client) followUp(ctx context.Context, doc gjson.Result, region string) ([]creative.Creative, bool) {
	for _, key := range wrapperKeys {
		for _, item := range doc.Get(key).Array() {
			id := firstString(item, "advertiser_id", "advertiserId", "id")
			if id == "" {
				continue
			}

			params := url.Values{}
			params.Set("engine", transparencyEngine)
			params.Set("advertiser_id", id)
			params.Set("region", RegionCode(region))
			params.Set("num", "100")

			body, err := c.search(ctx, params)
			if err != nil {
				c.logger.Debug("Follow-up by advertiser id failed", zap.String("advertiser_id", id), zap.Error(err))
				continue
			}
			sub := gjson.ParseBytes(body)
			for _, k := range nestedKeys {
				if list := sub.Get(k); list.IsArray() {
					if creatives := normalizeList(list); len(creatives) > 0 {
						return creatives, true
					}
					break
				}
			}
		}
	}
	return nil, false
}

// topLevelList handles a list of creatives, or a map of lists, under one of
// the well-known top-level keys
func topLevelList(doc gjson.Result) ([]creative.Creative, bool) {
	for _, key := range directKeys {
		val := doc.Get(key)
		if val.IsArray() {
			creatives := normalizeList(val)
			return creatives, len(creatives) > 0
		}
		if val.IsObject() {
			var creatives []creative.Creative
			val.ForEach(func(_, v gjson.Result) bool {
				if v.IsArray() {
					creatives = append(creatives, normalizeList(v)...)
				}
				return true
			})
			if len(creatives) > 0 {
				return creatives, true
			}
		}
	}
	return nil, false
}

// advertiserWrapped handles advertiser hits that embed their ads
func advertiserWrapped(doc gjson.Result) ([]creative.Creative, bool) {
	for _, key := range wrapperKeys {
		var creatives []creative.Creative
		for _, item := range doc.Get(key).Array() {
			for _, k := range nestedKeys {
				if list := item.Get(k); list.IsArray() {
					creatives = append(creatives, normalizeList(list)...)
					break
				}
			}
		}
		if len(creatives) > 0 {
			return creatives, true
		}
	}
	return nil, false
}

const maxScanDepth = 6

// deepScan walks the payload for the first list whose leading object looks
// like a creative
func deepScan(doc gjson.Result) ([]creative.Creative, bool) {
	creatives := scan(doc, 0)
	return creatives, len(creatives) > 0
}

func scan(v gjson.Result, depth int) []creative.Creative {
	if depth > maxScanDepth {
		return nil
	}

	var found []creative.Creative
	switch {
	case v.IsObject():
		v.ForEach(func(_, child gjson.Result) bool {
			if child.IsArray() && looksLikeCreative(child.Get("0")) {
				found = normalizeList(child)
				if len(found) > 0 {
					return false
				}
			}
			found = scan(child, depth+1)
			return len(found) == 0
		})
	case v.IsArray():
		v.ForEach(func(_, child gjson.Result) bool {
			found = scan(child, depth+1)
			return len(found) == 0
		})
	}
	return found
}

func looksLikeCreative(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	return firstString(v, "ad_id", "creative_id", "id", "title", "headline") != ""
}

func normalizeList(list gjson.Result) []creative.Creative {
	var out []creative.Creative
	for _, item := range list.Array() {
		if item.IsObject() {
			out = append(out, normalizeCreative(item))
		}
	}
	return out
}

func normalizeCreative(v gjson.Result) creative.Creative {
	format := firstString(v, "format", "creative_format")
	if format == "" {
		format = "unknown"
	}
	return creative.Creative{
		ID:        firstString(v, idKeys...),
		Title:     firstString(v, "title", "headline"),
		Format:    format,
		FirstSeen: firstString(v, "first_seen", "start_date"),
		LastSeen:  firstString(v, "last_seen", "end_date"),
	}
}

// describe summarises top-level keys for logging unknown payload shapes
func describe(doc gjson.Result) string {
	var parts []string
	doc.ForEach(func(k, v gjson.Result) bool {
		kind := v.Type.String()
		if v.IsArray() {
			kind = fmt.Sprintf("list[%d]", len(v.Array()))
		} else if v.IsObject() {
			kind = "dict"
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", k.String(), kind))
		return len(parts) < 20
	})
	return strings.Join(parts, " ")
}
