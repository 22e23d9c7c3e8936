package auction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"adintel/internal/domain/auction"
	"adintel/internal/domain/serp"
)

const (
	// spend estimate assumptions
	assumedCPC                 = 5.0
	assumedClicksPerAppearance = 0.5

	maxDrilldownAds  = 500
	maxNewToday      = 12
	maxIncreasedWeek = 8
	week             = 7 * 24 * time.Hour
	dayLayout        = "2006-01-02"
)

// CompetitorDetail returns one advertiser's appearances in the window with a
// per-day series, its most recent ads and a monthly spend estimate. An
// advertiser never seen yields zero counts and a single empty series point.
func (e *Engine) CompetitorDetail(ctx context.Context, jobID, advertiser string, days int, device serp.DeviceFilter) (*auction.CompetitorDetail, error) {
	now := e.now()
	w, err := serp.WindowFor(jobID, days, device, now)
	if err != nil {
		return nil, err
	}

	// the day and week counts ignore the device filter and may reach past a
	// shorter window, so the read covers both and narrows in memory
	span := days
	if span < 7 {
		span = 7
	}
	read, err := serp.WindowFor(jobID, span, serp.DeviceAll, now)
	if err != nil {
		return nil, err
	}

	detail := &auction.CompetitorDetail{
		JobID:      jobID,
		Advertiser: advertiser,
		WindowDays: days,
		Device:     string(w.Device),
		SpendScenario: auction.SpendScenario{
			CPC:                 assumedCPC,
			ClicksPerAppearance: assumedClicksPerAppearance,
		},
	}

	today := now.Format(dayLayout)
	weekStart := now.Add(-week)
	byDay := make(map[string]*auction.DayPoint)
	var top, bottom int

	err = e.reader.ForEachInWindow(ctx, read, func(s serp.Sighting) error {
		if s.Advertiser != advertiser {
			return nil
		}
		at := s.CapturedAt.UTC()
		if at.Format(dayLayout) == today {
			detail.Today++
		}
		if !at.Before(weekStart) {
			detail.ThisWeek++
		}
		if at.Before(w.Since) || !w.Device.Matches(s.Device) {
			return nil
		}

		detail.Total++
		day := at.Format(dayLayout)
		p, ok := byDay[day]
		if !ok {
			p = &auction.DayPoint{Date: day}
			byDay[day] = p
		}
		p.Appearances++
		if s.Block == serp.BlockTop {
			top++
			p.Top++
		} else {
			bottom++
			p.Bottom++
		}
		detail.Ads = append(detail.Ads, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading window: %w", err)
	}

	if detail.Total > 0 {
		detail.TopShare = float64(top) / float64(detail.Total)
		detail.BottomShare = float64(bottom) / float64(detail.Total)
	}
	detail.MonthlySpend = int(float64(detail.Total) * assumedCPC * assumedClicksPerAppearance * 30 / float64(days))

	detail.Series = make([]auction.DayPoint, 0, len(byDay))
	for _, p := range byDay {
		detail.Series = append(detail.Series, *p)
	}
	sort.Slice(detail.Series, func(i, j int) bool { return detail.Series[i].Date < detail.Series[j].Date })
	if len(detail.Series) == 0 {
		detail.Series = append(detail.Series, auction.DayPoint{Date: w.Since.Format(dayLayout)})
	}

	// newest first
	sort.SliceStable(detail.Ads, func(i, j int) bool { return detail.Ads[i].CapturedAt.After(detail.Ads[j].CapturedAt) })
	if len(detail.Ads) > maxDrilldownAds {
		detail.Ads = detail.Ads[:maxDrilldownAds]
	}
	if detail.Ads == nil {
		detail.Ads = []serp.Sighting{}
	}

	detail.LastSnapshotAt, err = e.reader.LastSnapshotAt(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("error reading last snapshot: %w", err)
	}
	return detail, nil
}

// CompetitorDiffs reports advertisers seen today but not yesterday, and
// advertisers seen more in the last seven days than in the seven before.
func (e *Engine) CompetitorDiffs(ctx context.Context, jobID string) (*auction.CompetitorDiffs, error) {
	now := e.now()
	w, err := serp.WindowFor(jobID, 14, serp.DeviceAll, now)
	if err != nil {
		return nil, err
	}

	today := now.Format(dayLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dayLayout)
	weekStart := now.Add(-week)

	seenToday := make(map[string]struct{})
	seenYesterday := make(map[string]struct{})
	thisWeek := make(map[string]int)
	lastWeek := make(map[string]int)

	err = e.reader.ForEachInWindow(ctx, w, func(s serp.Sighting) error {
		at := s.CapturedAt.UTC()
		switch at.Format(dayLayout) {
		case today:
			seenToday[s.Advertiser] = struct{}{}
		case yesterday:
			seenYesterday[s.Advertiser] = struct{}{}
		}
		if at.Before(weekStart) {
			lastWeek[s.Advertiser]++
		} else {
			thisWeek[s.Advertiser]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading window: %w", err)
	}

	diffs := &auction.CompetitorDiffs{NewToday: []string{}, IncreasedThisWeek: []auction.Increase{}}
	for adv := range seenToday {
		if _, ok := seenYesterday[adv]; !ok {
			diffs.NewToday = append(diffs.NewToday, adv)
		}
	}
	sort.Strings(diffs.NewToday)
	if len(diffs.NewToday) > maxNewToday {
		diffs.NewToday = diffs.NewToday[:maxNewToday]
	}

	for adv, n := range thisWeek {
		if n > lastWeek[adv] {
			diffs.IncreasedThisWeek = append(diffs.IncreasedThisWeek, auction.Increase{Advertiser: adv, Delta: n - lastWeek[adv]})
		}
	}
	sort.Slice(diffs.IncreasedThisWeek, func(i, j int) bool {
		a, b := diffs.IncreasedThisWeek[i], diffs.IncreasedThisWeek[j]
		if a.Delta != b.Delta {
			return a.Delta > b.Delta
		}
		return a.Advertiser < b.Advertiser
	})
	if len(diffs.IncreasedThisWeek) > maxIncreasedWeek {
		diffs.IncreasedThisWeek = diffs.IncreasedThisWeek[:maxIncreasedWeek]
	}

	return diffs, nil
}
