package auction

import (
	"sort"

	"adintel/internal/domain/auction"
	"adintel/internal/domain/serp"
)

// Position is where an advertiser was shown within one snapshot
type Position struct {
	Block serp.Block
	Rank  int
}

// Outranks reports whether p is strictly more prominent than q: the top
// block beats any other block, and within a block the lower rank wins. Equal
// block and rank outrank in neither direction.
func (p Position) Outranks(q Position) bool {
	if p.Block == serp.BlockTop && q.Block != serp.BlockTop {
		return true
	}
	return p.Block == q.Block && p.Rank < q.Rank
}

// Snapshot holds each advertiser's best position within one snapshot
type Snapshot struct {
	ID   string
	Best map[string]Position
}

// collector groups streamed sightings by snapshot, keeping first-seen order
type collector struct {
	order []string
	byID  map[string]*Snapshot
}

func newCollector() *collector {
	return &collector{byID: make(map[string]*Snapshot)}
}

func (c *collector) add(s serp.Sighting) error {
	snap, ok := c.byID[s.SnapshotID]
	if !ok {
		snap = &Snapshot{ID: s.SnapshotID, Best: make(map[string]Position)}
		c.byID[s.SnapshotID] = snap
		c.order = append(c.order, s.SnapshotID)
	}

	pos := Position{Block: s.Block, Rank: s.Rank}
	if cur, seen := snap.Best[s.Advertiser]; !seen || pos.Outranks(cur) {
		snap.Best[s.Advertiser] = pos
	}
	return nil
}

func (c *collector) snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.byID[id])
	}
	return out
}

type pair struct{ a, b string }

type pairCount struct{ overlap, ab, ba int }

// ComputeRows derives one row per unordered pair of advertisers seen anywhere
// in snaps, with A < B. All rates divide by len(snaps).
func ComputeRows(snaps []Snapshot) []auction.Row {
	if len(snaps) == 0 {
		return []auction.Row{}
	}

	all := make(map[string]struct{})
	counts := make(map[pair]*pairCount)

	for _, snap := range snaps {
		present := make([]string, 0, len(snap.Best))
		for adv := range snap.Best {
			present = append(present, adv)
			all[adv] = struct{}{}
		}
		sort.Strings(present)

		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				a, b := present[i], present[j]
				pc, ok := counts[pair{a, b}]
				if !ok {
					pc = &pairCount{}
					counts[pair{a, b}] = pc
				}
				pc.overlap++

				pa, pb := snap.Best[a], snap.Best[b]
				switch {
				case pa.Outranks(pb):
					pc.ab++
				case pb.Outranks(pa):
					pc.ba++
				}
			}
		}
	}

	advertisers := make([]string, 0, len(all))
	for adv := range all {
		advertisers = append(advertisers, adv)
	}
	sort.Strings(advertisers)

	n := float64(len(snaps))
	rows := make([]auction.Row, 0, len(advertisers)*(len(advertisers)-1)/2)
	for i := 0; i < len(advertisers); i++ {
		for j := i + 1; j < len(advertisers); j++ {
			a, b := advertisers[i], advertisers[j]
			row := auction.Row{AdvertiserA: a, AdvertiserB: b, SnapshotCount: len(snaps)}
			if pc, ok := counts[pair{a, b}]; ok {
				row.OverlapRate = float64(pc.overlap) / n
				row.OutrankingShareAB = float64(pc.ab) / n
				row.OutrankingShareBA = float64(pc.ba) / n
			}
			rows = append(rows, row)
		}
	}

	return rows
}
