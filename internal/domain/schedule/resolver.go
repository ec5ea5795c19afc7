package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BlockKey identifies one physical side of a block.
type BlockKey struct {
	Corridor  string
	Limits    string
	SideToken SideToken
	BlockSide string
}

// BlockSide aggregates every candidate sharing a BlockKey.
type BlockSide struct {
	Key         BlockKey
	CNN         int64
	Rules       []RecurringRule
	NextWindow  Window
	ScheduleID  int64 // SourceID of the rule that produced NextWindow
	MinDistance float64
	IsUserSide  bool
	Geometry    json.RawMessage
	// Merged is set when two opposite sides with identical windows were folded
	// into this entry; Key.BlockSide is then empty.
	Merged bool
}

// Resolver picks the block side relevant to a caller from nearby candidates.
type Resolver struct {
	Calendar Calendar
}

// NewResolver returns a Resolver computing windows with cal.
func NewResolver(cal Calendar) *Resolver {
	return &Resolver{Calendar: cal}
}

// Group buckets candidates by BlockKey, in first-seen order.
func Group(candidates []ScheduleCandidate) []*BlockSide {
	index := make(map[BlockKey]*BlockSide)
	var out []*BlockSide
	for _, c := range candidates {
		key := BlockKey{Corridor: c.Corridor, Limits: c.Limits, SideToken: c.SideToken, BlockSide: c.BlockSide}
		side, ok := index[key]
		if !ok {
			side = &BlockSide{Key: key, CNN: c.CNN, MinDistance: c.DistanceMeters, Geometry: c.Geometry}
			index[key] = side
			out = append(out, side)
		}
		side.Rules = append(side.Rules, c.Rules...)
		if c.DistanceMeters < side.MinDistance {
			side.MinDistance = c.DistanceMeters
			side.Geometry = c.Geometry
		}
		side.IsUserSide = side.IsUserSide || c.IsUserSide
	}
	return out
}

// Sides groups candidates and computes each bucket's earliest window. Buckets
// whose every rule fails are dropped; the rule errors are returned alongside.
func (r *Resolver) Sides(candidates []ScheduleCandidate, now time.Time) ([]*BlockSide, []error) {
	var (
		survivors []*BlockSide
		dropped   []error
	)
	for _, side := range Group(candidates) {
		w, winner, ok, errs := r.Calendar.EarliestWindow(side.Rules, now)
		for _, err := range errs {
			dropped = append(dropped, fmt.Errorf("%s %s (%s): %w", side.Key.Corridor, side.Key.Limits, side.Key.SideToken, err))
		}
		if !ok {
			continue
		}
		side.NextWindow = w
		side.ScheduleID = winner.SourceID
		survivors = append(survivors, side)
	}
	return Merge(survivors), dropped
}

// Resolve returns the side that applies to the caller, or nil when nothing
// nearby has a computable window.
func (r *Resolver) Resolve(candidates []ScheduleCandidate, now time.Time) (*BlockSide, []error) {
	sides, dropped := r.Sides(candidates, now)
	return Select(sides), dropped
}

// Merge folds pairs of opposite sides that share corridor, limits and window.
// Each bucket takes part in at most one merge.
func Merge(sides []*BlockSide) []*BlockSide {
	consumed := make([]bool, len(sides))
	out := make([]*BlockSide, 0, len(sides))
	for i, a := range sides {
		if consumed[i] {
			continue
		}
		for j := i + 1; j < len(sides); j++ {
			b := sides[j]
			if consumed[j] || !mergeable(a, b) {
				continue
			}
			consumed[j] = true
			a = mergePair(a, b)
			break
		}
		out = append(out, a)
	}
	return out
}

func mergeable(a, b *BlockSide) bool {
	return !a.Merged && !b.Merged &&
		a.Key.Corridor == b.Key.Corridor &&
		a.Key.Limits == b.Key.Limits &&
		a.NextWindow.Equal(b.NextWindow) &&
		IsOppositePair(a.Key.BlockSide, b.Key.BlockSide)
}

func mergePair(a, b *BlockSide) *BlockSide {
	nearer := a
	if b.MinDistance < a.MinDistance {
		nearer = b
	}
	merged := *nearer
	merged.Key.BlockSide = ""
	merged.Merged = true
	merged.IsUserSide = a.IsUserSide || b.IsUserSide
	return &merged
}

// Select prefers a side tagged as the caller's, then the nearest one. Ties go
// to the earlier entry.
func Select(sides []*BlockSide) *BlockSide {
	var userSide, nearest *BlockSide
	for _, s := range sides {
		if s.IsUserSide && (userSide == nil || s.MinDistance < userSide.MinDistance) {
			userSide = s
		}
		if nearest == nil || s.MinDistance < nearest.MinDistance {
			nearest = s
		}
	}
	if userSide != nil {
		return userSide
	}
	return nearest
}

var cardinals = map[string]string{
	"e": "E", "east": "E", "eastbound": "E",
	"w": "W", "west": "W", "westbound": "W",
	"n": "N", "north": "N", "northbound": "N",
	"s": "S", "south": "S", "southbound": "S",
	"ne": "NE", "northeast": "NE",
	"sw": "SW", "southwest": "SW",
	"nw": "NW", "northwest": "NW",
	"se": "SE", "southeast": "SE",
}

var opposites = map[string]string{
	"E": "W", "W": "E",
	"N": "S", "S": "N",
	"NE": "SW", "SW": "NE",
	"NW": "SE", "SE": "NW",
}

// NormalizeCardinal maps labels such as "East", "north side" or "SouthWest"
// to their compass abbreviation. Unknown labels return "".
func NormalizeCardinal(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimSuffix(s, " side")
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	return cardinals[s]
}

// IsOppositePair reports whether two side labels face each other across the street.
func IsOppositePair(a, b string) bool {
	na, nb := NormalizeCardinal(a), NormalizeCardinal(b)
	return na != "" && opposites[na] == nb
}

// RegulationDeadline is a regulation candidate together with its computed deadline.
type RegulationDeadline struct {
	Candidate RegulationCandidate
	Deadline  Deadline
}

// RegulationDeadlines computes deadlines for every candidate, preserving input
// order. Candidates whose deadline cannot be computed are reported and skipped.
func (r *Resolver) RegulationDeadlines(candidates []RegulationCandidate, now time.Time) ([]RegulationDeadline, []error) {
	var (
		out     []RegulationDeadline
		dropped []error
	)
	for _, c := range candidates {
		d, err := r.Calendar.NextDeadline(c.Days, c.HoursBegin, c.HoursEnd, c.HourLimit, now)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("regulation %d: %w", c.ID, err))
			continue
		}
		out = append(out, RegulationDeadline{Candidate: c, Deadline: d})
	}
	return out, dropped
}

// ResolveRegulation returns the nearest regulation with a computable deadline,
// or nil when none qualifies.
func (r *Resolver) ResolveRegulation(candidates []RegulationCandidate, now time.Time) (*RegulationDeadline, []error) {
	deadlines, dropped := r.RegulationDeadlines(candidates, now)
	return NearestDeadline(deadlines), dropped
}

// NearestDeadline picks the nearest entry, breaking distance ties by the
// earlier move-by instant.
func NearestDeadline(deadlines []RegulationDeadline) *RegulationDeadline {
	var best *RegulationDeadline
	for i := range deadlines {
		d := &deadlines[i]
		if best == nil ||
			d.Candidate.DistanceMeters < best.Candidate.DistanceMeters ||
			(d.Candidate.DistanceMeters == best.Candidate.DistanceMeters && d.Deadline.MoveBy.Before(best.Deadline.MoveBy)) {
			best = d
		}
	}
	return best
}
