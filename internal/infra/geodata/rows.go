package geodata

import (
	"encoding/json"
	"strings"

	"sweep_notifier/internal/domain/schedule"
)

// missingHours stands in for a null hour; it fails clock validation so the
// affected rule is dropped with ReasonMissingHours.
const missingHours = -1

// noWeeks marks a row whose week flags are all off. It is outside 1..5, so the
// rule fails with ReasonNoActiveWeeks instead of reading as "every week".
const noWeeks = 0

type sweepingRow struct {
	CNN            int64           `json:"cnn"`
	Corridor       string          `json:"corridor"`
	Limits         string          `json:"limits"`
	CNNRightLeft   string          `json:"cnn_right_left"`
	BlockSide      *string         `json:"block_side"`
	FullName       string          `json:"full_name"`
	WeekDay        string          `json:"week_day"`
	FromHour       *int            `json:"from_hour"`
	ToHour         *int            `json:"to_hour"`
	Week1          bool            `json:"week1"`
	Week2          bool            `json:"week2"`
	Week3          bool            `json:"week3"`
	Week4          bool            `json:"week4"`
	Week5          bool            `json:"week5"`
	Holidays       bool            `json:"holidays"`
	BlockSweepID   int64           `json:"block_sweep_id"`
	DistanceMeters float64         `json:"distance_meters"`
	IsUserSide     bool            `json:"is_user_side"`
	Line           json.RawMessage `json:"line"`
}

// toCandidate turns one row into a single-rule candidate. A row that cannot
// produce a window (unknown weekday, no week flags, null hours) is kept; computing
// its window fails later and only that rule is dropped.
func (r sweepingRow) toCandidate() schedule.ScheduleCandidate {
	weekday, err := schedule.ParseWeekday(r.WeekDay)
	if err != nil {
		weekday = schedule.UnknownWeekday
	}
	var weeks []int
	for i, on := range []bool{r.Week1, r.Week2, r.Week3, r.Week4, r.Week5} {
		if on {
			weeks = append(weeks, i+1)
		}
	}
	if len(weeks) == 0 {
		weeks = []int{noWeeks}
	}
	blockSide := ""
	if r.BlockSide != nil {
		blockSide = strings.TrimSpace(*r.BlockSide)
	}
	return schedule.ScheduleCandidate{
		CNN:       r.CNN,
		Corridor:  r.Corridor,
		Limits:    r.Limits,
		SideToken: schedule.SideToken(strings.ToUpper(strings.TrimSpace(r.CNNRightLeft))),
		BlockSide: blockSide,
		Rules: []schedule.RecurringRule{{
			Pattern: schedule.MonthlyPattern{Weekday: weekday, WeeksOfMonth: weeks},
			TimeWindow: schedule.TimeWindow{
				Start: schedule.Clock{Hour: derefInt(r.FromHour, missingHours)},
				End:   schedule.Clock{Hour: derefInt(r.ToHour, missingHours)},
			},
			SkipHolidays: r.Holidays,
			SourceID:     r.BlockSweepID,
		}},
		DistanceMeters: r.DistanceMeters,
		IsUserSide:     r.IsUserSide,
		Geometry:       r.Line,
	}
}

type regulationRow struct {
	ID             int64           `json:"id"`
	Regulation     string          `json:"regulation"`
	Days           *string         `json:"days"`
	HrsBegin       *int            `json:"hrs_begin"`
	HrsEnd         *int            `json:"hrs_end"`
	HourLimit      *int            `json:"hour_limit"`
	RPPArea1       *string         `json:"rpp_area1"`
	RPPArea2       *string         `json:"rpp_area2"`
	Exceptions     *string         `json:"exceptions"`
	Neighborhood   *string         `json:"neighborhood"`
	DistanceMeters float64         `json:"distance_meters"`
	Line           json.RawMessage `json:"line"`
}

func (r regulationRow) toCandidate() schedule.RegulationCandidate {
	c := schedule.RegulationCandidate{
		ID:             r.ID,
		Regulation:     r.Regulation,
		Days:           deref(r.Days),
		HoursBegin:     derefInt(r.HrsBegin, missingHours),
		HoursEnd:       derefInt(r.HrsEnd, missingHours),
		HourLimit:      derefInt(r.HourLimit, 0),
		Exceptions:     deref(r.Exceptions),
		Neighborhood:   deref(r.Neighborhood),
		DistanceMeters: r.DistanceMeters,
		Geometry:       r.Line,
	}
	for _, area := range []*string{r.RPPArea1, r.RPPArea2} {
		if a := deref(area); a != "" {
			c.RPPAreas = append(c.RPPAreas, a)
		}
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func derefInt(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
