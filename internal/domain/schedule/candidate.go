package schedule

import "encoding/json"

// SideToken is the upstream left/right marker of a street segment side.
type SideToken string

const (
	SideLeft  SideToken = "L"
	SideRight SideToken = "R"
)

// ScheduleCandidate is one nearby sweeping row as returned by the geodata
// provider, already sorted by distance and tagged with the caller's side.
type ScheduleCandidate struct {
	CNN            int64
	Corridor       string
	Limits         string
	SideToken      SideToken
	BlockSide      string // cardinal label, empty when the provider has none
	Rules          []RecurringRule
	DistanceMeters float64
	IsUserSide     bool
	Geometry       json.RawMessage
}

// RegulationCandidate is one nearby time-limited parking row.
type RegulationCandidate struct {
	ID             int64
	Regulation     string
	Days           string
	HoursBegin     int // military, 900 = 9:00
	HoursEnd       int
	HourLimit      int
	RPPAreas       []string
	Exceptions     string
	Neighborhood   string
	DistanceMeters float64
	Geometry       json.RawMessage
}
