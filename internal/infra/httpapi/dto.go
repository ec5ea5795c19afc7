package httpapi

import (
	"encoding/json"
	"time"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/schedule"
)

type subscribeRequest struct {
	DeviceToken      string  `json:"deviceToken" binding:"required,max=4096"`
	Platform         string  `json:"platform" binding:"required,oneof=ios android web telegram"`
	ScheduleID       int64   `json:"scheduleId" binding:"required,gt=0"`
	SubscriptionType string  `json:"subscriptionType" binding:"omitempty,oneof=sweeping timing"`
	LeadMinutes      *int    `json:"leadMinutes" binding:"required,min=0,max=1440"`
	Latitude         float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude        float64 `json:"longitude" binding:"min=-180,max=180"`
}

type locationQuery struct {
	Latitude  *float64 `form:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `form:"longitude" binding:"required,min=-180,max=180"`
}

type subscriptionResponse struct {
	DeviceToken      string  `json:"deviceToken"`
	Platform         string  `json:"platform"`
	ScheduleID       int64   `json:"scheduleId"`
	SubscriptionType string  `json:"subscriptionType"`
	LeadMinutes      int     `json:"leadMinutes"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	LastNotifiedAt   *string `json:"lastNotifiedAt"`
	Deadline         *string `json:"deadline,omitempty"`
	FireAt           *string `json:"fireAt"`
	Armed            bool    `json:"armed"`
	State            string  `json:"state"`
}

type subscriptionListResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
}

type deleteAllResponse struct {
	Deleted int64 `json:"deleted"`
}

type pointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type scheduleResponse struct {
	ScheduleID     int64           `json:"scheduleId"`
	CNN            int64           `json:"cnn"`
	Corridor       string          `json:"corridor"`
	Limits         string          `json:"limits"`
	CNNRightLeft   string          `json:"cnnRightLeft"`
	BlockSide      *string         `json:"blockSide"`
	HumanRules     []string        `json:"humanRules"`
	NextSweepStart string          `json:"nextSweepStart"`
	NextSweepEnd   string          `json:"nextSweepEnd"`
	Distance       float64         `json:"distance"`
	IsUserSide     bool            `json:"isUserSide"`
	Merged         bool            `json:"merged"`
	Geometry       json.RawMessage `json:"geometry,omitempty"`
}

type regulationResponse struct {
	ID                  int64           `json:"id"`
	Regulation          string          `json:"regulation"`
	HumanRule           string          `json:"humanRule"`
	Days                string          `json:"days"`
	HoursBegin          int             `json:"hoursBegin"`
	HoursEnd            int             `json:"hoursEnd"`
	HourLimit           int             `json:"hourLimit"`
	RPPAreas            []string        `json:"rppAreas"`
	Exceptions          string          `json:"exceptions,omitempty"`
	Neighborhood        string          `json:"neighborhood,omitempty"`
	WindowStart         string          `json:"windowStart"`
	WindowEnd           string          `json:"windowEnd"`
	NextMoveDeadlineISO string          `json:"nextMoveDeadlineIso"`
	Distance            float64         `json:"distance"`
	Geometry            json.RawMessage `json:"geometry,omitempty"`
}

type checkLocationResponse struct {
	RequestPoint    pointResponse        `json:"requestPoint"`
	Timezone        string               `json:"timezone"`
	Schedule        *scheduleResponse    `json:"schedule"`
	ScheduleError   *string              `json:"scheduleError,omitempty"`
	Sides           []scheduleResponse   `json:"sides"`
	Regulation      *regulationResponse  `json:"regulation"`
	RegulationError *string              `json:"regulationError,omitempty"`
	Regulations     []regulationResponse `json:"regulations"`
}

func formatTime(region schedule.Region, t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := region.Format(t)
	return &s
}

func toSubscriptionResponse(st app.SubscriptionStatus, region schedule.Region) subscriptionResponse {
	sub := st.Subscription
	resp := subscriptionResponse{
		DeviceToken:      sub.DeviceToken,
		Platform:         string(sub.Platform),
		ScheduleID:       sub.Target.ScheduleID(),
		SubscriptionType: string(sub.Target.Type()),
		LeadMinutes:      sub.LeadMinutes,
		Latitude:         sub.Latitude,
		Longitude:        sub.Longitude,
		Deadline:         formatTime(region, st.Deadline),
		FireAt:           formatTime(region, st.FireAt),
		Armed:            st.Armed(),
		State:            string(st.State),
	}
	if sub.LastNotifiedAt.Valid {
		resp.LastNotifiedAt = formatTime(region, sub.LastNotifiedAt.Time)
	}
	return resp
}

func toScheduleResponse(side *schedule.BlockSide, region schedule.Region) scheduleResponse {
	resp := scheduleResponse{
		ScheduleID:     side.ScheduleID,
		CNN:            side.CNN,
		Corridor:       side.Key.Corridor,
		Limits:         side.Key.Limits,
		CNNRightLeft:   string(side.Key.SideToken),
		NextSweepStart: region.Format(side.NextWindow.Start),
		NextSweepEnd:   region.Format(side.NextWindow.End),
		Distance:       side.MinDistance,
		IsUserSide:     side.IsUserSide,
		Merged:         side.Merged,
		Geometry:       side.Geometry,
	}
	if side.Key.BlockSide != "" {
		label := side.Key.BlockSide
		resp.BlockSide = &label
	}
	resp.HumanRules = make([]string, 0, len(side.Rules))
	for _, rule := range side.Rules {
		resp.HumanRules = append(resp.HumanRules, schedule.RuleToHuman(rule))
	}
	return resp
}

func toRegulationResponse(rd schedule.RegulationDeadline, region schedule.Region) regulationResponse {
	c := rd.Candidate
	areas := c.RPPAreas
	if areas == nil {
		areas = []string{}
	}
	return regulationResponse{
		ID:                  c.ID,
		Regulation:          c.Regulation,
		HumanRule:           schedule.RegulationToHuman(c),
		Days:                c.Days,
		HoursBegin:          c.HoursBegin,
		HoursEnd:            c.HoursEnd,
		HourLimit:           c.HourLimit,
		RPPAreas:            areas,
		Exceptions:          c.Exceptions,
		Neighborhood:        c.Neighborhood,
		WindowStart:         region.Format(rd.Deadline.Window.Start),
		WindowEnd:           region.Format(rd.Deadline.Window.End),
		NextMoveDeadlineISO: region.Format(rd.Deadline.MoveBy),
		Distance:            c.DistanceMeters,
		Geometry:            c.Geometry,
	}
}

// Reported in place of a schedule or regulation when nothing was found nearby.
const (
	noScheduleNearby   = "no street sweeping schedule found nearby"
	noRegulationNearby = "no parking regulation found nearby"
)

func toCheckLocationResponse(res *app.LocationResult, region schedule.Region) checkLocationResponse {
	resp := checkLocationResponse{
		RequestPoint: pointResponse{Latitude: res.Point.Latitude, Longitude: res.Point.Longitude},
		Timezone:     region.Name,
		Sides:        make([]scheduleResponse, 0, len(res.Sides)),
		Regulations:  make([]regulationResponse, 0, len(res.Regulations)),
	}
	if res.Schedule != nil {
		s := toScheduleResponse(res.Schedule, region)
		resp.Schedule = &s
	}
	for _, side := range res.Sides {
		resp.Sides = append(resp.Sides, toScheduleResponse(side, region))
	}
	if res.ScheduleErr != nil {
		msg := res.ScheduleErr.Error()
		resp.ScheduleError = &msg
	} else if resp.Schedule == nil {
		msg := noScheduleNearby
		resp.ScheduleError = &msg
	}
	if res.Regulation != nil {
		r := toRegulationResponse(*res.Regulation, region)
		resp.Regulation = &r
	}
	for _, rd := range res.Regulations {
		resp.Regulations = append(resp.Regulations, toRegulationResponse(rd, region))
	}
	if res.RegulationErr != nil {
		msg := res.RegulationErr.Error()
		resp.RegulationError = &msg
	} else if resp.Regulation == nil {
		msg := noRegulationNearby
		resp.RegulationError = &msg
	}
	return resp
}
