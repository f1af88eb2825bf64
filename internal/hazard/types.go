// Package hazard defines the common hazard model shared by the ingestion
// pipeline, the spatial store, and the query engine. Geometries travel as
// GeoJSON fragments; SRID 4326 throughout.
package hazard

import (
	"encoding/json"
	"time"
)

// Kind discriminates the hazard variants in merged query results.
type Kind string

const (
	KindRoadEvent       Kind = "road_event"
	KindWeatherAlert    Kind = "weather_alert"
	KindCommunityReport Kind = "community_report"
)

// RoadEventType classifies normalized road events.
type RoadEventType string

const (
	EventClosure        RoadEventType = "CLOSURE"
	EventRestriction    RoadEventType = "RESTRICTION"
	EventConstruction   RoadEventType = "CONSTRUCTION"
	EventIncident       RoadEventType = "INCIDENT"
	EventWeatherClosure RoadEventType = "WEATHER_CLOSURE"
	EventChainLaw       RoadEventType = "CHAIN_LAW"
	EventSpecialEvent   RoadEventType = "SPECIAL_EVENT"
)

// ReportType classifies community reports.
type ReportType string

const (
	ReportRoadHazard       ReportType = "ROAD_HAZARD"
	ReportClosureUpdate    ReportType = "CLOSURE_UPDATE"
	ReportWeatherCondition ReportType = "WEATHER_CONDITION"
	ReportWaitTime         ReportType = "WAIT_TIME"
	ReportParkingFull      ReportType = "PARKING_FULL"
	ReportOther            ReportType = "OTHER"
)

// ModerationStatus tracks the community report review state.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRemoved  ModerationStatus = "removed"
)

// LaneImpact describes how a work zone affects travel lanes.
type LaneImpact struct {
	VehicleImpact  string `json:"vehicleImpact"`
	WorkersPresent *bool  `json:"workersPresent,omitempty"`
}

// VehicleRestriction is one restriction attached to a road event, such as
// a width or weight limit.
type VehicleRestriction struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

// RoadEvent is a normalized work zone, closure, or incident from a state
// DOT feed. Unique per (Source, SourceEventID).
type RoadEvent struct {
	ID                  string               `json:"id"`
	Source              string               `json:"source"`
	SourceEventID       string               `json:"sourceEventId"`
	State               string               `json:"state"`
	Type                RoadEventType        `json:"type"`
	Severity            Severity             `json:"severity"`
	Title               string               `json:"title"`
	Description         string               `json:"description,omitempty"`
	Direction           string               `json:"direction,omitempty"`
	RouteName           string               `json:"routeName,omitempty"`
	Geometry            json.RawMessage      `json:"geometry"`
	LocationDescription string               `json:"locationDescription,omitempty"`
	StartedAt           *time.Time           `json:"startedAt,omitempty"`
	ExpectedEndAt       *time.Time           `json:"expectedEndAt,omitempty"`
	LastUpdatedAt       time.Time            `json:"lastUpdatedAt"`
	LaneImpact          *LaneImpact          `json:"laneImpact,omitempty"`
	VehicleRestrictions []VehicleRestriction `json:"vehicleRestrictions,omitempty"`
	DetourDescription   string               `json:"detourDescription,omitempty"`
	SourceFeedURL       string               `json:"sourceFeedUrl,omitempty"`
	IsActive            bool                 `json:"isActive"`
	Raw                 json.RawMessage      `json:"-"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// WeatherAlert is a normalized NWS alert. Unique per NWSID. Geometry may
// be nil at normalize time; the ingestion engine fills it from zone
// polygons before persisting.
type WeatherAlert struct {
	ID              string          `json:"id"`
	NWSID           string          `json:"nwsId"`
	Event           string          `json:"event"`
	Severity        Severity        `json:"severity"`
	Urgency         string          `json:"urgency,omitempty"`
	Certainty       string          `json:"certainty,omitempty"`
	Headline        string          `json:"headline,omitempty"`
	Description     string          `json:"description,omitempty"`
	Instruction     string          `json:"instruction,omitempty"`
	AreaDescription string          `json:"areaDescription"`
	AffectedZones   []string        `json:"affectedZones,omitempty"`
	Geometry        json.RawMessage `json:"geometry,omitempty"`
	Onset           *time.Time      `json:"onset,omitempty"`
	Expires         *time.Time      `json:"expires,omitempty"`
	LastUpdatedAt   time.Time       `json:"lastUpdatedAt"`
	SenderName      string          `json:"senderName,omitempty"`
	WindSpeed       string          `json:"windSpeed,omitempty"`
	SnowAmount      string          `json:"snowAmount,omitempty"`
	IsActive        bool            `json:"isActive"`
	Raw             json.RawMessage `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CommunityReport is a crowdsourced hazard report pinned to a point.
type CommunityReport struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"userId,omitempty"`
	Type                ReportType       `json:"type"`
	Title               string           `json:"title"`
	Description         string           `json:"description,omitempty"`
	Latitude            float64          `json:"latitude"`
	Longitude           float64          `json:"longitude"`
	Location            json.RawMessage  `json:"location,omitempty"`
	LocationDescription string           `json:"locationDescription,omitempty"`
	RouteName           string           `json:"routeName,omitempty"`
	State               string           `json:"state,omitempty"`
	Severity            Severity         `json:"severity"`
	Upvotes             int              `json:"upvotes"`
	Downvotes           int              `json:"downvotes"`
	ModerationStatus    ModerationStatus `json:"moderationStatus"`
	IsActive            bool             `json:"isActive"`
	ExpiresAt           *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// ParkingFacility is a truck parking site from a TPIMS feed. Unique per
// (Source, SourceFacilityID).
type ParkingFacility struct {
	ID               string          `json:"id"`
	Source           string          `json:"source"`
	SourceFacilityID string          `json:"sourceFacilityId"`
	Name             string          `json:"name"`
	State            string          `json:"state"`
	Highway          string          `json:"highway,omitempty"`
	Direction        string          `json:"direction,omitempty"`
	Location         json.RawMessage `json:"location"`
	TotalSpaces      *int            `json:"totalSpaces,omitempty"`
	AvailableSpaces  *int            `json:"availableSpaces,omitempty"`
	Trend            string          `json:"trend,omitempty"`
	Amenities        []string        `json:"amenities,omitempty"`
	LastUpdatedAt    time.Time       `json:"lastUpdatedAt"`
	IsActive         bool            `json:"isActive"`
}

// RouteHazard is one hazard intersecting a route corridor, tagged by kind.
// Exactly one of the variant pointers is set.
type RouteHazard struct {
	Kind               Kind             `json:"kind"`
	PositionAlongRoute float64          `json:"positionAlongRoute"`
	Severity           Severity         `json:"severity"`
	RoadEvent          *RoadEvent       `json:"roadEvent,omitempty"`
	WeatherAlert       *WeatherAlert    `json:"weatherAlert,omitempty"`
	CommunityReport    *CommunityReport `json:"communityReport,omitempty"`
}
