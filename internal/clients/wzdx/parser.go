package wzdx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
)

// FeedVersion is the major WZDx spec version a payload follows.
type FeedVersion int

const (
	V2 FeedVersion = 2
	V3 FeedVersion = 3
	V4 FeedVersion = 4
)

// Normalize parses a raw WZDx payload into road events. Features without
// geometry are skipped and counted, never fatal. The error is set only
// when the envelope itself is unrecognizable.
func Normalize(raw []byte, feed Feed) ([]*hazard.RoadEvent, int, error) {
	features, version, err := parseEnvelope(raw)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	var events []*hazard.RoadEvent
	skipped := 0
	for i := range features {
		e := normalizeFeature(&features[i], version, feed, now)
		if e == nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	return events, skipped, nil
}

// parseEnvelope handles the envelope variants seen across state feeds:
// double-encoded JSON (a string containing JSON), bare feature arrays
// with no FeedInfo wrapper, and both feed info key spellings.
func parseEnvelope(raw []byte) ([]feature, FeedVersion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, V3, errcode.New(errcode.FeedParseError, "empty payload")
	}

	// Double-encoded: unwrap once and retry.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, V3, errcode.Wrap(errcode.FeedParseError, "unwrapping double-encoded payload", err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	if len(raw) > 0 && raw[0] == '[' {
		var features []feature
		if err := json.Unmarshal(raw, &features); err != nil {
			return nil, V3, errcode.Wrap(errcode.FeedParseError, "parsing bare feature array", err)
		}
		return features, V3, nil
	}

	var env feedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, V3, errcode.Wrap(errcode.FeedParseError, "parsing feed envelope", err)
	}

	version := V3
	if info := env.feedInfo(); info != nil && info.Version != "" {
		version = majorVersion(info.Version)
	}
	return env.Features, version, nil
}

// majorVersion extracts the leading integer from strings like "4.2".
func majorVersion(v string) FeedVersion {
	v = strings.TrimSpace(v)
	i := 0
	for i < len(v) && v[i] >= '0' && v[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(v[:i])
	if err != nil || n < 2 {
		return V3
	}
	if n > 4 {
		return V4
	}
	return FeedVersion(n)
}

// normalizeFeature converts one GeoJSON feature into a road event, or nil
// when the feature is unusable (no geometry, no identity).
func normalizeFeature(f *feature, version FeedVersion, feed Feed, now time.Time) *hazard.RoadEvent {
	if !hasGeometry(f.Geometry) {
		return nil
	}

	props := &f.Properties
	core := props.CoreDetails
	// Feeds sometimes advertise v3+ but carry flat v2 properties.
	if core == nil {
		version = V2
	}

	var eventType, dataSourceID, direction, description, roadName, name string
	var startRaw, endRaw, updateRaw string
	if version >= V3 && core != nil {
		eventType = core.EventType
		dataSourceID = core.DataSourceID
		direction = firstNonEmpty(core.Direction, props.Direction)
		description = firstNonEmpty(core.Description, props.Description)
		roadName = firstRoadName(core.RoadNames, core.RoadName, core.Name)
		name = core.Name
		startRaw = firstNonEmpty(props.StartDate, core.StartDate)
		endRaw = firstNonEmpty(props.EndDate, core.EndDate)
		updateRaw = firstNonEmpty(core.UpdateDate, props.UpdateDate)
	} else {
		eventType = props.EventType
		dataSourceID = props.DataSourceID
		direction = props.Direction
		description = props.Description
		roadName = firstRoadName(props.RoadNames, props.RoadName, "")
		startRaw = props.StartDate
		endRaw = props.EndDate
		updateRaw = props.UpdateDate
	}

	sourceEventID := string(f.ID)
	if sourceEventID == "" {
		sourceEventID = string(props.RoadEventID)
	}
	if sourceEventID == "" {
		sourceEventID = fmt.Sprintf("%s:%s:%s", dataSourceID, roadName, startRaw)
	}
	if strings.Trim(sourceEventID, ": ") == "" {
		return nil
	}

	typ := typeFromEventType(eventType)
	severity := severityFromImpact(props.VehicleImpact)

	title := name
	if title == "" {
		where := roadName
		if where == "" {
			where = "roadway"
		}
		title = fmt.Sprintf("%s on %s", typeLabel(typ), where)
	}

	e := &hazard.RoadEvent{
		SourceEventID:       sourceEventID,
		Source:              feed.Name,
		State:               strings.ToUpper(feed.State),
		Type:                typ,
		Severity:            severity,
		Title:               title,
		Description:         description,
		Direction:           direction,
		RouteName:           roadName,
		Geometry:            f.Geometry,
		LocationDescription: crossStreets(props.BeginningCrossStreet, props.EndingCrossStreet),
		StartedAt:           parseTime(startRaw),
		ExpectedEndAt:       parseTime(endRaw),
		LastUpdatedAt:       now,
		DetourDescription:   props.Detour,
		SourceFeedURL:       feed.URL,
		VehicleRestrictions: mapRestrictions(props.Restrictions),
		IsActive:            true,
		Raw:                 f.raw,
	}
	if t := parseTime(updateRaw); t != nil {
		e.LastUpdatedAt = *t
	}
	if props.VehicleImpact != "" || props.workersPresent() != nil {
		e.LaneImpact = &hazard.LaneImpact{
			VehicleImpact:  props.VehicleImpact,
			WorkersPresent: props.workersPresent(),
		}
	}
	return e
}

func hasGeometry(g json.RawMessage) bool {
	g = bytes.TrimSpace(g)
	return len(g) > 0 && string(g) != "null" && string(g) != "{}"
}

// severityFromImpact maps the WZDx vehicle_impact vocabulary onto severity.
func severityFromImpact(impact string) hazard.Severity {
	switch strings.ToLower(strings.TrimSpace(impact)) {
	case "all-lanes-closed":
		return hazard.SeverityCritical
	case "some-lanes-closed", "alternating-one-way", "merge-left", "merge-right":
		return hazard.SeverityWarning
	case "shifting-left", "shifting-right", "reduced-speed-zone":
		return hazard.SeverityAdvisory
	default:
		return hazard.SeverityInfo
	}
}

func typeFromEventType(eventType string) hazard.RoadEventType {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "work-zone":
		return hazard.EventConstruction
	case "restriction":
		return hazard.EventRestriction
	case "incident":
		return hazard.EventIncident
	case "event":
		return hazard.EventSpecialEvent
	default:
		return hazard.EventConstruction
	}
}

func typeLabel(t hazard.RoadEventType) string {
	switch t {
	case hazard.EventRestriction:
		return "Restriction"
	case hazard.EventIncident:
		return "Incident"
	case hazard.EventSpecialEvent:
		return "Special event"
	default:
		return "Construction"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRoadName(names stringList, scalar, fallback string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return firstNonEmpty(scalar, fallback)
}

func crossStreets(begin, end string) string {
	switch {
	case begin != "" && end != "":
		return fmt.Sprintf("Between %s and %s", begin, end)
	case begin != "":
		return fmt.Sprintf("Near %s", begin)
	case end != "":
		return fmt.Sprintf("Near %s", end)
	default:
		return ""
	}
}

// timeLayouts covers the date formats state feeds actually emit.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func mapRestrictions(rs []restriction) []hazard.VehicleRestriction {
	var out []hazard.VehicleRestriction
	for _, r := range rs {
		typ := firstNonEmpty(r.Type, r.RestrictionType)
		if typ == "" {
			continue
		}
		vr := hazard.VehicleRestriction{Type: typ, Unit: r.Unit}
		if r.Value != nil {
			v := float64(*r.Value)
			vr.Value = &v
		}
		out = append(out, vr)
	}
	return out
}

// feedEnvelope is the FeatureCollection wrapper. Feed metadata appears
// under road_event_feed_info in older feeds and feed_info in v4.
type feedEnvelope struct {
	RoadEventFeedInfo *feedInfo `json:"road_event_feed_info"`
	FeedInfo          *feedInfo `json:"feed_info"`
	Features          []feature `json:"features"`
}

func (e *feedEnvelope) feedInfo() *feedInfo {
	if e.RoadEventFeedInfo != nil {
		return e.RoadEventFeedInfo
	}
	return e.FeedInfo
}

type feedInfo struct {
	Version string `json:"version"`
}

// feature is one GeoJSON feature. The raw bytes are retained for the
// store's audit column.
type feature struct {
	ID         flexString      `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties properties      `json:"properties"`

	raw json.RawMessage
}

func (f *feature) UnmarshalJSON(b []byte) error {
	type plain feature
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = feature(p)
	f.raw = append(json.RawMessage(nil), b...)
	return nil
}

// properties holds every field we read across v2 through v4. Versions
// disagree about where things live, so both layouts sit side by side.
type properties struct {
	CoreDetails *coreDetails `json:"core_details"`

	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	UpdateDate     string          `json:"update_date"`
	VehicleImpact  string          `json:"vehicle_impact"`
	WorkerPresence *workerPresence `json:"worker_presence"`
	WorkersPresent *bool           `json:"workers_present"`
	Restrictions   []restriction   `json:"restrictions"`

	BeginningCrossStreet string `json:"beginning_cross_street"`
	EndingCrossStreet    string `json:"ending_cross_street"`
	Detour               string `json:"detour"`

	// v2 flat layout
	RoadEventID  flexString `json:"road_event_id"`
	EventType    string     `json:"event_type"`
	DataSourceID string     `json:"data_source_id"`
	RoadName     string     `json:"road_name"`
	RoadNames    stringList `json:"road_names"`
	Direction    string     `json:"direction"`
	Description  string     `json:"description"`
}

func (p *properties) workersPresent() *bool {
	if p.WorkerPresence != nil && p.WorkerPresence.AreWorkersPresent != nil {
		return p.WorkerPresence.AreWorkersPresent
	}
	return p.WorkersPresent
}

type coreDetails struct {
	EventType    string     `json:"event_type"`
	DataSourceID string     `json:"data_source_id"`
	Name         string     `json:"name"`
	RoadNames    stringList `json:"road_names"`
	RoadName     string     `json:"road_name"`
	Direction    string     `json:"direction"`
	Description  string     `json:"description"`
	UpdateDate   string     `json:"update_date"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
}

type workerPresence struct {
	AreWorkersPresent *bool `json:"are_workers_present"`
}

type restriction struct {
	Type            string     `json:"type"`
	RestrictionType string     `json:"restriction_type"`
	Value           *flexFloat `json:"value"`
	Unit            string     `json:"unit"`
}

// flexString tolerates ids that arrive as numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

// stringList tolerates scalar strings where an array is expected.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*l = stringList{v}
		return nil
	}
	var vs []string
	if err := json.Unmarshal(b, &vs); err != nil {
		return err
	}
	*l = stringList(vs)
	return nil
}

// flexFloat tolerates quoted numbers.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
