package nws

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
)

// roadKeywords select alert types that affect road travel. NWS composes
// event names from these with Warning/Watch/Advisory suffixes, so a
// keyword match covers the whole family.
var roadKeywords = []string{
	"Winter",
	"Blizzard",
	"Ice",
	"Snow",
	"Freezing",
	"Wind",
	"Fog",
	"Dust",
	"Flood",
	"Tornado",
	"Hurricane",
	"Tropical Storm",
	"Severe Thunderstorm",
	"Extreme Cold",
	"Avalanche",
}

// IsRoadRelevant reports whether an alert event type matters to drivers.
func IsRoadRelevant(event string) bool {
	for _, kw := range roadKeywords {
		if strings.Contains(event, kw) {
			return true
		}
	}
	return false
}

// NormalizeAlerts parses the active-alerts payload and returns road
// relevant alerts plus the count filtered out. Alerts without inline
// geometry keep a nil Geometry for the zone resolver to fill.
func NormalizeAlerts(raw []byte) ([]*hazard.WeatherAlert, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, 0, errcode.New(errcode.FeedParseError, "empty alerts payload")
	}

	var env alertEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, errcode.Wrap(errcode.FeedParseError, "parsing alerts envelope", err)
	}

	now := time.Now().UTC()
	var alerts []*hazard.WeatherAlert
	filtered := 0
	for i := range env.Features {
		f := &env.Features[i]
		if !IsRoadRelevant(f.Properties.Event) {
			filtered++
			continue
		}
		a := normalizeAlert(f, now)
		if a == nil {
			filtered++
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, filtered, nil
}

func normalizeAlert(f *alertFeature, now time.Time) *hazard.WeatherAlert {
	p := &f.Properties

	id := p.ID
	if id == "" {
		id = f.ID
	}
	if id == "" {
		return nil
	}

	a := &hazard.WeatherAlert{
		NWSID:           id,
		Event:           p.Event,
		Severity:        hazard.Severity(p.Severity),
		Urgency:         p.Urgency,
		Certainty:       p.Certainty,
		Headline:        p.Headline,
		Description:     p.Description,
		Instruction:     p.Instruction,
		AreaDescription: p.AreaDesc,
		AffectedZones:   p.AffectedZones,
		SenderName:      p.SenderName,
		WindSpeed:       paramString(p.Parameters, "maxWindGust", "windGust"),
		SnowAmount:      paramString(p.Parameters, "snowAmount", "maxSnowAmount"),
		Onset:           firstTime(p.Onset, p.Effective),
		Expires:         firstTime(p.Ends, p.Expires),
		LastUpdatedAt:   now,
		IsActive:        true,
		Raw:             f.raw,
	}
	if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
		a.Geometry = f.Geometry
	}
	return a
}

// paramString pulls the first value under any of the given parameter keys.
// CAP parameter values arrive as arrays of mixed strings and numbers.
func paramString(params map[string][]any, keys ...string) string {
	for _, key := range keys {
		vals, ok := params[key]
		if !ok || len(vals) == 0 {
			continue
		}
		switch v := vals[0].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstTime(vals ...*time.Time) *time.Time {
	for _, v := range vals {
		if v != nil {
			u := v.UTC()
			return &u
		}
	}
	return nil
}

// alertEnvelope is the GeoJSON wrapper around active alerts.
type alertEnvelope struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties alertProperties `json:"properties"`

	raw json.RawMessage
}

func (f *alertFeature) UnmarshalJSON(b []byte) error {
	type plain alertFeature
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = alertFeature(p)
	f.raw = append(json.RawMessage(nil), b...)
	return nil
}

type alertProperties struct {
	ID            string           `json:"id"`
	Event         string           `json:"event"`
	Severity      string           `json:"severity"`
	Urgency       string           `json:"urgency"`
	Certainty     string           `json:"certainty"`
	Headline      string           `json:"headline"`
	Description   string           `json:"description"`
	Instruction   string           `json:"instruction"`
	AreaDesc      string           `json:"areaDesc"`
	AffectedZones []string         `json:"affectedZones"`
	SenderName    string           `json:"senderName"`
	Effective     *time.Time       `json:"effective"`
	Onset         *time.Time       `json:"onset"`
	Expires       *time.Time       `json:"expires"`
	Ends          *time.Time       `json:"ends"`
	Parameters    map[string][]any `json:"parameters"`
}
