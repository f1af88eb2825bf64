package tpims

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
)

// NormalizeStatic parses a static inventory payload into full facility
// records. Sites without coordinates are skipped and counted.
func NormalizeStatic(raw []byte, source string) ([]*hazard.ParkingFacility, int, error) {
	sites, err := parseSites(raw)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	var facilities []*hazard.ParkingFacility
	skipped := 0
	for _, s := range sites {
		if s.SiteID == "" || s.Location == nil || (s.Location.Latitude == 0 && s.Location.Longitude == 0) {
			skipped++
			continue
		}
		loc, err := geo.PointGeoJSON(s.Location.Longitude, s.Location.Latitude)
		if err != nil {
			skipped++
			continue
		}

		f := &hazard.ParkingFacility{
			Source:           source,
			SourceFacilityID: s.SiteID,
			Name:             firstNonEmpty(s.Name, s.SiteName, s.SiteID),
			State:            strings.ToUpper(s.State),
			Highway:          s.RelevantHighway,
			Direction:        s.DirectionOfTravel,
			Location:         loc,
			Amenities:        s.Amenity,
			LastUpdatedAt:    now,
			IsActive:         true,
		}
		if s.Capacity != nil {
			total := int(*s.Capacity)
			f.TotalSpaces = &total
		}
		if t := parseTimestamp(s.TimeStampStatic); t != nil {
			f.LastUpdatedAt = *t
		}
		facilities = append(facilities, f)
	}
	return facilities, skipped, nil
}

// NormalizeDynamic parses an availability payload into partial records.
// Only availability fields are populated; the store applies them to
// facilities the static feed created.
func NormalizeDynamic(raw []byte, source string) ([]*hazard.ParkingFacility, int, error) {
	sites, err := parseSites(raw)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	var updates []*hazard.ParkingFacility
	skipped := 0
	for _, s := range sites {
		if s.SiteID == "" {
			skipped++
			continue
		}
		u := &hazard.ParkingFacility{
			Source:           source,
			SourceFacilityID: s.SiteID,
			Trend:            s.Trend,
			LastUpdatedAt:    now,
		}
		if s.ReportedAvailable != nil {
			avail := int(*s.ReportedAvailable)
			if avail < 0 {
				avail = 0
			}
			u.AvailableSpaces = &avail
		}
		if t := parseTimestamp(s.TimeStamp); t != nil {
			u.LastUpdatedAt = *t
		}
		updates = append(updates, u)
	}
	return updates, skipped, nil
}

// parseSites accepts both a bare site array and an envelope with a
// parkingSites or sites key.
func parseSites(raw []byte) ([]site, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errcode.New(errcode.FeedParseError, "empty parking payload")
	}

	if raw[0] == '[' {
		var sites []site
		if err := json.Unmarshal(raw, &sites); err != nil {
			return nil, errcode.Wrap(errcode.FeedParseError, "parsing parking site array", err)
		}
		return sites, nil
	}

	var env siteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errcode.Wrap(errcode.FeedParseError, "parsing parking envelope", err)
	}
	if env.ParkingSites != nil {
		return env.ParkingSites, nil
	}
	return env.Sites, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// timestampLayouts covers formats seen across member states.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

type siteEnvelope struct {
	ParkingSites []site `json:"parkingSites"`
	Sites        []site `json:"sites"`
}

// site covers both static and dynamic record shapes.
type site struct {
	SiteID            string        `json:"siteId"`
	Name              string        `json:"name"`
	SiteName          string        `json:"siteName"`
	State             string        `json:"state"`
	Location          *siteLocation `json:"location"`
	Capacity          *flexInt      `json:"capacity"`
	Amenity           []string      `json:"amenity"`
	RelevantHighway   string        `json:"relevantHighway"`
	DirectionOfTravel string        `json:"directionOfTravel"`
	TimeStampStatic   string        `json:"timeStampStatic"`

	TimeStamp         string   `json:"timeStamp"`
	ReportedAvailable *flexInt `json:"reportedAvailable"`
	Trend             string   `json:"trend"`
}

type siteLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// flexInt tolerates counts that arrive as quoted strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexInt(int(v))
	return nil
}
