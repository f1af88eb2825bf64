package wzdx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
)

var testFeed = Feed{Name: "wzdx-test", URL: "https://example.com/wzdx", State: "co"}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestNormalizeV4(t *testing.T) {
	raw := loadFixture(t, "wzdx_v4.json")

	events, skipped, err := Normalize(raw, testFeed)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "feature without geometry should be skipped")
	require.Len(t, events, 2)

	e := events[0]
	assert.Equal(t, "cdot-i70-001", e.SourceEventID)
	assert.Equal(t, "wzdx-test", e.Source)
	assert.Equal(t, "CO", e.State)
	assert.Equal(t, hazard.EventConstruction, e.Type)
	assert.Equal(t, hazard.SeverityWarning, e.Severity)
	assert.Equal(t, "I-70", e.RouteName)
	assert.Equal(t, "westbound", e.Direction)
	assert.Equal(t, "Between US 6 and CO 65", e.LocationDescription)
	assert.Equal(t, "Construction on I-70", e.Title)
	assert.Contains(t, e.Description, "Bridge deck repair")
	require.NotNil(t, e.StartedAt)
	assert.Equal(t, time.Date(2025, 1, 10, 7, 0, 0, 0, time.UTC), e.StartedAt.UTC())
	require.NotNil(t, e.ExpectedEndAt)
	require.NotNil(t, e.LaneImpact)
	assert.Equal(t, "some-lanes-closed", e.LaneImpact.VehicleImpact)
	require.NotNil(t, e.LaneImpact.WorkersPresent)
	assert.True(t, *e.LaneImpact.WorkersPresent)
	require.Len(t, e.VehicleRestrictions, 1)
	assert.Equal(t, "reduced-width", e.VehicleRestrictions[0].Type)
	require.NotNil(t, e.VehicleRestrictions[0].Value)
	assert.InDelta(t, 11.5, *e.VehicleRestrictions[0].Value, 0.001)
	assert.Equal(t, "feet", e.VehicleRestrictions[0].Unit)
	assert.NotEmpty(t, e.Raw, "raw feature bytes should be retained")

	incident := events[1]
	assert.Equal(t, hazard.EventIncident, incident.Type)
	assert.Equal(t, hazard.SeverityCritical, incident.Severity)
	assert.Equal(t, "US 50", incident.RouteName)
	assert.Nil(t, incident.ExpectedEndAt)
}

func TestNormalizeV2Flat(t *testing.T) {
	raw := loadFixture(t, "wzdx_v2.json")

	events, skipped, err := Normalize(raw, Feed{Name: "wzdx-az", URL: "https://example.com", State: "AZ"})
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, events, 2)

	e := events[0]
	assert.Equal(t, "77421", e.SourceEventID, "numeric road_event_id should come through as text")
	assert.Equal(t, hazard.EventConstruction, e.Type)
	assert.Equal(t, hazard.SeverityAdvisory, e.Severity)
	assert.Equal(t, "Loop 101", e.RouteName)
	require.NotNil(t, e.LaneImpact)
	require.NotNil(t, e.LaneImpact.WorkersPresent)
	assert.False(t, *e.LaneImpact.WorkersPresent)

	composite := events[1]
	assert.Equal(t, "mcdot:I-17:2025-01-14T00:00:00Z", composite.SourceEventID)
	assert.Equal(t, hazard.EventRestriction, composite.Type)
	assert.Equal(t, "I-17", composite.RouteName, "scalar road_names should parse as a one-item list")
	require.Len(t, composite.VehicleRestrictions, 1)
	require.NotNil(t, composite.VehicleRestrictions[0].Value)
	assert.InDelta(t, 13.5, *composite.VehicleRestrictions[0].Value, 0.001, "quoted numbers should parse")
}

func TestNormalizeDoubleEncoded(t *testing.T) {
	raw := loadFixture(t, "wzdx_v2.json")
	wrapped, err := json.Marshal(string(raw))
	require.NoError(t, err)

	events, _, err := Normalize(wrapped, testFeed)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNormalizeBareArray(t *testing.T) {
	raw := []byte(`[
		{
			"id": "az511-100",
			"geometry": {"type": "Point", "coordinates": [-111.65, 35.19]},
			"properties": {
				"core_details": {"event_type": "event", "road_names": ["I-40"]},
				"vehicle_impact": "merge-left"
			}
		}
	]`)

	events, skipped, err := Normalize(raw, testFeed)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, events, 1)
	assert.Equal(t, hazard.EventSpecialEvent, events[0].Type)
	assert.Equal(t, hazard.SeverityWarning, events[0].Severity)
}

func TestNormalizeV3WithoutCoreDetailsFallsBackToV2(t *testing.T) {
	raw := []byte(`{
		"road_event_feed_info": {"version": "3.1"},
		"features": [
			{
				"geometry": {"type": "Point", "coordinates": [-104.99, 39.74]},
				"properties": {
					"road_event_id": "flat-1",
					"event_type": "incident",
					"road_name": "I-25",
					"vehicle_impact": "all-lanes-closed"
				}
			}
		]
	}`)

	events, _, err := Normalize(raw, testFeed)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "flat-1", events[0].SourceEventID)
	assert.Equal(t, hazard.EventIncident, events[0].Type)
	assert.Equal(t, "I-25", events[0].RouteName)
}

func TestNormalizeUnrecognizableEnvelope(t *testing.T) {
	for _, raw := range []string{"", "<html>not json</html>", `{"features": [{`} {
		_, _, err := Normalize([]byte(raw), testFeed)
		require.Error(t, err)
		assert.Equal(t, errcode.FeedParseError, errcode.CodeOf(err))
	}
}

func TestNormalizeSkipsFeaturesWithoutIdentity(t *testing.T) {
	raw := []byte(`{
		"feed_info": {"version": "4.0"},
		"features": [
			{
				"geometry": {"type": "Point", "coordinates": [-105.0, 39.7]},
				"properties": {"core_details": {"event_type": "work-zone"}}
			}
		]
	}`)

	events, skipped, err := Normalize(raw, testFeed)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 1, skipped)
}

func TestMajorVersion(t *testing.T) {
	cases := map[string]FeedVersion{
		"4.2":     V4,
		"4.0":     V4,
		"3.1":     V3,
		"2.0":     V2,
		"5.0":     V4,
		"garbage": V3,
		"":        V3,
		"1.0":     V3,
	}
	for in, want := range cases {
		assert.Equal(t, want, majorVersion(in), "version %q", in)
	}
}

func TestSeverityFromImpact(t *testing.T) {
	cases := map[string]hazard.Severity{
		"all-lanes-closed":    hazard.SeverityCritical,
		"some-lanes-closed":   hazard.SeverityWarning,
		"alternating-one-way": hazard.SeverityWarning,
		"merge-left":          hazard.SeverityWarning,
		"merge-right":         hazard.SeverityWarning,
		"shifting-left":       hazard.SeverityAdvisory,
		"shifting-right":      hazard.SeverityAdvisory,
		"reduced-speed-zone":  hazard.SeverityAdvisory,
		"all-lanes-open":      hazard.SeverityInfo,
		"unknown":             hazard.SeverityInfo,
		"":                    hazard.SeverityInfo,
		"ALL-LANES-CLOSED":    hazard.SeverityCritical,
	}
	for in, want := range cases {
		assert.Equal(t, want, severityFromImpact(in), "impact %q", in)
	}
}

func TestTypeFromEventType(t *testing.T) {
	cases := map[string]hazard.RoadEventType{
		"work-zone":   hazard.EventConstruction,
		"restriction": hazard.EventRestriction,
		"incident":    hazard.EventIncident,
		"event":       hazard.EventSpecialEvent,
		"detour":      hazard.EventConstruction,
		"":            hazard.EventConstruction,
	}
	for in, want := range cases {
		assert.Equal(t, want, typeFromEventType(in), "event_type %q", in)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	for _, in := range []string{
		"2025-01-10T07:00:00Z",
		"2025-01-10T07:00:00-07:00",
		"2025-01-10T07:00:00",
		"2025-01-10 07:00:00",
		"2025-01-10",
	} {
		require.NotNil(t, parseTime(in), "layout %q", in)
	}
	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("next tuesday"))
}
