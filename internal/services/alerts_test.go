package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/store"
)

type fakeAlertStore struct {
	filters []store.AlertFilter
	alerts  []*hazard.WeatherAlert
	total   int
	err     error
}

func (f *fakeAlertStore) List(_ context.Context, filter store.AlertFilter) ([]*hazard.WeatherAlert, int, error) {
	f.filters = append(f.filters, filter)
	return f.alerts, f.total, f.err
}

func TestAlertZoomPolicyUsesNWSVocabulary(t *testing.T) {
	tests := []struct {
		name           string
		query          AlertQuery
		wantLimit      int
		wantSeverities []string
	}{
		{
			name:           "continent view shows only extreme",
			query:          AlertQuery{Zoom: intPtr(3)},
			wantLimit:      50,
			wantSeverities: []string{"Extreme"},
		},
		{
			name:           "regional view adds severe",
			query:          AlertQuery{Zoom: intPtr(7)},
			wantLimit:      150,
			wantSeverities: []string{"Extreme", "Severe"},
		},
		{
			name:           "street view has no floor",
			query:          AlertQuery{Zoom: intPtr(10)},
			wantLimit:      500,
			wantSeverities: nil,
		},
		{
			name:           "explicit severity wins",
			query:          AlertQuery{Zoom: intPtr(3), Severities: []string{"Moderate"}},
			wantLimit:      50,
			wantSeverities: []string{"Moderate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAlertStore{}
			svc := NewAlertService(fake, zap.NewNop())

			_, _, err := svc.List(context.Background(), tt.query)
			require.NoError(t, err)
			require.Len(t, fake.filters, 1)
			assert.Equal(t, tt.wantLimit, fake.filters[0].Limit)
			assert.Equal(t, tt.wantSeverities, fake.filters[0].Severities)
		})
	}
}
