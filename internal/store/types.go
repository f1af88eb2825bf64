package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/roadpulse/server/internal/lib/geo"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// FeedStatus is the health row for one registered feed, created lazily on
// first ingest.
type FeedStatus struct {
	FeedName               string     `json:"feedName"`
	FeedURL                string     `json:"feedUrl"`
	State                  string     `json:"state,omitempty"`
	Status                 string     `json:"status"`
	LastSuccessAt          *time.Time `json:"lastSuccessAt,omitempty"`
	LastErrorAt            *time.Time `json:"lastErrorAt,omitempty"`
	LastErrorMessage       string     `json:"lastErrorMessage,omitempty"`
	RecordCount            *int       `json:"recordCount,omitempty"`
	AvgFetchMs             *int       `json:"avgFetchMs,omitempty"`
	IsEnabled              bool       `json:"isEnabled"`
	RefreshIntervalMinutes int        `json:"refreshIntervalMinutes"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// Feed status values.
const (
	FeedHealthy  = "healthy"
	FeedDegraded = "degraded"
	FeedDown     = "down"
	FeedUnknown  = "unknown"
)

// IngestionLog is one append-only audit row per ingestion attempt.
type IngestionLog struct {
	ID               int64     `json:"id"`
	FeedName         string    `json:"feedName"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	DurationMs       int       `json:"durationMs"`
	InsertedCount    int       `json:"insertedCount"`
	UpdatedCount     int       `json:"updatedCount"`
	DeactivatedCount int       `json:"deactivatedCount"`
	ErrorCount       int       `json:"errorCount"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Ingestion log status values.
const (
	IngestSuccess = "success"
	IngestFailed  = "failed"
)

// User is an account row. Password hashes never leave this package except
// through CheckPassword-style flows in the auth service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SavedRoute is a user-owned origin/destination pair for repeat checks.
type SavedRoute struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Name               string    `json:"name"`
	OriginAddress      string    `json:"originAddress"`
	DestinationAddress string    `json:"destinationAddress"`
	OriginLat          float64   `json:"originLat"`
	OriginLng          float64   `json:"originLng"`
	DestinationLat     float64   `json:"destinationLat"`
	DestinationLng     float64   `json:"destinationLng"`
	CorridorMiles      float64   `json:"corridorMiles"`
	CreatedAt          time.Time `json:"createdAt"`
}

// UpsertResult reports one batch upsert: how many rows were newly inserted
// versus refreshed, and the natural keys touched.
type UpsertResult struct {
	Inserted int
	Updated  int
	Keys     []string
}

// EventFilter selects road events for list queries.
type EventFilter struct {
	BBox       *geo.BBox
	ActiveOnly bool
	Severities []string
	State      string
	Type       string
	Limit      int
	Offset     int
}

// AlertFilter selects weather alerts for list queries.
type AlertFilter struct {
	BBox       *geo.BBox
	ActiveOnly bool
	Severities []string
	Limit      int
	Offset     int
}

// ReportFilter selects community reports for list queries.
type ReportFilter struct {
	BBox       *geo.BBox
	ActiveOnly bool
	Type       string
	State      string
	Limit      int
	Offset     int
}

// ParkingFilter selects parking facilities for list queries.
type ParkingFilter struct {
	BBox       *geo.BBox
	ActiveOnly bool
	State      string
	Limit      int
	Offset     int
}

// Cluster is one DBSCAN bucket for low-zoom map views.
type Cluster struct {
	Geometry    json.RawMessage `json:"geometry"`
	Count       int             `json:"count"`
	HasCritical bool            `json:"has_critical"`
	HasWarning  bool            `json:"has_warning"`
}

// VoteResult is the counter state after a vote toggle. UserVote is nil
// when the toggle removed the caller's vote.
type VoteResult struct {
	Upvotes   int     `json:"upvotes"`
	Downvotes int     `json:"downvotes"`
	UserVote  *string `json:"userVote"`
}
