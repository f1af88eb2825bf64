package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		realIP  string
		xff     string
		remote  string
		want    string
	}{
		{
			name:   "x-real-ip wins",
			realIP: "198.51.100.4",
			xff:    "10.0.0.1, 198.51.100.9",
			want:   "198.51.100.4",
		},
		{
			name: "last forwarded hop, not the client-supplied first",
			xff:  "1.2.3.4, 203.0.113.50",
			want: "203.0.113.50",
		},
		{
			name: "single forwarded hop",
			xff:  "203.0.113.50",
			want: "203.0.113.50",
		},
		{
			name:   "falls back to remote addr without port",
			remote: "192.0.2.7:54321",
			want:   "192.0.2.7",
		},
		{
			name: "unknown when nothing is available",
			want: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
