package cache

// Key builders for the data-plane namespaces. Rate limit keys live in
// gate.go next to the gate.

// FeedRawKey holds the raw payload of one upstream feed fetch.
func FeedRawKey(feedName string) string { return "feed:" + feedName + ":raw" }

// ZoneKey holds one resolved NWS zone geometry.
func ZoneKey(zoneID string) string { return "nws:zone:" + zoneID }

// RouteCheckKey holds one cached route check response.
func RouteCheckKey(hash string) string { return "route:check:" + hash }
