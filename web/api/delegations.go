package api

// ServersResponse represents the API response for GET /delegs/servers and
// GET /delegs/rewards. Totals map an endpoint to its delegated token amount.
// Stale flags that the last successful scan is older than the configured
// maximum staleness; the data is the last fully-published snapshot either way.
type ServersResponse struct {
	Servers   map[string]int64 `json:"servers"`
	Stale     bool             `json:"stale"`
	UpdatedAt string           `json:"updated_at,omitempty"`
}
