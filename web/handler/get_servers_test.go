package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angerman/encoins-relay/delegs"
	"github.com/angerman/encoins-relay/pkg/logger"
	"github.com/angerman/encoins-relay/web/api"
	"github.com/angerman/encoins-relay/web/handler"
)

func TestGetServers(t *testing.T) {
	t.Parallel()

	t.Run("it returns per-endpoint totals above the visibility threshold", func(t *testing.T) {
		t.Parallel()

		// Arrange
		cache := &fakeStateReader{snapshot: snapshotFixture(), stale: false}
		server := newTestServer(t, cache, 5, 100)
		defer server.Close()

		// Act
		resp := getServers(t, server.URL+"/delegs/servers")

		// Assert
		assert.Equal(t, map[string]int64{
			"relay1.example": 12,
			"relay2.example": 5,
		}, resp.Servers)
		assert.False(t, resp.Stale)
	})

	t.Run("it reports a stale snapshot", func(t *testing.T) {
		t.Parallel()

		cache := &fakeStateReader{snapshot: snapshotFixture(), stale: true}
		server := newTestServer(t, cache, 5, 100)
		defer server.Close()

		resp := getServers(t, server.URL+"/delegs/servers")

		assert.True(t, resp.Stale)
	})

	t.Run("it answers 503 before the first scan completes", func(t *testing.T) {
		t.Parallel()

		cache := &fakeStateReader{stale: true}
		server := newTestServer(t, cache, 5, 100)
		defer server.Close()

		resp := get(t, server.URL+"/delegs/servers")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, float64(http.StatusServiceUnavailable), body["code"])
		assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), body["message"])
	})

	t.Run("it reports when the registry was last updated", func(t *testing.T) {
		t.Parallel()

		cache := &fakeStateReader{snapshot: snapshotFixture(), stale: false}
		server := newTestServer(t, cache, 5, 100)
		defer server.Close()

		resp := getServers(t, server.URL+"/delegs/servers")

		assert.Equal(t, "2026-03-01T10:00:00Z", resp.UpdatedAt)
	})
}

func TestGetRewards(t *testing.T) {
	t.Parallel()

	t.Run("it applies the reward threshold instead of the visibility one", func(t *testing.T) {
		t.Parallel()

		cache := &fakeStateReader{snapshot: snapshotFixture(), stale: false}
		server := newTestServer(t, cache, 5, 10)
		defer server.Close()

		resp := getServers(t, server.URL+"/delegs/rewards")

		assert.Equal(t, map[string]int64{"relay1.example": 12}, resp.Servers)
	})
}

// fakeStateReader serves a fixed snapshot
type fakeStateReader struct {
	snapshot delegs.Snapshot
	stale    bool
}

func (r *fakeStateReader) Get() (delegs.Snapshot, bool) {
	return r.snapshot, r.stale
}

// snapshotFixture covers three endpoints: totals 12, 5 and 2
func snapshotFixture() delegs.Snapshot {
	return delegs.Snapshot{
		Registry: delegs.Registry{
			LastTxID: "tx9",
			Delegations: []delegs.Delegation{
				{SignerKey: "S1", Endpoint: "relay1.example", CreatedSlot: 10, TxOutRef: "tx1#0"},
				{SignerKey: "S2", Endpoint: "relay1.example", CreatedSlot: 11, TxOutRef: "tx2#0"},
				{SignerKey: "S3", Endpoint: "relay2.example", CreatedSlot: 12, TxOutRef: "tx3#0"},
				{SignerKey: "S4", Endpoint: "relay3.example", CreatedSlot: 13, TxOutRef: "tx4#0"},
			},
		},
		Balances: map[string]int64{
			"S1": 7,
			"S2": 5,
			"S3": 5,
			"S4": 2,
		},
		RegistryAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		BalancesAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, cache handler.StateReader, minTokenAmount, rewardThreshold int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	handler.NewDelegationState(cache, minTokenAmount, rewardThreshold).AddRoutes(mux)

	// Request logging like production; error responses flow through the
	// middleware's error extraction.
	log := logger.NewFromConfig(logger.Config{LogLevel: "debug"})
	return httptest.NewServer(logger.NewMiddleware(log)(mux))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getServers(t *testing.T, url string) api.ServersResponse {
	t.Helper()

	resp := get(t, url)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out api.ServersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
