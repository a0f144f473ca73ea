package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/angerman/encoins-relay/delegs"
	"github.com/angerman/encoins-relay/pkg/httpkit"
	"github.com/angerman/encoins-relay/web/api"
)

const (
	GetServersRoute = http.MethodGet + " " + "/delegs/servers"
	GetRewardsRoute = http.MethodGet + " " + "/delegs/rewards"
)

// ErrScanPending is returned while no scan cycle has published state yet
var ErrScanPending = errors.New("no completed scan to serve yet")

// StateReader reads the latest published scan snapshot
type StateReader interface {
	Get() (delegs.Snapshot, bool)
}

// DelegationState serves per-endpoint delegated totals straight from the
// state cache. Reads never block on a scan cycle.
type DelegationState struct {
	cache           StateReader
	minTokenAmount  int64
	rewardThreshold int64
}

func NewDelegationState(cache StateReader, minTokenAmount, rewardThreshold int64) *DelegationState {
	return &DelegationState{
		cache:           cache,
		minTokenAmount:  minTokenAmount,
		rewardThreshold: rewardThreshold,
	}
}

func (h *DelegationState) AddRoutes(m *http.ServeMux) {
	m.Handle(GetServersRoute, httpkit.HandlerFunc(h.GetServers))
	m.Handle(GetRewardsRoute, httpkit.HandlerFunc(h.GetRewards))
}

// GetServers returns endpoints whose delegated total meets the visibility
// threshold, plus the staleness indicator.
func (h *DelegationState) GetServers(_ http.ResponseWriter, _ *http.Request) http.HandlerFunc {
	return h.respond(h.minTokenAmount)
}

// GetRewards returns endpoints whose delegated total meets the reward
// threshold.
func (h *DelegationState) GetRewards(_ http.ResponseWriter, _ *http.Request) http.HandlerFunc {
	return h.respond(h.rewardThreshold)
}

func (h *DelegationState) respond(threshold int64) http.HandlerFunc {
	snapshot, stale := h.cache.Get()

	// A stale snapshot is still served with the indicator set; before the
	// first publish there is nothing to serve at all.
	if snapshot.RegistryAt.IsZero() {
		return httpkit.JsonError(api.ServiceUnavailable(ErrScanPending))
	}

	totals := delegs.Aggregate(snapshot.Registry.Delegations, snapshot.Balances)
	servers := make(map[string]int64, len(totals))
	for endpoint, total := range totals {
		if total >= threshold {
			servers[endpoint] = total
		}
	}

	return httpkit.JSON(api.ServersResponse{
		Servers:   servers,
		Stale:     stale,
		UpdatedAt: snapshot.RegistryAt.UTC().Format(time.RFC3339),
	})
}
