// Package delegs tracks delegation declarations for the relay's governing
// token. It incrementally scans the ledger for declaration transactions,
// maintains a deduplicated registry of effective delegations, joins the
// registry against current token-holder balances and publishes the
// per-endpoint totals used to gate routing and compute rewards.
package delegs

import (
	"context"
	"errors"
	"time"

	"github.com/angerman/encoins-relay/pkg/cardano"
)

// Sentinel errors for failure cases
var (
	ErrCheckpointRecovery = errors.New("checkpoint recovery failed")
	ErrSnapshotCorrupt    = errors.New("snapshot record corrupt")
	ErrAPIRequestFailed   = errors.New("indexer request failed")
	ErrPersistFailed      = errors.New("snapshot persistence failed")
)

// Snapshot filename prefixes. Each cycle writes one record per prefix; the
// checkpoint anchors incremental resumption, the result is an audit artifact.
const (
	CheckpointPrefix = "delegations"
	ResultPrefix     = "aggregated"
)

// Default configuration values
const (
	DefaultScanInterval     = 2 * time.Minute
	DefaultMaxStaleness     = 5 * time.Minute
	DefaultFetchConcurrency = 4
)

// Ledger fetches delegation-relevant data from the ledger indexer
// ---------------------------------------------------------------
type Ledger interface {
	// NewTransactions returns hashes of transactions affecting the asset,
	// newest first, stopping before the transaction identified by after.
	NewTransactions(ctx context.Context, asset, after string) ([]string, error)
	// TransactionByHash returns transaction details, or (nil, nil) when the
	// transaction is unknown to the indexer.
	TransactionByHash(ctx context.Context, hash string) (*cardano.Transaction, error)
	// DatumByHash resolves a hash-referenced datum to raw CBOR bytes, or
	// (nil, nil) when the datum is unknown.
	DatumByHash(ctx context.Context, hash string) ([]byte, error)
	// HolderBalances returns the current asset balance per holder key.
	HolderBalances(ctx context.Context, asset string) (map[string]int64, error)
}

// ProgressStore provides durable, append-only snapshot persistence
type ProgressStore interface {
	// Save persists record under the prefix with a sortable timestamp.
	// Existing records are never overwritten.
	Save(ctx context.Context, prefix string, at time.Time, record any) error
	// LoadMostRecent parses the newest record under the prefix into out.
	// No prior record is reported as found == false, not an error. A parse
	// failure on the newest record is an ErrSnapshotCorrupt error: falling
	// back to an older record could mask data corruption.
	LoadMostRecent(ctx context.Context, prefix string, out any) (at time.Time, found bool, err error)
}

// Clock abstracts time for production and testing
// ------------------------------------------------
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Event represents a service lifecycle event
// ------------------------------------------
type Event any

// Recovered is emitted when a prior checkpoint was found at startup
type Recovered struct {
	At          time.Time
	Delegations int
	LastTxID    string
}

// StartupFailed is emitted when the service cannot start; the most recent
// checkpoint record being unparsable requires operator intervention.
type StartupFailed struct {
	Err error
}

type ScanStarted struct {
	Interval time.Duration
}

type CycleCompleted struct {
	Fetched     int // transactions fetched this cycle
	Discovered  int // delegations decoded this cycle
	Skipped     int // datum-carrying outputs skipped this cycle
	Delegations int // registry size after merge
	Endpoints   int // distinct endpoints in the aggregate
	LastTxID    string
	Duration    time.Duration
}

type CycleError struct {
	Err error
}

type Shutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}
