package delegs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angerman/encoins-relay/pkg/clock"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithScanInterval sets the minimum delay between scan cycles
func WithScanInterval(d time.Duration) Option {
	return func(s *Service) { s.scanInterval = d }
}

// WithFetchConcurrency caps concurrent transaction-detail fetches
func WithFetchConcurrency(n int) Option {
	return func(s *Service) { s.fetchConcurrency = n }
}

// Service drives the scan loop: fetch, decode, merge, aggregate, persist,
// publish. Cycles run strictly sequentially and single-flight; a new cycle
// never starts while one is in flight, an overrunning cycle simply delays
// the next trigger and eventually surfaces as staleness to readers.
// -----------------------------------------------------------------------
type Service struct {
	ledger           Ledger
	store            ProgressStore
	cache            *StateCache
	decoder          *Decoder
	asset            string
	clock            Clock
	scanInterval     time.Duration
	fetchConcurrency int
	events           chan Event
}

// NewService constructs a Service with required dependencies and options.
// By default, it uses a real clock, a 2m scan interval and 4 concurrent
// detail fetches.
func NewService(ledger Ledger, store ProgressStore, cache *StateCache, decoder *Decoder, asset string, opts ...Option) *Service {
	s := &Service{
		ledger:           ledger,
		store:            store,
		cache:            cache,
		decoder:          decoder,
		asset:            asset,
		clock:            clock.SystemClock{},
		scanInterval:     DefaultScanInterval,
		fetchConcurrency: DefaultFetchConcurrency,
		events:           make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scan loop and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Service stops producing events and closes events channel
//  3. Wait for complete shutdown: <-done
//
// The context signals when to stop, the done channel confirms when stopped.
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

// run recovers the checkpointed registry and then cycles until cancelled
// -----------------------------------------------------------------------
func (s *Service) run(ctx context.Context) {
	registry, recoveredAt, found, err := s.recover(ctx)
	if err != nil {
		// A corrupt newest checkpoint requires operator intervention;
		// falling back to an older record could mask data corruption.
		s.events <- StartupFailed{Err: err}
		return
	}
	if found {
		s.events <- Recovered{
			At:          recoveredAt,
			Delegations: len(registry.Delegations),
			LastTxID:    registry.LastTxID,
		}
	}

	s.events <- ScanStarted{Interval: s.scanInterval}
	for {
		next, err := s.cycle(ctx, registry)
		if err != nil {
			// The failed cycle left published state untouched; the next
			// cycle retries from the last checkpointed registry.
			s.events <- CycleError{Err: err}
		} else {
			registry = next
		}

		select {
		case <-ctx.Done():
			s.events <- Shutdown{Reason: ctx.Err()}
			return
		case <-s.clock.After(s.scanInterval):
		}
	}
}

// recover loads the most recent checkpointed registry, if any
func (s *Service) recover(ctx context.Context) (Registry, time.Time, bool, error) {
	var registry Registry
	at, found, err := s.store.LoadMostRecent(ctx, CheckpointPrefix, &registry)
	if err != nil {
		return Registry{}, time.Time{}, false, fmt.Errorf("%w: %w", ErrCheckpointRecovery, err)
	}
	return registry, at, found, nil
}

// cycle executes one scan cycle end-to-end and returns the new registry.
// On error nothing has been published and the passed registry stays current.
func (s *Service) cycle(ctx context.Context, registry Registry) (Registry, error) {
	start := s.clock.Now()

	hashes, err := s.ledger.NewTransactions(ctx, s.asset, registry.LastTxID)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: %w", ErrAPIRequestFailed, err)
	}

	discovered, skipped, err := s.decodeAll(ctx, hashes)
	if err != nil {
		return Registry{}, err
	}

	merged := Merge(registry.Delegations, discovered)

	// Hashes arrive newest first; no new transactions leaves the anchor as is.
	lastTxID := registry.LastTxID
	if len(hashes) > 0 {
		lastTxID = hashes[0]
	}

	balances, err := s.ledger.HolderBalances(ctx, s.asset)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: %w", ErrAPIRequestFailed, err)
	}

	result := Aggregate(merged, balances)

	now := s.clock.Now()
	next := Registry{LastTxID: lastTxID, Delegations: merged}
	if err := s.store.Save(ctx, CheckpointPrefix, now, next); err != nil {
		return Registry{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if err := s.store.Save(ctx, ResultPrefix, now, result); err != nil {
		return Registry{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.cache.Publish(Snapshot{
		Registry:   next,
		Balances:   balances,
		RegistryAt: now,
		BalancesAt: now,
	})

	s.events <- CycleCompleted{
		Fetched:     len(hashes),
		Discovered:  len(discovered),
		Skipped:     int(skipped),
		Delegations: len(merged),
		Endpoints:   len(result),
		LastTxID:    lastTxID,
		Duration:    s.clock.Now().Sub(start),
	}
	return next, nil
}

// decodeAll fetches details for every transaction with bounded concurrency
// and decodes all outputs. Collection order is irrelevant because Merge is
// commutative over the discovered set. A failed detail fetch aborts the
// cycle; decode-level skips never do.
func (s *Service) decodeAll(ctx context.Context, hashes []string) ([]Delegation, int64, error) {
	perTx := make([][]Delegation, len(hashes))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, hash := range hashes {
		g.Go(func() error {
			tx, err := s.ledger.TransactionByHash(gctx, hash)
			if err != nil {
				return err
			}
			if tx == nil {
				// Unknown to the indexer; nothing to fold in.
				return nil
			}

			var found []Delegation
			for _, out := range tx.Outputs {
				d, err := s.decoder.Decode(gctx, tx, out)
				if err != nil {
					// Outputs without credential or datum are ordinary
					// payments, not declarations gone wrong.
					if !errors.Is(err, ErrNoStakeCredential) && !errors.Is(err, ErrNoDatum) {
						skipped.Add(1)
					}
					continue
				}
				found = append(found, d)
			}
			perTx[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAPIRequestFailed, err)
	}

	var discovered []Delegation
	for _, ds := range perTx {
		discovered = append(discovered, ds...)
	}
	return discovered, skipped.Load(), nil
}
