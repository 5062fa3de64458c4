package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// maxConcurrentFetches bounds the refresh fan-out so a long provider list
// cannot open an unbounded number of sockets or log-mining passes at once.
const maxConcurrentFetches = 4

// Notifier receives limit-crossing events. notify.Sinks satisfies this.
type Notifier interface {
	WarningCrossed(total, limit float64, currencyCode string)
	UpperCrossed(total, limit float64, currencyCode string)
}

// Engine owns the aggregate snapshot and the refresh lifecycle. Refresh
// cycles may overlap (a slow remote fetch can outlive the next timer tick);
// a monotonic cycle id keeps a stale cycle from clobbering newer data, per
// provider slot and for the published aggregate alike.
type Engine struct {
	mu        sync.RWMutex
	providers map[string]SpendingProvider // keyed by provider type
	configs   []ProviderConfig
	snapshot  AggregateSnapshot
	slotCycle map[string]uint64 // provider config ID → cycle that last wrote it
	policy    ThresholdPolicy
	notifier  Notifier
	interval  time.Duration
	timeout   time.Duration

	cycle atomic.Uint64
	kick  chan string
	now   func() time.Time

	configSource func() []ProviderConfig
	onUpdate     func(AggregateSnapshot)
}

func NewEngine(interval time.Duration) *Engine {
	return &Engine{
		providers: make(map[string]SpendingProvider),
		snapshot:  AggregateSnapshot{Providers: make(map[string]ProviderSnapshot)},
		slotCycle: make(map[string]uint64),
		interval:  interval,
		timeout:   2 * time.Minute,
		kick:      make(chan string, 1),
		now:       time.Now,
	}
}

func (e *Engine) RegisterProvider(p SpendingProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[p.ID()] = p
}

// SetConfigs installs the enabled provider set. New entries start in
// NotConnected; entries that disappeared are dropped from the aggregate.
func (e *Engine) SetConfigs(configs []ProviderConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.configs = configs

	keep := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		keep[cfg.ID] = true
		if _, ok := e.snapshot.Providers[cfg.ID]; !ok {
			e.snapshot.Providers[cfg.ID] = ProviderSnapshot{
				ProviderID: cfg.ID,
				Status:     StatusNotConnected,
			}
		}
	}
	for id := range e.snapshot.Providers {
		if !keep[id] {
			delete(e.snapshot.Providers, id)
			delete(e.slotCycle, id)
		}
	}
}

// SetConfigSource installs a callback re-evaluated at the start of every
// refresh cycle, so edits to the provider set or stored credentials take
// effect without restarting the engine. The callback runs without the
// engine lock held and may call the other setters.
func (e *Engine) SetConfigSource(fn func() []ProviderConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configSource = fn
}

func (e *Engine) SetPolicy(p ThresholdPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Engine) OnUpdate(fn func(AggregateSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// Snapshot returns a copy of the current aggregate.
func (e *Engine) Snapshot() AggregateSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.Clone()
}

// RefreshNow requests an out-of-band refresh from the Run loop. Callers
// include the daemon API (manual refresh) and the log watcher; a network
// monitor reporting reconnect uses the same path. The request is dropped
// when one is already queued.
func (e *Engine) RefreshNow(reason string) {
	select {
	case e.kick <- reason:
	default:
	}
}

// RefreshAll runs one refresh cycle: fan out to every configured provider,
// merge results into the aggregate, evaluate limits, publish.
func (e *Engine) RefreshAll(ctx context.Context) {
	e.mu.RLock()
	source := e.configSource
	e.mu.RUnlock()
	if source != nil {
		e.SetConfigs(source())
	}

	cycleID := e.cycle.Add(1)

	e.mu.Lock()
	configs := make([]ProviderConfig, len(e.configs))
	copy(configs, e.configs)
	for _, cfg := range configs {
		snap := e.snapshot.Providers[cfg.ID]
		if snap.Status == StatusNotConnected || snap.Status == "" {
			snap.ProviderID = cfg.ID
			snap.Status = StatusConnecting
			e.snapshot.Providers[cfg.ID] = snap
		}
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentFetches)
	results := make(chan struct {
		id       string
		snapshot ProviderSnapshot
	}, len(configs))

	for _, cfg := range configs {
		wg.Add(1)
		go func(cfg ProviderConfig) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			e.mu.RLock()
			provider, ok := e.providers[cfg.Provider]
			e.mu.RUnlock()

			var snap ProviderSnapshot
			if !ok {
				snap = ProviderSnapshot{
					ProviderID: cfg.ID,
					Status:     StatusError,
					Message:    fmt.Sprintf("no provider adapter registered for %q", cfg.Provider),
				}
			} else {
				fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
				defer cancel()

				var err error
				snap, err = provider.Fetch(fetchCtx, cfg)
				if err != nil {
					snap = ProviderSnapshot{
						ProviderID: cfg.ID,
						Status:     StatusError,
						Message:    err.Error(),
					}
				}
				if snap.Status == "" {
					snap.Status = StatusConnected
				}
			}

			results <- struct {
				id       string
				snapshot ProviderSnapshot
			}{cfg.ID, snap}
		}(cfg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		e.mu.Lock()
		if e.slotCycle[r.id] > cycleID {
			e.mu.Unlock()
			continue
		}
		e.slotCycle[r.id] = cycleID
		e.snapshot.Providers[r.id] = e.mergeProviderLocked(r.id, r.snapshot)
		e.mu.Unlock()
	}

	e.publish(cycleID)
}

// mergeProviderLocked folds a fetch result into the existing slot. On a
// failed fetch the previous good data is carried forward so the aggregate
// never regresses to "no data" over a transient error. Caller holds e.mu.
func (e *Engine) mergeProviderLocked(id string, snap ProviderSnapshot) ProviderSnapshot {
	prev, ok := e.snapshot.Providers[id]

	if snap.Status == StatusConnected {
		if snap.UpdatedAt.IsZero() {
			snap.UpdatedAt = e.now()
		}
		return snap
	}

	if ok && snap.Status == StatusError {
		if snap.SpendingUSD == nil {
			snap.SpendingUSD = prev.SpendingUSD
		}
		if snap.Usage == nil {
			snap.Usage = prev.Usage
		}
		// UpdatedAt keeps pointing at the last successful fetch.
		snap.UpdatedAt = prev.UpdatedAt
	}
	return snap
}

// publish recomputes the aggregate for a completed cycle and hands a copy
// to the update callback. Threshold events fire outside the lock.
func (e *Engine) publish(cycleID uint64) {
	e.mu.Lock()
	if cycleID < e.snapshot.Cycle {
		e.mu.Unlock()
		return
	}

	totalUSD := e.snapshot.ConnectedTotal()
	res := e.policy.Evaluate(totalUSD, e.snapshot.NotifiedWarning, e.snapshot.NotifiedUpper)

	e.snapshot.TotalSpendingUSD = totalUSD
	e.snapshot.NotifiedWarning = res.NotifiedWarning
	e.snapshot.NotifiedUpper = res.NotifiedUpper
	e.snapshot.Cycle = cycleID
	e.snapshot.UpdatedAt = e.now()

	out := e.snapshot.Clone()
	fn := e.onUpdate
	notifier := e.notifier
	policy := e.policy
	e.mu.Unlock()

	code := policy.CurrencyCode
	if code == "" {
		code = "USD"
	}
	if notifier != nil {
		if res.FireWarning {
			notifier.WarningCrossed(res.DisplayTotal, policy.WarningLimit, code)
		}
		if res.FireUpper {
			notifier.UpperCrossed(res.DisplayTotal, policy.UpperLimit, code)
		}
	}

	if fn != nil {
		fn(out)
	}
}

// Run refreshes once immediately, then on every interval tick or RefreshNow
// request until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.RefreshAll(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[engine] context cancelled, stopping refresh loop")
			return
		case <-ticker.C:
			e.RefreshAll(ctx)
		case reason := <-e.kick:
			log.Printf("[engine] refresh requested: %s", reason)
			e.RefreshAll(ctx)
		}
	}
}
