package evaluator

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/tradeeon/condition-engine/internal/eventbus"
	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/indicator"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/internal/registry"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// Config tunes the evaluator's cycle pacing and resource fan-out.
type Config struct {
	CyclePeriod       time.Duration
	BarLimit          int
	MarketDataTimeout time.Duration
	WorkerPoolSize    int
}

// DefaultConfig matches spec.md §4.3's stated defaults: a 60 s cycle and a
// 200-bar kernel minimum.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 16 {
		workers = 16
	}
	return Config{
		CyclePeriod:       60 * time.Second,
		BarLimit:          200,
		MarketDataTimeout: 10 * time.Second,
		WorkerPoolSize:    workers,
	}
}

type groupKey struct {
	Symbol    string
	Timeframe string
}

// Evaluator is the explicit engine value that owns the per-cycle snapshot
// cache and drives the shared evaluation loop (spec.md §9's "re-express as
// an explicit engine value" design note). It holds no bot-specific state:
// dispatch to bots happens downstream, in the notifier, via the events it
// publishes.
type Evaluator struct {
	cfg  Config
	reg  *registry.Registry
	bus  *eventbus.Bus
	exch exchange.Exchange
	log  *utils.Logger

	// cycleRunning guards against cycle overlap, the same atomic-flag idiom
	// the teacher uses for a position's isReady flag, expressed with the
	// stdlib atomic.Bool type.
	cycleRunning atomic.Bool
	cycleCount   atomic.Int64

	// playbookMu guards in-memory playbook bookkeeping: validity-window
	// item state and debounce timestamps. Playbook wrapper fingerprints
	// have no ConditionRecord row of their own, so this state does not
	// currently survive a process restart (see DESIGN.md).
	playbookMu         sync.Mutex
	playbookItemStates map[string]map[string]*registry.ItemState
	playbookLastHolds  map[string]bool
}

// New constructs an Evaluator. reg must have been built with
// registry.New; playbooks are optional (reg.WithPlaybooks).
func New(cfg Config, reg *registry.Registry, bus *eventbus.Bus, exch exchange.Exchange) *Evaluator {
	return &Evaluator{
		cfg:                cfg,
		reg:                reg,
		bus:                bus,
		exch:               exch,
		log:                utils.L().WithComponent("evaluator"),
		playbookItemStates: make(map[string]map[string]*registry.ItemState),
		playbookLastHolds:  make(map[string]bool),
	}
}

// Run drives the cycle loop on a ticker until ctx is cancelled. Cycles
// never overlap: a tick that lands while a cycle is still running is
// dropped with a warning rather than queued.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !e.cycleRunning.CompareAndSwap(false, true) {
				e.log.Warn("evaluator cycle overlap, dropping tick")
				continue
			}
			go func() {
				defer e.cycleRunning.Store(false)
				e.RunOnce(ctx)
			}()
		}
	}
}

// RunOnce implements spec.md §4.3's five-step algorithm for a single cycle.
// Exported so callers (and tests) can drive a cycle without waiting on the
// ticker.
func (e *Evaluator) RunOnce(ctx context.Context) {
	start := time.Now()
	cycle := e.cycleCount.Add(1)
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	// Step 1: snapshot active fingerprints (atomic conditions and, if
	// configured, playbook wrappers).
	atomicFPs, err := e.reg.ActiveFingerprints()
	if err != nil {
		e.log.Error("failed to snapshot active fingerprints", utils.Err(err), utils.Cycle(cycle))
		return
	}
	playbookFPs, err := e.reg.ActivePlaybookFingerprints()
	if err != nil {
		e.log.Warn("failed to snapshot active playbooks, continuing with atomic conditions only", utils.Err(err), utils.Cycle(cycle))
		playbookFPs = nil
	}

	records := make(map[string]*models.ConditionRecord, len(atomicFPs))
	isTopLevel := make(map[string]bool, len(atomicFPs))
	for _, fp := range atomicFPs {
		rec, err := e.reg.GetCondition(fp)
		if err != nil || rec == nil {
			continue
		}
		records[fp] = rec
		isTopLevel[fp] = true
	}

	playbooks := make(map[string]*registry.Playbook, len(playbookFPs))
	for _, fp := range playbookFPs {
		pb, err := e.reg.GetPlaybook(fp)
		if err != nil || pb == nil {
			continue
		}
		playbooks[fp] = pb
		for _, item := range pb.Items {
			if _, ok := records[item.Fingerprint]; ok {
				continue
			}
			rec, err := e.reg.GetCondition(item.Fingerprint)
			if err == nil && rec != nil {
				records[item.Fingerprint] = rec
			}
		}
	}

	// Step 2: group by (symbol, timeframe) and fetch bars once per group.
	groups := make(map[groupKey][]string)
	for fp, rec := range records {
		k := groupKey{Symbol: rec.Symbol, Timeframe: rec.Timeframe}
		groups[k] = append(groups[k], fp)
	}

	barsByGroup, skipped, fetchErr := e.fetchGroups(ctx, groups)
	if fetchErr != nil {
		e.log.Warn("one or more market-data groups failed this cycle", utils.Cycle(cycle), utils.Err(fetchErr))
	}

	// Step 3: the indicator union per group is computed lazily and cached
	// as conditions are evaluated (snapshotCache.resolve), which satisfies
	// "compute each once" without a separate pre-pass: every (symbol,
	// timeframe, indicator, settings) combination is requested at most
	// once per cycle regardless of how many fingerprints need it.
	cache := newSnapshotCache()

	// Step 4 & 5: evaluate each atomic fingerprint's tail, debounce, and
	// publish; update evaluation bookkeeping even on non-trigger.
	evaluatedAt := time.Now()
	atomicHolds := make(map[string]bool, len(records))

	for key, fps := range groups {
		if skipped[key] {
			continue
		}
		bars := barsByGroup[key]
		sort.Strings(fps)
		for _, fp := range fps {
			rec := records[fp]
			cmp, vals := evaluateCondition(rec, bars, cache)
			atomicHolds[fp] = cmp.Holds()

			if !isTopLevel[fp] {
				continue
			}
			// Indeterminate (insufficient warm-up history) doesn't count as
			// evaluated: spec.md §4.2 treats it as "not triggered" for
			// dispatch but exempts it from evaluation_count/last_evaluated_at.
			if cmp == indicator.ComparisonIndeterminate {
				continue
			}
			fingerprintsEvaluated.Inc()

			var barCloseTime time.Time
			if n := len(bars); n > 0 {
				barCloseTime = bars[n-1].CloseTime
			}
			triggered := cmp.Holds() && (rec.LastTriggeredAt.IsZero() || rec.LastTriggeredAt.Before(barCloseTime))
			var triggeredBarClose time.Time
			if triggered {
				triggeredBarClose = barCloseTime
				fingerprintsTriggered.Inc()
				e.bus.Publish(eventbus.Topic(fp), eventbus.Event{
					Fingerprint:  fp,
					Symbol:       rec.Symbol,
					Timeframe:    rec.Timeframe,
					TriggeredAt:  evaluatedAt,
					BarCloseTime: barCloseTime,
					Values:       vals,
				})
			}
			if err := e.reg.RecordEvaluation(fp, evaluatedAt, triggeredBarClose); err != nil {
				e.log.Warn("failed to record evaluation state", utils.Fingerprint(fp), utils.Err(err))
			}
		}
	}

	e.evaluatePlaybooks(playbooks, atomicHolds, groups, cycle, evaluatedAt)
}

// fetchGroups fans bar fetches out across a bounded worker pool, grounded
// on the teacher's shard-worker fan-out in engine.go's priceEventWorker:
// a fixed pool of goroutines drains a shared job channel instead of one
// goroutine per group. Per-group fetch errors are aggregated with
// multierr rather than only logged inline, so RunOnce can report a single
// combined cause for a cycle that skipped multiple groups.
func (e *Evaluator) fetchGroups(ctx context.Context, groups map[groupKey][]string) (map[groupKey][]models.Bar, map[groupKey]bool, error) {
	bars := make(map[groupKey][]models.Bar, len(groups))
	skipped := make(map[groupKey]bool)
	var fetchErr error
	var mu sync.Mutex

	jobs := make(chan groupKey)
	var wg sync.WaitGroup
	workers := e.cfg.WorkerPoolSize
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.MarketDataTimeout)
				got, err := e.exch.GetKlines(fetchCtx, key.Symbol, key.Timeframe, e.cfg.BarLimit)
				cancel()
				mu.Lock()
				if err != nil {
					e.log.Warn("market data fetch failed, skipping group",
						utils.Symbol(key.Symbol), utils.Timeframe(key.Timeframe), utils.Err(err))
					groupsSkipped.WithLabelValues(key.Symbol, key.Timeframe).Inc()
					skipped[key] = true
					fetchErr = multierr.Append(fetchErr, fmt.Errorf("%s/%s: %w", key.Symbol, key.Timeframe, err))
				} else {
					bars[key] = got
				}
				mu.Unlock()
			}
		}()
	}
	for key := range groups {
		jobs <- key
	}
	close(jobs)
	wg.Wait()
	return bars, skipped, fetchErr
}

// evaluatePlaybooks composes atomic results into each playbook's gated
// boolean via registry.Evaluate, carrying validity-window state across
// cycles. currentBar is the evaluator's cycle counter rather than a raw
// market bar index, since a playbook's items may span different
// timeframes and therefore have no single shared bar cadence.
func (e *Evaluator) evaluatePlaybooks(playbooks map[string]*registry.Playbook, atomicHolds map[string]bool, groups map[groupKey][]string, cycle int64, evaluatedAt time.Time) {
	if len(playbooks) == 0 {
		return
	}

	fps := make([]string, 0, len(playbooks))
	for fp := range playbooks {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	for _, fp := range fps {
		pb := playbooks[fp]
		inputs := make([]registry.ItemInput, len(pb.Items))
		for i, item := range pb.Items {
			inputs[i] = registry.ItemInput{Item: item, AtomicTrue: atomicHolds[item.Fingerprint]}
		}

		e.playbookMu.Lock()
		states, ok := e.playbookItemStates[fp]
		if !ok {
			states = make(map[string]*registry.ItemState)
			e.playbookItemStates[fp] = states
		}
		wasHolding := e.playbookLastHolds[fp]
		e.playbookMu.Unlock()

		holds := registry.Evaluate(*pb, inputs, states, cycle, evaluatedAt)
		fingerprintsEvaluated.Inc()

		// Edge-triggered: fire once when the gate transitions false -> true,
		// not on every cycle it continues to hold. Each item's own atomic
		// debounce (bar_close_time) already guards re-firing at that layer.
		triggered := holds && !wasHolding
		if triggered {
			fingerprintsTriggered.Inc()
			symbol, timeframe := playbookDisplayGroup(pb, groups)
			e.bus.Publish(eventbus.Topic(fp), eventbus.Event{
				Fingerprint:  fp,
				Symbol:       symbol,
				Timeframe:    timeframe,
				TriggeredAt:  evaluatedAt,
				BarCloseTime: evaluatedAt,
				Values:       map[string]float64{},
			})
		}
		e.playbookMu.Lock()
		e.playbookLastHolds[fp] = holds
		e.playbookMu.Unlock()
	}
}

// playbookDisplayGroup picks a representative (symbol, timeframe) for a
// playbook's trigger event, using its first item's group. Playbooks are
// expected in practice to combine items on the same symbol.
func playbookDisplayGroup(pb *registry.Playbook, groups map[groupKey][]string) (string, string) {
	if len(pb.Items) == 0 {
		return "", ""
	}
	for key, fps := range groups {
		for _, fp := range fps {
			if fp == pb.Items[0].Fingerprint {
				return key.Symbol, key.Timeframe
			}
		}
	}
	return "", ""
}
