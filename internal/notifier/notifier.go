// Package notifier subscribes to the event bus on behalf of every active
// bot subscription and routes each trigger to the executor registered for
// that bot's type (spec.md §4.6). It owns no evaluation state: the
// evaluator decides what fired, the notifier decides who hears about it.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradeeon/condition-engine/internal/eventbus"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/internal/registry"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// BotStore is the read surface the notifier needs to decide whether a bot
// should receive a trigger. Implemented by internal/repository.BotRepository.
type BotStore interface {
	GetByID(botID int64) (*models.Bot, error)
}

// Executor receives a trigger for one bot. Implementations live alongside
// the bot type they drive, e.g. internal/dca.Executor for models.BotTypeDCA.
type Executor interface {
	Trigger(ctx context.Context, bot *models.Bot, sub *models.Subscription, ev eventbus.Event) error
}

// indexEntry tracks the live bus subscription backing one subscription row,
// so a later reconciliation pass can tell whether it's stale.
type indexEntry struct {
	generation  int64
	fingerprint string
	handle      eventbus.Handle
}

// Notifier keeps the event bus subscription set in sync with the active
// subscription rows and dispatches triggers to bot executors.
type Notifier struct {
	bus       *eventbus.Bus
	subs      registry.SubscriptionStore
	bots      BotStore
	log       *utils.Logger

	executorsMu sync.RWMutex
	executors   map[models.BotType]Executor

	// index is read far more often (every reconcile tick compares against
	// it) than written (only on subscription churn), the same read-heavy
	// access pattern the teacher indexes with sync.Map for lock-free reads.
	index sync.Map // subscription ID -> *indexEntry
}

// New constructs a Notifier with no executors registered. Call
// RegisterExecutor before Start for each bot type the deployment drives.
func New(bus *eventbus.Bus, subs registry.SubscriptionStore, bots BotStore) *Notifier {
	return &Notifier{
		bus:       bus,
		subs:      subs,
		bots:      bots,
		log:       utils.L().WithComponent("notifier"),
		executors: make(map[models.BotType]Executor),
	}
}

// RegisterExecutor binds botType's triggers to ex.
func (n *Notifier) RegisterExecutor(botType models.BotType, ex Executor) {
	n.executorsMu.Lock()
	defer n.executorsMu.Unlock()
	n.executors[botType] = ex
}

// Start runs an immediate reconciliation, then reconciles again every
// interval until ctx is cancelled. The first pass is synchronous so that
// a caller awaiting Start's return knows every already-active subscription
// is already wired before bot dispatch can be expected to work.
func (n *Notifier) Start(ctx context.Context, interval time.Duration) error {
	if err := n.reconcile(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := n.reconcile(); err != nil {
				n.log.Warn("subscription reconciliation failed", utils.Err(err))
			}
			reconcileDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// reconcile diffs the active subscription rows against the live bus
// subscriptions by (subscription ID, generation): new or changed rows are
// (re)subscribed, rows no longer active are unsubscribed. Grounded on the
// teacher's AddPair/RemovePair load-modify-CompareAndSwap idiom over
// pairsBySymbol, adapted from a per-symbol slice to a per-subscription
// entry since each subscription maps to exactly one bus handle.
func (n *Notifier) reconcile() error {
	active, err := n.subs.ActiveSubscriptions()
	if err != nil {
		return err
	}

	seen := make(map[int64]bool, len(active))
	for _, sub := range active {
		seen[sub.ID] = true

		if v, ok := n.index.Load(sub.ID); ok {
			entry := v.(*indexEntry)
			if entry.generation == sub.Generation && entry.fingerprint == sub.Fingerprint {
				continue // unchanged since the last reconciliation
			}
			n.bus.Unsubscribe(entry.handle)
		}

		bound := sub
		handle := n.bus.Subscribe(eventbus.Topic(bound.Fingerprint), fmt.Sprintf("bot-%d", bound.BotID), func(ev eventbus.Event) {
			n.dispatch(bound, ev)
		})
		n.index.Store(bound.ID, &indexEntry{
			generation:  bound.Generation,
			fingerprint: bound.Fingerprint,
			handle:      handle,
		})
	}

	var stale []int64
	n.index.Range(func(k, v interface{}) bool {
		id := k.(int64)
		if !seen[id] {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		if v, ok := n.index.LoadAndDelete(id); ok {
			n.bus.Unsubscribe(v.(*indexEntry).handle)
		}
	}

	activeSubscriptions.Set(float64(len(active)))
	return nil
}

// dispatch routes one delivered trigger to the subscribed bot's executor,
// skipping (with a DEBUG log, per spec.md §4.6) a bot that isn't running.
func (n *Notifier) dispatch(sub *models.Subscription, ev eventbus.Event) {
	bot, err := n.bots.GetByID(sub.BotID)
	if err != nil {
		skipped.WithLabelValues("bot_not_found").Inc()
		n.log.Warn("failed to load bot for trigger", utils.BotID(sub.BotID), utils.Fingerprint(ev.Fingerprint), utils.Err(err))
		return
	}
	if bot == nil {
		skipped.WithLabelValues("bot_not_found").Inc()
		n.log.Debug("trigger for unknown bot, dropping", utils.BotID(sub.BotID), utils.Fingerprint(ev.Fingerprint))
		return
	}
	if bot.Status != models.BotStatusRunning {
		skipped.WithLabelValues("bot_not_running").Inc()
		n.log.Debug("bot not running, dropping trigger", utils.BotID(bot.ID), utils.Fingerprint(ev.Fingerprint), utils.State(string(bot.Status)))
		return
	}

	n.executorsMu.RLock()
	ex, ok := n.executors[bot.Type]
	n.executorsMu.RUnlock()
	if !ok {
		skipped.WithLabelValues("no_executor").Inc()
		n.log.Warn("no executor registered for bot type", utils.BotID(bot.ID), utils.String("bot_type", string(bot.Type)))
		return
	}

	dispatched.WithLabelValues(string(bot.Type)).Inc()
	if err := ex.Trigger(context.Background(), bot, sub, ev); err != nil {
		n.log.Error("executor trigger failed", utils.BotID(bot.ID), utils.Fingerprint(ev.Fingerprint), utils.Err(err))
		return
	}
	if err := n.subs.SetLastTriggeredAt(sub.ID, ev.TriggeredAt); err != nil {
		n.log.Warn("failed to record subscription trigger time", utils.Int64("subscription_id", sub.ID), utils.Err(err))
	}
}
