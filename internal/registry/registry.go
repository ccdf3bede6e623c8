package registry

import (
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// Registry is the condition registry: it canonicalizes incoming conditions,
// deduplicates by fingerprint, and owns subscription lifecycle.
type Registry struct {
	conditions    ConditionStore
	subscriptions SubscriptionStore
	playbooks     PlaybookStore
	log           *utils.Logger
}

// New constructs a Registry backed by the given stores.
func New(conditions ConditionStore, subscriptions SubscriptionStore) *Registry {
	return &Registry{
		conditions:    conditions,
		subscriptions: subscriptions,
		log:           utils.L().WithComponent("registry"),
	}
}

// WithPlaybooks attaches a playbook store, enabling RegisterPlaybook and
// GetPlaybook. Optional: a Registry with no playbook store still serves
// atomic conditions normally.
func (r *Registry) WithPlaybooks(store PlaybookStore) *Registry {
	r.playbooks = store
	return r
}

// Register canonicalizes raw and inserts the condition_record if absent.
// Idempotent: registering the same semantic condition twice returns the
// same fingerprint without a second insert.
func (r *Registry) Register(raw RawCondition) (fingerprint string, err error) {
	_, fp, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}

	existing, err := r.conditions.GetByFingerprint(fp)
	if err != nil {
		return "", &TransientStoreError{Cause: err}
	}
	if existing != nil {
		return fp, nil
	}

	record := &models.ConditionRecord{
		Fingerprint: fp,
		Symbol:      raw.Symbol,
		Timeframe:   raw.Timeframe,
		Indicator:   raw.Indicator,
		Settings:    materializeSettings(raw.Indicator, raw.Settings),
		Operator:    operatorSynonyms[raw.Operator],
		Operand:     normalizeOperand(raw.Operand),
		Status:      models.ConditionStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := r.conditions.Create(record); err != nil {
		return "", &TransientStoreError{Cause: err}
	}
	return fp, nil
}

// Subscribe creates an active subscription binding bot_id to fingerprint.
func (r *Registry) Subscribe(botID int64, fingerprint string) (subscriptionID int64, err error) {
	sub := &models.Subscription{
		BotID:       botID,
		Fingerprint: fingerprint,
		Status:      models.ConditionStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	id, err := r.subscriptions.Create(sub)
	if err != nil {
		return 0, &TransientStoreError{Cause: err}
	}
	return id, nil
}

// Unsubscribe revokes subscriptionID.
func (r *Registry) Unsubscribe(subscriptionID int64) error {
	if err := r.subscriptions.SetStatus(subscriptionID, models.ConditionStatusRevoked); err != nil {
		return &TransientStoreError{Cause: err}
	}
	return nil
}

// SetStatus transitions subscriptionID to status.
func (r *Registry) SetStatus(subscriptionID int64, status models.ConditionStatus) error {
	if err := r.subscriptions.SetStatus(subscriptionID, status); err != nil {
		return &TransientStoreError{Cause: err}
	}
	return nil
}

// ActiveFingerprints returns the set of fingerprints with at least one
// active subscription. The evaluator snapshots this once per cycle.
func (r *Registry) ActiveFingerprints() ([]string, error) {
	fps, err := r.conditions.ActiveFingerprints()
	if err != nil {
		return nil, &TransientStoreError{Cause: err}
	}
	return fps, nil
}

// GetCondition returns the canonicalized condition record for fingerprint,
// or nil if it isn't registered. The evaluator calls this once per active
// fingerprint at the start of each cycle.
func (r *Registry) GetCondition(fingerprint string) (*models.ConditionRecord, error) {
	rec, err := r.conditions.GetByFingerprint(fingerprint)
	if err != nil {
		return nil, &TransientStoreError{Cause: err}
	}
	return rec, nil
}

// RecordEvaluation advances fingerprint's evaluation bookkeeping after one
// cycle's tail evaluation. triggeredBarClose is the zero time when the
// condition did not trigger this cycle.
func (r *Registry) RecordEvaluation(fingerprint string, evaluatedAt, triggeredBarClose time.Time) error {
	if err := r.conditions.RecordEvaluation(fingerprint, evaluatedAt, triggeredBarClose); err != nil {
		return &TransientStoreError{Cause: err}
	}
	return nil
}

// Subscribers returns the active subscriptions bound to fingerprint.
func (r *Registry) Subscribers(fingerprint string) ([]*models.Subscription, error) {
	subs, err := r.subscriptions.ByFingerprint(fingerprint)
	if err != nil {
		return nil, &TransientStoreError{Cause: err}
	}
	active := make([]*models.Subscription, 0, len(subs))
	for _, s := range subs {
		if s.Status == models.ConditionStatusActive {
			active = append(active, s)
		}
	}
	return active, nil
}

// TransientStoreError wraps a datastore failure the caller may retry with
// identical input.
type TransientStoreError struct {
	Cause error
}

func (e *TransientStoreError) Error() string {
	return "transient store error: " + e.Cause.Error()
}

func (e *TransientStoreError) Unwrap() error {
	return e.Cause
}
