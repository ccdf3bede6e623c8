package registry

import (
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ConditionStore is the persistence surface the registry needs for
// condition_records. Implemented by internal/repository.ConditionRepository.
type ConditionStore interface {
	GetByFingerprint(fingerprint string) (*models.ConditionRecord, error)
	Create(record *models.ConditionRecord) error
	SetStatus(fingerprint string, status models.ConditionStatus) error
	ActiveFingerprints() ([]string, error)

	// RecordEvaluation advances a fingerprint's evaluation bookkeeping:
	// last_evaluated_at always moves forward to evaluatedAt (the wall-clock
	// time the cycle ran), evaluation_count increments by one, and
	// last_triggered_at is stamped to triggeredBarClose when it is
	// non-zero. last_triggered_at deliberately stores a bar_close_time, not
	// a wall-clock time: debounce compares it against the bar_close_time of
	// later cycles, and the two clocks must not be mixed.
	RecordEvaluation(fingerprint string, evaluatedAt, triggeredBarClose time.Time) error
}

// SubscriptionStore is the persistence surface for subscription rows.
// Implemented by internal/repository.SubscriptionRepository.
type SubscriptionStore interface {
	Create(sub *models.Subscription) (int64, error)
	GetByID(id int64) (*models.Subscription, error)
	SetStatus(id int64, status models.ConditionStatus) error
	SetLastTriggeredAt(id int64, at time.Time) error
	ByFingerprint(fingerprint string) ([]*models.Subscription, error)
	ByBotID(botID int64) ([]*models.Subscription, error)
	ActiveSubscriptions() ([]*models.Subscription, error)
	Delete(id int64) error
}
