package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrSubscriptionNotFound is returned when no row matches the requested id.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository persists subscription rows binding a bot to a
// condition (or playbook) fingerprint.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository constructs a SubscriptionRepository over db.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scannable) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var lastTriggeredAt sql.NullTime
	err := row.Scan(
		&sub.ID,
		&sub.BotID,
		&sub.Fingerprint,
		&sub.Status,
		&lastTriggeredAt,
		&sub.Generation,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastTriggeredAt.Valid {
		sub.LastTriggeredAt = lastTriggeredAt.Time
	}
	return sub, nil
}

const subscriptionColumns = `id, bot_id, fingerprint, status, last_triggered_at, generation, created_at, updated_at`

// Create inserts a new active subscription and returns its generated ID.
func (r *SubscriptionRepository) Create(sub *models.Subscription) (int64, error) {
	query := `
		INSERT INTO subscriptions (bot_id, fingerprint, status, generation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(query, sub.BotID, sub.Fingerprint, sub.Status, sub.Generation, sub.CreatedAt, sub.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByID returns the subscription row for id.
func (r *SubscriptionRepository) GetByID(id int64) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// SetStatus transitions id's status and bumps generation so the notifier's
// reconcile loop knows to resubscribe it on the bus.
func (r *SubscriptionRepository) SetStatus(id int64, status models.ConditionStatus) error {
	query := `UPDATE subscriptions SET status = $1, generation = generation + 1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// SetLastTriggeredAt stamps id's last_triggered_at after a successful
// dispatch to the bot's executor.
func (r *SubscriptionRepository) SetLastTriggeredAt(id int64, at time.Time) error {
	query := `UPDATE subscriptions SET last_triggered_at = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(query, at, time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ByFingerprint returns every subscription bound to fingerprint.
func (r *SubscriptionRepository) ByFingerprint(fingerprint string) ([]*models.Subscription, error) {
	return r.query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE fingerprint = $1`, fingerprint)
}

// ByBotID returns every subscription owned by botID, across all statuses.
func (r *SubscriptionRepository) ByBotID(botID int64) ([]*models.Subscription, error) {
	return r.query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE bot_id = $1`, botID)
}

// ActiveSubscriptions returns every subscription with status = active, the
// set the notifier reconciles against the live event bus each tick.
func (r *SubscriptionRepository) ActiveSubscriptions() ([]*models.Subscription, error) {
	return r.query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = $1`, models.ConditionStatusActive)
}

// Delete removes a subscription row outright, used when a bot is deleted
// (spec.md §3: "Any -> deletion cascades to subscriptions").
func (r *SubscriptionRepository) Delete(id int64) error {
	query := `DELETE FROM subscriptions WHERE id = $1`
	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubscriptionRepository) query(query string, args ...interface{}) ([]*models.Subscription, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
