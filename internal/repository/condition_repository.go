// Package repository is the database/sql persistence layer: one type per
// table, each satisfying the store interface its consuming package
// declares (registry.ConditionStore, registry.SubscriptionStore,
// registry.PlaybookStore, notifier.BotStore), grounded on the teacher's
// internal/repository/order_repository.go query style.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrConditionNotFound is returned by ConditionRepository when no row
// matches the requested fingerprint.
var ErrConditionNotFound = errors.New("condition not found")

// ConditionRepository persists condition_records.
type ConditionRepository struct {
	db *sql.DB
}

// NewConditionRepository constructs a ConditionRepository over db.
func NewConditionRepository(db *sql.DB) *ConditionRepository {
	return &ConditionRepository{db: db}
}

// GetByFingerprint returns the condition record for fingerprint, or nil if
// absent (not an error — Registry.Register treats nil as "not yet seen").
func (r *ConditionRepository) GetByFingerprint(fingerprint string) (*models.ConditionRecord, error) {
	query := `
		SELECT fingerprint, symbol, timeframe, indicator, settings, operator, operand,
		       status, last_evaluated_at, last_triggered_at, evaluation_count, created_at, updated_at
		FROM condition_records
		WHERE fingerprint = $1`

	rec := &models.ConditionRecord{}
	var settingsJSON, operandJSON []byte
	err := r.db.QueryRow(query, fingerprint).Scan(
		&rec.Fingerprint,
		&rec.Symbol,
		&rec.Timeframe,
		&rec.Indicator,
		&settingsJSON,
		&rec.Operator,
		&operandJSON,
		&rec.Status,
		&rec.LastEvaluatedAt,
		&rec.LastTriggeredAt,
		&rec.EvaluationCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(settingsJSON, &rec.Settings); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(operandJSON, &rec.Operand); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts a new condition_record. fingerprint is the primary key,
// so a racing double-insert is caught by the unique constraint rather than
// by the absent-check in Registry.Register.
func (r *ConditionRepository) Create(record *models.ConditionRecord) error {
	settingsJSON, err := json.Marshal(record.Settings)
	if err != nil {
		return err
	}
	operandJSON, err := json.Marshal(record.Operand)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO condition_records
			(fingerprint, symbol, timeframe, indicator, settings, operator, operand,
			 status, last_evaluated_at, last_triggered_at, evaluation_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (fingerprint) DO NOTHING`

	_, err = r.db.Exec(query,
		record.Fingerprint,
		record.Symbol,
		record.Timeframe,
		record.Indicator,
		settingsJSON,
		record.Operator,
		operandJSON,
		record.Status,
		record.LastEvaluatedAt,
		record.LastTriggeredAt,
		record.EvaluationCount,
		record.CreatedAt,
		record.UpdatedAt,
	)
	return err
}

// SetStatus transitions fingerprint's condition to status.
func (r *ConditionRepository) SetStatus(fingerprint string, status models.ConditionStatus) error {
	query := `UPDATE condition_records SET status = $1, updated_at = $2 WHERE fingerprint = $3`
	result, err := r.db.Exec(query, status, time.Now(), fingerprint)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConditionNotFound
	}
	return nil
}

// ActiveFingerprints returns every fingerprint with at least one active
// subscription, the set the evaluator snapshots once per cycle.
func (r *ConditionRepository) ActiveFingerprints() ([]string, error) {
	query := `
		SELECT DISTINCT c.fingerprint
		FROM condition_records c
		JOIN subscriptions s ON s.fingerprint = c.fingerprint
		WHERE c.status = $1 AND s.status = $1`

	rows, err := r.db.Query(query, models.ConditionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// RecordEvaluation advances last_evaluated_at/evaluation_count, and
// last_triggered_at when triggeredBarClose is non-zero. See
// registry.ConditionStore's doc comment for why last_triggered_at stores a
// bar_close_time rather than a wall-clock time.
func (r *ConditionRepository) RecordEvaluation(fingerprint string, evaluatedAt, triggeredBarClose time.Time) error {
	if triggeredBarClose.IsZero() {
		query := `
			UPDATE condition_records
			SET last_evaluated_at = $1, evaluation_count = evaluation_count + 1, updated_at = $1
			WHERE fingerprint = $2`
		_, err := r.db.Exec(query, evaluatedAt, fingerprint)
		return err
	}
	query := `
		UPDATE condition_records
		SET last_evaluated_at = $1, last_triggered_at = $2, evaluation_count = evaluation_count + 1, updated_at = $1
		WHERE fingerprint = $3`
	_, err := r.db.Exec(query, evaluatedAt, triggeredBarClose, fingerprint)
	return err
}
