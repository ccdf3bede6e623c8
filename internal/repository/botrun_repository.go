package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrBotRunNotFound is returned when no row matches the request.
var ErrBotRunNotFound = errors.New("bot run not found")

// BotRunRepository persists bot_run rows: one per accumulate-then-exit
// cycle, at most one `running` per bot at any instant (spec.md §3).
type BotRunRepository struct {
	db *sql.DB
}

// NewBotRunRepository constructs a BotRunRepository over db.
func NewBotRunRepository(db *sql.DB) *BotRunRepository {
	return &BotRunRepository{db: db}
}

// Start inserts a new running bot_run for botID and returns its ID.
func (r *BotRunRepository) Start(botID int64) (int64, error) {
	query := `
		INSERT INTO bot_runs (bot_id, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id int64
	err := r.db.QueryRow(query, botID, models.BotRunStatusRunning, time.Now()).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// End closes runID with status and stats, stamping ended_at.
func (r *BotRunRepository) End(runID int64, status models.BotRunStatus, outcome string, stats map[string]float64) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	query := `UPDATE bot_runs SET status = $1, outcome = $2, stats = $3, ended_at = $4 WHERE id = $5`
	result, err := r.db.Exec(query, status, outcome, statsJSON, time.Now(), runID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBotRunNotFound
	}
	return nil
}

// CurrentRunning returns botID's running run, or nil if it has none.
func (r *BotRunRepository) CurrentRunning(botID int64) (*models.BotRun, error) {
	query := `
		SELECT id, bot_id, status, started_at, ended_at, outcome, stats
		FROM bot_runs
		WHERE bot_id = $1 AND status = $2`

	run := &models.BotRun{}
	var endedAt sql.NullTime
	var statsJSON []byte
	err := r.db.QueryRow(query, botID, models.BotRunStatusRunning).Scan(
		&run.ID, &run.BotID, &run.Status, &run.StartedAt, &endedAt, &run.Outcome, &statsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if endedAt.Valid {
		run.EndedAt = endedAt.Time
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return nil, err
		}
	}
	return run, nil
}
