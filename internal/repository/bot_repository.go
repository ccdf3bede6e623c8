package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrBotNotFound is returned when no row matches the requested bot ID.
var ErrBotNotFound = errors.New("bot not found")

// BotRepository persists bot rows and satisfies notifier.BotStore.
type BotRepository struct {
	db *sql.DB
}

// NewBotRepository constructs a BotRepository over db.
func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

const botColumns = `id, user_id, type, symbol, status, config, created_at, updated_at`

func scanBot(row scannable) (*models.Bot, error) {
	bot := &models.Bot{}
	var configJSON []byte
	err := row.Scan(
		&bot.ID,
		&bot.UserID,
		&bot.Type,
		&bot.Symbol,
		&bot.Status,
		&configJSON,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &bot.Config); err != nil {
		return nil, err
	}
	return bot, nil
}

// GetByID returns the bot row for botID, satisfying notifier.BotStore.
func (r *BotRepository) GetByID(botID int64) (*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	bot, err := scanBot(r.db.QueryRow(query, botID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bot, nil
}

// Create inserts bot (in status inactive when bot.Status is empty) and
// returns its generated ID.
func (r *BotRepository) Create(bot *models.Bot) (int64, error) {
	configJSON, err := json.Marshal(bot.Config)
	if err != nil {
		return 0, err
	}
	if bot.Status == "" {
		bot.Status = models.BotStatusInactive
	}
	now := time.Now()
	query := `
		INSERT INTO bots (user_id, type, symbol, status, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`
	var id int64
	err = r.db.QueryRow(query, bot.UserID, bot.Type, bot.Symbol, bot.Status, configJSON, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetStatus transitions botID to status, recording the lifecycle actions of
// spec.md §3 (start/pause/resume/stop). SetStatus is an unconditional write:
// no transition table is checked here (dca.ValidTransitions covers position
// states, not bot statuses).
func (r *BotRepository) SetStatus(botID int64, status models.BotStatus) error {
	query := `UPDATE bots SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(query, status, time.Now(), botID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBotNotFound
	}
	return nil
}

// ByStatus returns every bot in the given status, used at startup to
// rebuild in-memory DCA state for running bots.
func (r *BotRepository) ByStatus(status models.BotStatus) ([]*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE status = $1`
	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// Delete removes botID. Cascading deletes of subscriptions/bot runs are
// enforced by the schema's ON DELETE CASCADE foreign keys (spec.md §3);
// position and order rows are retained per that same invariant.
func (r *BotRepository) Delete(botID int64) error {
	query := `DELETE FROM bots WHERE id = $1`
	result, err := r.db.Exec(query, botID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBotNotFound
	}
	return nil
}
