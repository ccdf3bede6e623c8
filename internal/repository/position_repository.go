package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrPositionNotFound is returned when no row matches the request.
var ErrPositionNotFound = errors.New("position not found")

// PositionRepository persists per-(bot, symbol) position rows.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository constructs a PositionRepository over db.
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `id, bot_id, run_id, symbol, state, entry_count, average_entry_price, quantity,
	last_entry_price, last_entry_at, total_invested, trailing_armed, trailing_peak, partial_targets_fired,
	opened_at, closed_at`

func scanPosition(row scannable) (*models.Position, error) {
	pos := &models.Position{}
	var lastEntryAt, closedAt sql.NullTime
	var firedJSON []byte
	err := row.Scan(
		&pos.ID,
		&pos.BotID,
		&pos.RunID,
		&pos.Symbol,
		&pos.State,
		&pos.EntryCount,
		&pos.AverageEntryPrice,
		&pos.Quantity,
		&pos.LastEntryPrice,
		&lastEntryAt,
		&pos.TotalInvested,
		&pos.TrailingArmed,
		&pos.TrailingPeak,
		&firedJSON,
		&pos.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastEntryAt.Valid {
		pos.LastEntryAt = lastEntryAt.Time
	}
	if closedAt.Valid {
		pos.ClosedAt = closedAt.Time
	}
	if len(firedJSON) > 0 {
		if err := json.Unmarshal(firedJSON, &pos.PartialTargetsFired); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

// GetOpen returns the non-closed position for (botID, symbol), or nil if
// there is none.
func (r *PositionRepository) GetOpen(botID int64, symbol string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE bot_id = $1 AND symbol = $2 AND closed_at IS NULL`
	pos, err := scanPosition(r.db.QueryRow(query, botID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return pos, nil
}

// Create inserts a new position row and returns its generated ID.
func (r *PositionRepository) Create(pos *models.Position) (int64, error) {
	firedJSON, err := json.Marshal(pos.PartialTargetsFired)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO positions
			(bot_id, run_id, symbol, state, entry_count, average_entry_price, quantity,
			 last_entry_price, last_entry_at, total_invested, trailing_armed, trailing_peak,
			 partial_targets_fired, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	var id int64
	err = r.db.QueryRow(query,
		pos.BotID, pos.RunID, pos.Symbol, pos.State, pos.EntryCount, pos.AverageEntryPrice, pos.Quantity,
		pos.LastEntryPrice, nullableTime(pos.LastEntryAt), pos.TotalInvested, pos.TrailingArmed, pos.TrailingPeak,
		firedJSON, pos.OpenedAt, nullableTime(pos.ClosedAt),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update persists pos's mutable fields (everything but bot_id/symbol/run_id/opened_at).
func (r *PositionRepository) Update(pos *models.Position) error {
	firedJSON, err := json.Marshal(pos.PartialTargetsFired)
	if err != nil {
		return err
	}
	query := `
		UPDATE positions SET
			state = $1, entry_count = $2, average_entry_price = $3, quantity = $4,
			last_entry_price = $5, last_entry_at = $6, total_invested = $7,
			trailing_armed = $8, trailing_peak = $9, partial_targets_fired = $10, closed_at = $11
		WHERE id = $12`
	result, err := r.db.Exec(query,
		pos.State, pos.EntryCount, pos.AverageEntryPrice, pos.Quantity,
		pos.LastEntryPrice, nullableTime(pos.LastEntryAt), pos.TotalInvested,
		pos.TrailingArmed, pos.TrailingPeak, firedJSON, nullableTime(pos.ClosedAt), pos.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPositionNotFound
	}
	return nil
}

// OpenByStatus returns every open position belonging to a bot in the given
// status, used to rebuild in-memory DCA state at startup.
func (r *PositionRepository) OpenByStatus(status models.BotStatus) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions p
		JOIN bots b ON b.id = p.bot_id
		WHERE b.status = $1 AND p.closed_at IS NULL`
	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
