package repository

import (
	"database/sql"
	"errors"

	"github.com/tradeeon/condition-engine/internal/models"
)

// ErrOrderNotFound is returned when no row matches the request.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository persists order rows. Orders are append-only once filled
// (spec.md §3); only SetStatus mutates an existing row, and only while it
// is still pending.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository constructs an OrderRepository over db.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, run_id, position_id, bot_id, side, type, status, quantity, filled_qty, price, fee, paper, created_at, filled_at`

func scanOrder(row scannable) (*models.Order, error) {
	o := &models.Order{}
	var filledAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.RunID, &o.PositionID, &o.BotID, &o.Side, &o.Type, &o.Status,
		&o.Quantity, &o.FilledQty, &o.Price, &o.Fee, &o.Paper, &o.CreatedAt, &filledAt,
	)
	if err != nil {
		return nil, err
	}
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	return o, nil
}

// Create inserts order and returns its generated ID.
func (r *OrderRepository) Create(o *models.Order) (int64, error) {
	query := `
		INSERT INTO orders (run_id, position_id, bot_id, side, type, status, quantity, filled_qty, price, fee, paper, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	var id int64
	err := r.db.QueryRow(query,
		o.RunID, o.PositionID, o.BotID, o.Side, o.Type, o.Status,
		o.Quantity, o.FilledQty, o.Price, o.Fee, o.Paper, o.CreatedAt, nullableTime(o.FilledAt),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetStatus transitions a pending order to a terminal status (error or
// cancelled) once the exchange response is known. Filled orders are
// written in their final state by Create and are never mutated again
// (spec.md §3: "once filled, fields except status are immutable" — and
// this repository never even revisits status once it's filled).
func (r *OrderRepository) SetStatus(id int64, status models.OrderStatus) error {
	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.Exec(query, status, id, models.OrderStatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ByPositionID returns every order placed against positionID, most recent
// first.
func (r *OrderRepository) ByPositionID(positionID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE position_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ByRunID returns every order placed during runID, most recent first.
func (r *OrderRepository) ByRunID(runID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE run_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
