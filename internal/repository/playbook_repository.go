package repository

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/tradeeon/condition-engine/internal/registry"
)

// playbookRow is the JSON-serializable shape of registry.Playbook, since
// its Items carry only scalar fields and marshal cleanly without a custom
// codec.
type playbookRow struct {
	Gate            registry.Gate            `json:"gate"`
	EvaluationOrder registry.EvaluationOrder `json:"evaluation_order"`
	Items           []registry.Item          `json:"items"`
}

// PlaybookRepository persists playbook definitions keyed by their own
// wrapper fingerprint.
type PlaybookRepository struct {
	db *sql.DB
}

// NewPlaybookRepository constructs a PlaybookRepository over db.
func NewPlaybookRepository(db *sql.DB) *PlaybookRepository {
	return &PlaybookRepository{db: db}
}

// GetByFingerprint returns the playbook stored under fingerprint, or nil if
// absent.
func (r *PlaybookRepository) GetByFingerprint(fingerprint string) (*registry.Playbook, error) {
	query := `SELECT body FROM playbooks WHERE fingerprint = $1`

	var body []byte
	err := r.db.QueryRow(query, fingerprint).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var row playbookRow
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, err
	}
	return &registry.Playbook{Gate: row.Gate, EvaluationOrder: row.EvaluationOrder, Items: row.Items}, nil
}

// Create inserts pb's row keyed by fingerprint, ignoring a racing duplicate
// insert the same way ConditionRepository.Create does.
func (r *PlaybookRepository) Create(fingerprint string, pb *registry.Playbook) error {
	body, err := json.Marshal(playbookRow{Gate: pb.Gate, EvaluationOrder: pb.EvaluationOrder, Items: pb.Items})
	if err != nil {
		return err
	}
	query := `
		INSERT INTO playbooks (fingerprint, body, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (fingerprint) DO NOTHING`
	_, err = r.db.Exec(query, fingerprint, body)
	return err
}

// ActiveFingerprints returns every registered playbook's wrapper
// fingerprint. Playbooks have no status column of their own: gating
// happens on the subscription row (registry.ActivePlaybookFingerprints'
// doc comment).
func (r *PlaybookRepository) ActiveFingerprints() ([]string, error) {
	rows, err := r.db.Query(`SELECT fingerprint FROM playbooks`)
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
