package registry

import (
	"sync"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

type mockConditionStore struct {
	mu      sync.Mutex
	records map[string]*models.ConditionRecord
}

func newMockConditionStore() *mockConditionStore {
	return &mockConditionStore{records: make(map[string]*models.ConditionRecord)}
}

func (m *mockConditionStore) GetByFingerprint(fingerprint string) (*models.ConditionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[fingerprint], nil
}

func (m *mockConditionStore) Create(record *models.ConditionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Fingerprint] = record
	return nil
}

func (m *mockConditionStore) SetStatus(fingerprint string, status models.ConditionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[fingerprint]; ok {
		r.Status = status
	}
	return nil
}

func (m *mockConditionStore) RecordEvaluation(fingerprint string, evaluatedAt, triggeredBarClose time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[fingerprint]; ok {
		r.LastEvaluatedAt = evaluatedAt
		r.EvaluationCount++
		if !triggeredBarClose.IsZero() {
			r.LastTriggeredAt = triggeredBarClose
		}
	}
	return nil
}

func (m *mockConditionStore) ActiveFingerprints() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for fp, r := range m.records {
		if r.Status == models.ConditionStatusActive {
			out = append(out, fp)
		}
	}
	return out, nil
}

type mockSubscriptionStore struct {
	mu     sync.Mutex
	subs   map[int64]*models.Subscription
	nextID int64
}

func newMockSubscriptionStore() *mockSubscriptionStore {
	return &mockSubscriptionStore{subs: make(map[int64]*models.Subscription), nextID: 1}
}

func (m *mockSubscriptionStore) Create(sub *models.Subscription) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	sub.ID = id
	m.subs[id] = sub
	return id, nil
}

func (m *mockSubscriptionStore) GetByID(id int64) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id], nil
}

func (m *mockSubscriptionStore) SetStatus(id int64, status models.ConditionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.Status = status
	}
	return nil
}

func (m *mockSubscriptionStore) SetLastTriggeredAt(id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.LastTriggeredAt = at
	}
	return nil
}

func (m *mockSubscriptionStore) ByFingerprint(fingerprint string) ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Subscription
	for _, s := range m.subs {
		if s.Fingerprint == fingerprint && s.Status == models.ConditionStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSubscriptionStore) ByBotID(botID int64) ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Subscription
	for _, s := range m.subs {
		if s.BotID == botID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSubscriptionStore) ActiveSubscriptions() ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Subscription
	for _, s := range m.subs {
		if s.Status == models.ConditionStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSubscriptionStore) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

type mockPlaybookStore struct {
	mu    sync.Mutex
	books map[string]*Playbook
}

func newMockPlaybookStore() *mockPlaybookStore {
	return &mockPlaybookStore{books: make(map[string]*Playbook)}
}

func (m *mockPlaybookStore) GetByFingerprint(fingerprint string) (*Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[fingerprint], nil
}

func (m *mockPlaybookStore) Create(fingerprint string, pb *Playbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[fingerprint] = pb
	return nil
}

func (m *mockPlaybookStore) ActiveFingerprints() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.books))
	for fp := range m.books {
		out = append(out, fp)
	}
	return out, nil
}

var _ ConditionStore = (*mockConditionStore)(nil)
var _ SubscriptionStore = (*mockSubscriptionStore)(nil)
var _ PlaybookStore = (*mockPlaybookStore)(nil)
