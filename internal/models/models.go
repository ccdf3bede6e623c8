// Package models holds the data shapes shared across the condition
// registry, evaluator, event bus, and DCA executor. Field shapes follow
// spec.md §3 directly; storage mapping lives in internal/repository.
package models

import "time"

// Bar is a single OHLCV candle for a (symbol, timeframe) pair.
type Bar struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ConditionStatus tracks the lifecycle of a registered condition.
type ConditionStatus string

const (
	ConditionStatusActive   ConditionStatus = "active"
	ConditionStatusPaused   ConditionStatus = "paused"
	ConditionStatusRevoked  ConditionStatus = "revoked"
)

// ConditionRecord is a canonicalized, fingerprinted condition as stored in
// condition_records.
type ConditionRecord struct {
	Fingerprint string
	Symbol      string
	Timeframe   string
	Indicator   string
	Settings    map[string]interface{}
	Operator    string
	Operand     map[string]interface{}
	Status      ConditionStatus
	LastEvaluatedAt time.Time
	LastTriggeredAt time.Time
	EvaluationCount int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subscription binds a bot to a condition (or playbook) fingerprint.
type Subscription struct {
	ID             int64
	BotID          int64
	Fingerprint    string
	Status         ConditionStatus
	LastTriggeredAt time.Time
	Generation     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TriggerEvent is an append-only log entry recording a fingerprint firing.
type TriggerEvent struct {
	ID            int64
	Fingerprint   string
	Symbol        string
	Timeframe     string
	TriggeredAt   time.Time
	BarCloseTime  time.Time
	Values        map[string]float64
	DispatchedTo  []int64
}

// BotType selects the executor a trigger gets routed to.
type BotType string

const (
	BotTypeDCA BotType = "dca"
)

// BotStatus is the bot's externally-visible run state.
type BotStatus string

const (
	BotStatusInactive BotStatus = "inactive"
	BotStatusRunning  BotStatus = "running"
	BotStatusPaused   BotStatus = "paused"
	BotStatusStopped  BotStatus = "stopped"
)

// Bot is a user-configured trading bot subscribed to one or more
// condition/playbook fingerprints.
type Bot struct {
	ID              int64
	UserID          int64
	Type            BotType
	Symbol          string
	Status          BotStatus
	Config          BotConfig
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BotConfig holds the DCA-specific parameters for a bot (spec.md §4.7-§4.9).
type BotConfig struct {
	// EntryFingerprint is the condition (or playbook) fingerprint that opens
	// a new position. The bot's other subscriptions are DCARules of type
	// custom_condition, one fingerprint each; the executor tells them apart
	// by comparing the triggering event's fingerprint against this field
	// and against each DCARule.Fingerprint.
	EntryFingerprint string

	BaseOrderSize       float64
	SafetyOrderSize     float64
	MaxSafetyOrders     int
	MaxActiveDeals      int
	PriceDeviationPct    float64
	SafetyOrderStepScale float64
	SafetyOrderVolumeScale float64

	DCARules []DCARule

	TakeProfitPct    float64
	PartialTargets   []PartialTarget
	TrailingArmPct   float64
	TrailingStopPct  float64
	TimeExitDuration time.Duration
	MinTimeExitPct   float64

	MaxDCAsPerPosition int
	MaxDCAsGlobal      int
	MaxInvestmentPerPosition float64
	StopDCAOnLossPct   float64
	// CooldownAfterEntry suppresses further DCA fills within this window
	// following the last entry (spec.md §4.7's cooldown_bars/cooldown_minutes,
	// collapsed to a single duration since a BotConfig is already scoped to
	// one bot-symbol pair and the executor only ever sees wall-clock ticks).
	CooldownAfterEntry time.Duration
	CooldownAfterExit  time.Duration
}

// DCARuleType names which trigger condition drives a safety order.
type DCARuleType string

const (
	DCARuleDownFromLastEntry   DCARuleType = "down_from_last_entry"
	DCARuleDownFromAveragePrice DCARuleType = "down_from_average_price"
	DCARuleLossByPercent       DCARuleType = "loss_by_percent"
	DCARuleLossByAmount        DCARuleType = "loss_by_amount"
	DCARuleCustomCondition     DCARuleType = "custom_condition"
)

// DCARule is one entry-condition rule gating a safety order.
type DCARule struct {
	Type        DCARuleType
	Threshold   float64
	Fingerprint string // used only when Type == DCARuleCustomCondition
}

// PartialTarget is one profit-taking level: sell Quantity fraction of the
// position once unrealized PNL reaches TriggerPct.
type PartialTarget struct {
	TriggerPct float64
	Quantity   float64 // fraction of position, 0 < Quantity <= 1
}

// BotRunStatus is a run's lifecycle state.
type BotRunStatus string

const (
	BotRunStatusRunning   BotRunStatus = "running"
	BotRunStatusCompleted BotRunStatus = "completed"
	BotRunStatusStopped   BotRunStatus = "stopped"
	BotRunStatusError     BotRunStatus = "error"
)

// BotRun is one activation cycle of a bot (a single accumulate-then-exit
// trade cycle), persisted for audit/recovery.
type BotRun struct {
	ID        int64
	BotID     int64
	Status    BotRunStatus
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   string
	Stats     map[string]float64
}

// PositionState mirrors the DCA state machine's externally-visible state.
type PositionState string

const (
	PositionIdle         PositionState = "idle"
	PositionAccumulating PositionState = "accumulating"
	PositionExiting      PositionState = "exiting"
	PositionPaused       PositionState = "paused"
	PositionStopped      PositionState = "stopped"
)

// Position is a bot's in-progress (or closed) holding.
type Position struct {
	ID                int64
	BotID             int64
	RunID             int64
	Symbol            string
	State             PositionState
	EntryCount        int
	AverageEntryPrice float64
	Quantity          float64
	LastEntryPrice    float64
	LastEntryAt       time.Time
	TotalInvested     float64
	TrailingArmed     bool
	TrailingPeak      float64
	// PartialTargetsFired tracks, by index into BotConfig.PartialTargets,
	// which profit-taking levels have already sold their slice of this
	// position, so a restart doesn't re-sell a target already taken.
	PartialTargetsFired []bool
	OpenedAt             time.Time
	ClosedAt             time.Time
}

// OrderSide and OrderType narrow the generic exchange.Order shape to this
// engine's DCA semantics.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects market-immediate vs. resting-limit execution. The paper
// simulator honors both; the DCA executor only ever places market orders
// (spec.md §4.7-§4.9 describe no limit-order entry/exit path).
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is an order row's execution lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusError     OrderStatus = "error"
)

// Order is a single fill (or attempted fill) against a position.
type Order struct {
	ID         int64
	RunID      int64
	PositionID int64
	BotID      int64
	Side       OrderSide
	Type       OrderType
	Status     OrderStatus
	Quantity   float64
	FilledQty  float64
	Price      float64
	Fee        float64
	Paper      bool
	CreatedAt  time.Time
	FilledAt   time.Time
}
