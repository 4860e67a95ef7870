package store

import (
	"database/sql"
	"time"
)

type OperatorEntry struct {
	InsertedAt time.Time `db:"inserted_at"`

	OperatorID    string `db:"operator_id"`
	WalletAddress string `db:"wallet_address"`

	// NUMERIC(78, 0) decimal text
	StakedAmount     string  `db:"staked_amount"`
	PerformanceScore float64 `db:"performance_score"`

	RegisteredAt         time.Time    `db:"registered_at"`
	LastPerformanceCheck sql.NullTime `db:"last_performance_check"`
}

type ViolationEntry struct {
	ID         string `db:"id"`
	OperatorID string `db:"operator_id"`

	Type            string        `db:"type"`
	Timestamp       time.Time     `db:"timestamp"`
	DurationMinutes sql.NullInt64 `db:"duration_minutes"`
	Severity        string        `db:"severity"`
	Description     string        `db:"description"`
}

type StakingEventEntry struct {
	ID         int64     `db:"id"`
	InsertedAt time.Time `db:"inserted_at"`

	OperatorID string         `db:"operator_id"`
	Type       string         `db:"type"`
	Amount     string         `db:"amount"`
	Timestamp  time.Time      `db:"timestamp"`
	Reason     sql.NullString `db:"reason"`
}
