package types

import (
	"fmt"
	"time"
)

type ViolationType string

const (
	ViolationDowntime             ViolationType = "downtime"
	ViolationBadData              ViolationType = "bad-data"
	ViolationMisbehavior          ViolationType = "misbehavior"
	ViolationPerformanceThreshold ViolationType = "performance-threshold"
)

func (t ViolationType) Valid() bool {
	switch t {
	case ViolationDowntime, ViolationBadData, ViolationMisbehavior, ViolationPerformanceThreshold:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Violation is an immutable record of one detected misbehavior.
type Violation struct {
	ID              string        `json:"id"`
	Type            ViolationType `json:"type"`
	Timestamp       time.Time     `json:"timestamp"`
	DurationMinutes *uint64       `json:"durationMinutes,omitempty"`
	Severity        Severity      `json:"severity"`
	Description     string        `json:"description"`
}

func (v *Violation) Validate() error {
	if !v.Type.Valid() {
		return fmt.Errorf("invalid violation type %q", v.Type)
	}
	if !v.Severity.Valid() {
		return fmt.Errorf("invalid violation severity %q", v.Severity)
	}
	return nil
}

// Duration returns the duration in minutes, zero when absent.
func (v *Violation) Duration() uint64 {
	if v.DurationMinutes == nil {
		return 0
	}
	return *v.DurationMinutes
}

func MinutesPtr(m uint64) *uint64 {
	return &m
}

type Operator struct {
	ID                   OperatorID  `json:"operatorId"`
	WalletAddress        string      `json:"walletAddress"`
	StakedAmount         Amount      `json:"stakedAmount"`
	PerformanceScore     float64     `json:"performanceScore"`
	Violations           []Violation `json:"violations"`
	RegisteredAt         time.Time   `json:"registeredAt"`
	LastPerformanceCheck *time.Time  `json:"lastPerformanceCheck,omitempty"`
}

// Copy returns a deep copy so callers never share the stored record.
func (o *Operator) Copy() *Operator {
	c := *o
	c.Violations = make([]Violation, len(o.Violations))
	for i, v := range o.Violations {
		if v.DurationMinutes != nil {
			v.DurationMinutes = MinutesPtr(*v.DurationMinutes)
		}
		c.Violations[i] = v
	}
	if o.LastPerformanceCheck != nil {
		t := *o.LastPerformanceCheck
		c.LastPerformanceCheck = &t
	}
	return &c
}

func (o *Operator) HasViolation(id string) bool {
	for i := range o.Violations {
		if o.Violations[i].ID == id {
			return true
		}
	}
	return false
}

// AppendViolations appends the violations not yet present and returns how many were added.
func (o *Operator) AppendViolations(violations ...Violation) int {
	added := 0
	for _, v := range violations {
		if v.ID != "" && o.HasViolation(v.ID) {
			continue
		}
		o.Violations = append(o.Violations, v)
		added++
	}
	return added
}

// IsActive reports a score above 50 with a non-zero stake.
func (o *Operator) IsActive() bool {
	return o.PerformanceScore > 50 && !o.StakedAmount.IsZero()
}

func (o *Operator) IsSlashed() bool {
	return len(o.Violations) > 0
}

// PerformanceMetrics is one sampled measurement for one operator at one instant.
type PerformanceMetrics struct {
	ServiceID   string    `json:"serviceId"`
	SuccessRate float64   `json:"successRate"`
	P95Latency  float64   `json:"p95Latency"`
	P99Latency  float64   `json:"p99Latency"`
	Throughput  float64   `json:"throughput"`
	Uptime      float64   `json:"uptime"`
	Timestamp   time.Time `json:"timestamp"`
}

// SampleKey identifies a sample for replay.
func (m *PerformanceMetrics) SampleKey(operatorID OperatorID) string {
	return fmt.Sprintf("%s/%s/%d", operatorID, m.ServiceID, m.Timestamp.UnixNano())
}

type StakingEventType string

const (
	StakingEventStake   StakingEventType = "stake"
	StakingEventUnstake StakingEventType = "unstake"
	StakingEventSlash   StakingEventType = "slash"
)

type StakingEvent struct {
	OperatorID OperatorID       `json:"operatorId"`
	Type       StakingEventType `json:"type"`
	Amount     Amount           `json:"amount"`
	Timestamp  time.Time        `json:"timestamp"`
	Reason     string           `json:"reason,omitempty"`
}

type Status struct {
	TotalOperators          uint       `json:"totalOperators"`
	TotalStaked             Amount     `json:"totalStaked"`
	ActiveOperators         uint       `json:"activeOperators"`
	SlashedOperators        uint       `json:"slashedOperators"`
	AveragePerformanceScore float64    `json:"averagePerformanceScore"`
	LastPerformanceCheck    *time.Time `json:"lastPerformanceCheck"`
}

type StateDeltaKind string

const (
	StateDeltaViolation StateDeltaKind = "violation"
	StateDeltaSlash     StateDeltaKind = "slash"
)

// StateDelta describes a change to an operator record, carried on state.delta.
type StateDelta struct {
	OperatorID       OperatorID     `json:"operatorId"`
	Kind             StateDeltaKind `json:"kind"`
	Amount           *Amount        `json:"amount,omitempty"`
	StakedAmount     Amount         `json:"stakedAmount"`
	PerformanceScore float64        `json:"performanceScore"`
	Violations       []Violation    `json:"violations,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Telemetry is the payload published for every recorded sample.
type Telemetry struct {
	OperatorID OperatorID         `json:"operatorId"`
	Metrics    PerformanceMetrics `json:"metrics"`
	Score      float64            `json:"score"`
}
