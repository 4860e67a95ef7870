package bus

import (
	"time"

	"github.com/google/uuid"
)

type Topic string

const (
	TopicIntelSnapshot Topic = "intel.snapshot"
	TopicTaskPlan      Topic = "task.plan"
	TopicTaskExec      Topic = "task.exec"
	TopicAlert         Topic = "alert"
	TopicTelemetry     Topic = "telemetry"
	TopicStateDelta    Topic = "state.delta"
)

// DefaultTopics is the topic set every bus starts with.
var DefaultTopics = []Topic{
	TopicIntelSnapshot,
	TopicTaskPlan,
	TopicTaskExec,
	TopicAlert,
	TopicTelemetry,
	TopicStateDelta,
}

type Role string

const (
	RoleSensor       Role = "sensor"
	RoleOrchestrator Role = "orchestrator"
	RoleWorker       Role = "worker"
	RoleSystem       Role = "system"
)

// Priority 1 is the most urgent.
type Priority uint8

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type Message struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"ts"`
	Role          Role          `json:"role"`
	Topic         Topic         `json:"topic"`
	RoutingKey    string        `json:"routingKey,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	TTL           time.Duration `json:"ttl,omitempty"`
	Priority      Priority      `json:"priority"`
	Payload       any           `json:"payload"`
	Signature     string        `json:"signature,omitempty"`
}

func NewMessage(role Role, topic Topic, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Role:      role,
		Topic:     topic,
		Priority:  PriorityNormal,
		Payload:   payload,
	}
}

// Expired reports whether the TTL had already elapsed at now.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.Timestamp.Add(m.TTL))
}
