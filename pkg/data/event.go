package data

import (
	"github.com/din-network/din-monitor/pkg/types"
)

type Event struct {
	Payload any
}

// MetricsEvent carries one sample pulled from an operator's telemetry endpoint.
type MetricsEvent struct {
	OperatorID types.OperatorID         `json:"operatorId"`
	Metrics    types.PerformanceMetrics `json:"metrics"`
}
