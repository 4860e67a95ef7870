package api

import (
	"time"

	"github.com/din-network/din-monitor/pkg/memory"
	"github.com/din-network/din-monitor/pkg/types"
)

type RegisterRequest struct {
	OperatorID    types.OperatorID `json:"operatorId"`
	WalletAddress string           `json:"walletAddress"`
	InitialStake  *types.Amount    `json:"initialStake,omitempty"`
}

type AmountRequest struct {
	Amount *types.Amount `json:"amount"`
}

type SlashRequest struct {
	Violations []types.Violation `json:"violations"`
	Reason     string            `json:"reason"`
}

type SlashResponse struct {
	OperatorID types.OperatorID `json:"operatorId"`
	Amount     types.Amount     `json:"amount"`
}

type MetricsRequest struct {
	OperatorID types.OperatorID          `json:"operatorId"`
	Metrics    *types.PerformanceMetrics `json:"metrics"`
}

type TotalStakedResponse struct {
	TotalStaked types.Amount `json:"totalStaked"`
}

type VectorSearchRequest struct {
	Embedding  []float32        `json:"embedding,omitempty"`
	OperatorID types.OperatorID `json:"operatorId,omitempty"`
	K          int              `json:"k"`
	Filter     map[string]any   `json:"filter,omitempty"`
}

type VectorSearchResponse struct {
	Results []memory.SearchResult `json:"results"`
}

type KVResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
