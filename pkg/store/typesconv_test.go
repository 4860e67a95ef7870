package store

import (
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestOperatorEntryToOperator(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	type args struct {
		entry *OperatorEntry
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "empty",
			args: args{
				entry: &OperatorEntry{},
			},
			wantErr: true,
		},
		{
			name: "invalid stake",
			args: args{
				entry: &OperatorEntry{OperatorID: "op1", StakedAmount: "1e18"},
			},
			wantErr: true,
		},
		{
			name: "complete",
			args: args{
				entry: &OperatorEntry{
					OperatorID:       "op1",
					WalletAddress:    "0xabc",
					StakedAmount:     "2000000000000000000",
					PerformanceScore: 87.5,
					RegisteredAt:     now,
				},
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OperatorEntryToOperator(tt.args.entry, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("OperatorEntryToOperator() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.StakedAmount.String() != tt.args.entry.StakedAmount {
				t.Errorf("OperatorEntryToOperator() stake = %v, want %v", got.StakedAmount, tt.args.entry.StakedAmount)
			}
		})
	}
}

func TestViolationEntryConversion(t *testing.T) {
	violation := &types.Violation{
		ID:              "v1",
		Type:            types.ViolationDowntime,
		Timestamp:       time.Unix(1700000000, 0).UTC(),
		DurationMinutes: types.MinutesPtr(50),
		Severity:        types.SeverityHigh,
		Description:     "uptime below 99.9%",
	}

	entry, err := ViolationToViolationEntry("op1", violation)
	require.NoError(t, err)
	require.True(t, entry.DurationMinutes.Valid)
	require.Equal(t, int64(50), entry.DurationMinutes.Int64)
	require.Equal(t, *violation, ViolationEntryToViolation(entry))

	_, err = ViolationToViolationEntry("op1", &types.Violation{})
	require.Error(t, err)
}
