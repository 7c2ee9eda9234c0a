package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 0, PriorityRank(PriorityHigh))
	assert.Equal(t, 1, PriorityRank(PriorityNormal))
	assert.Equal(t, 2, PriorityRank(PriorityLow))
	assert.Equal(t, 2, PriorityRank("unknown"))
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		name     string
		priority string
		want     string
	}{
		{name: "high passes through", priority: PriorityHigh, want: PriorityHigh},
		{name: "normal passes through", priority: PriorityNormal, want: PriorityNormal},
		{name: "low passes through", priority: PriorityLow, want: PriorityLow},
		{name: "empty defaults to normal", priority: "", want: PriorityNormal},
		{name: "unknown defaults to normal", priority: "urgent", want: PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePriority(tt.priority))
		})
	}
}

func TestTruncateError(t *testing.T) {
	short := "connection refused"
	assert.Equal(t, short, TruncateError(short))

	long := strings.Repeat("x", MaxErrorLength+100)
	got := TruncateError(long)
	assert.Len(t, got, MaxErrorLength)
}
