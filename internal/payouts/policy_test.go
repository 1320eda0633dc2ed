package payouts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name           string
		payout, pct    int64
		stage1, stage2 int64
	}{
		{"single stage", 30000, 100, 30000, 0},
		{"seventy thirty", 30000, 70, 21000, 9000},
		{"rounds stage one", 999, 50, 500, 499},
		{"all at completion", 30000, 0, 0, 30000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s1, s2 := Split(tt.payout, tt.pct)
			assert.Equal(t, tt.stage1, s1)
			assert.Equal(t, tt.stage2, s2)
			assert.Equal(t, tt.payout, s1+s2)
		})
	}
}

func TestStaged(t *testing.T) {
	assert.False(t, Staged(100))
	assert.True(t, Staged(70))
}
