package router

import (
	"math/big"
	"testing"
)

func TestApplyDustRuleRoundsUpPastThreshold(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		balance   string
		want      string
	}{
		{"exactly at threshold rounds up", "950000", "1000000", "1000000"},
		{"just below threshold stays exact", "949999", "1000000", "949999"},
		{"full balance stays exact", "1000000", "1000000", "1000000"},
		{"small partial sell stays exact", "100000", "1000000", "100000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requested, _ := new(big.Int).SetString(tt.requested, 10)
			got := applyDustRule(requested, tt.balance)
			if got.String() != tt.want {
				t.Errorf("applyDustRule(%s, %s) = %s, want %s", tt.requested, tt.balance, got.String(), tt.want)
			}
		})
	}
}
