package raptorerr

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Code
	}{
		{"blockhash expired lowercase", "Blockhash not found", BlockhashExpired},
		{"rate limited http", "429 Too Many Requests", RPCRateLimited},
		{"network timeout", "context deadline exceeded", RPCTimeout},
		{"connection refused", "dial tcp: connection refused", NetworkError},
		{"insufficient funds", "Transfer: insufficient lamports 100, need 200", InsufficientFunds},
		{"slippage", "Slippage tolerance exceeded on swap", SlippageExceeded},
		{"honeypot", "token flagged as HONEYPOT by simulator", HoneypotDetected},
		{"unknown defaults to program error", "some never before seen error", ProgramError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{RPCTimeout, true},
		{RPCRateLimited, true},
		{BlockhashExpired, true},
		{SlotDropped, true},
		{NetworkError, true},
		{InsufficientFunds, false},
		{SlippageExceeded, false},
		{ProgramError, false},
		{Code("TOTALLY_UNKNOWN"), false},
	}

	for _, tt := range tests {
		if got := tt.code.Retryable(); got != tt.want {
			t.Errorf("%s.Retryable() = %v, want %v", tt.code, got, tt.want)
		}
	}
}
