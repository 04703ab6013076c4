// Package raptorerr classifies the error codes in spec §7 into retryable and
// non-retryable buckets and provides the canonical string-to-code mapping
// used to translate router/RPC error text into that taxonomy.
package raptorerr

import "strings"

// Code is one of the canonical error codes.
type Code string

// Retryable (transient) codes.
const (
	RPCTimeout       Code = "RPC_TIMEOUT"
	RPCRateLimited   Code = "RPC_RATE_LIMITED"
	BlockhashExpired Code = "BLOCKHASH_EXPIRED"
	SlotDropped      Code = "SLOT_DROPPED"
	NetworkError     Code = "NETWORK_ERROR"
)

// Non-retryable (terminal) codes.
const (
	InsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	SlippageExceeded   Code = "SLIPPAGE_EXCEEDED"
	InvalidAccount     Code = "INVALID_ACCOUNT"
	HoneypotDetected   Code = "HONEYPOT_DETECTED"
	TokenFrozen        Code = "TOKEN_FROZEN"
	ProgramError       Code = "PROGRAM_ERROR"
	SimulationFailed   Code = "SIMULATION_FAILED"
	TokenBlacklisted   Code = "TOKEN_BLACKLISTED"
	DeployerBlacklisted Code = "DEPLOYER_BLACKLISTED"
	BudgetExceeded     Code = "BUDGET_EXCEEDED"
	CooldownActive     Code = "COOLDOWN_ACTIVE"
	TradingPaused      Code = "TRADING_PAUSED"
	CircuitOpen        Code = "CIRCUIT_OPEN"
)

var retryable = map[Code]bool{
	RPCTimeout:       true,
	RPCRateLimited:   true,
	BlockhashExpired: true,
	SlotDropped:      true,
	NetworkError:     true,
}

// Retryable reports whether a job/execution carrying this code should be retried.
// Unknown codes are never retryable, so indefinite retries cannot occur on
// unclassified failures (spec §7).
func (c Code) Retryable() bool {
	return retryable[c]
}

// Error is a classified error: a Code plus the underlying message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// canonicalPatterns maps lowercase substrings of router/RPC error text to a
// code, checked in order. Grounds on the teacher's isRetriableError string-match
// idiom in internal/bot/order.go rather than a typed error hierarchy, since the
// router/RPC boundary here is cross-process text, not a Go error value.
var canonicalPatterns = []struct {
	substr string
	code   Code
}{
	{"blockhash not found", BlockhashExpired},
	{"blockhash expired", BlockhashExpired},
	{"block height exceeded", BlockhashExpired},
	{"slot was skipped", SlotDropped},
	{"slot dropped", SlotDropped},
	{"rate limit", RPCRateLimited},
	{"429", RPCRateLimited},
	{"i/o timeout", NetworkError},
	{"timeout", RPCTimeout},
	{"deadline exceeded", RPCTimeout},
	{"connection refused", NetworkError},
	{"connection reset", NetworkError},
	{"network unreachable", NetworkError},
	{"eof", NetworkError},
	{"insufficient lamports", InsufficientFunds},
	{"insufficient funds", InsufficientFunds},
	{"custom program error", ProgramError},
	{"slippage", SlippageExceeded},
	{"min_output", SlippageExceeded},
	{"invalid account", InvalidAccount},
	{"account not found", InvalidAccount},
	{"honeypot", HoneypotDetected},
	{"frozen", TokenFrozen},
	{"simulation failed", SimulationFailed},
}

// Classify maps raw error text from the router or chain RPC to a Code.
// Unknown text defaults to ProgramError (non-retryable).
func Classify(errText string) Code {
	lower := strings.ToLower(errText)
	for _, p := range canonicalPatterns {
		if strings.Contains(lower, p.substr) {
			return p.code
		}
	}
	return ProgramError
}

// UserMessage translates a terminal code into the single user-visible
// notification text required by spec §7.
func UserMessage(code Code) string {
	switch code {
	case InsufficientFunds:
		return "Insufficient balance to complete this trade."
	case SlippageExceeded:
		return "Price moved beyond your slippage tolerance."
	case InvalidAccount:
		return "This token's account could not be resolved on-chain."
	case HoneypotDetected:
		return "This token was flagged as a likely honeypot and was not traded."
	case TokenFrozen:
		return "This token's transfers are frozen."
	case ProgramError:
		return "The trade failed on-chain. Please try again."
	case SimulationFailed:
		return "Transaction simulation failed before submission."
	case TokenBlacklisted:
		return "This token is blacklisted."
	case DeployerBlacklisted:
		return "This token's deployer is blacklisted."
	case BudgetExceeded:
		return "Trade would exceed your configured limits."
	case CooldownActive:
		return "This token or wallet is on cooldown."
	case TradingPaused:
		return "Trading is currently paused."
	case CircuitOpen:
		return "Trading is temporarily halted by a safety circuit breaker."
	default:
		return "The trade could not be completed."
	}
}
