package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Role identifies which entrypoint is loading the config; only a role's own
// required env vars are validated (spec §6 "Process configuration").
type Role string

const (
	RoleExecutor    Role = "executor"
	RoleMonitor     Role = "monitor"
	RoleConsumer    Role = "consumer"
	RoleNotifier    Role = "notifier"
	RoleMaintenance Role = "maintenance"
)

// Config is the full set of env-derived settings. Each cmd/ entrypoint loads
// one Config and only the sections relevant to its Role are validated.
type Config struct {
	Role       Role
	Env        string // "production", "development", "test"
	Chain      string // chain identifier stamped on every row this process touches, e.g. "solana"
	HealthAddr string // bind address for the /healthz, /readyz, /metrics surface
	Store      StoreConfig
	Security SecurityConfig
	RPC      ChainConfig
	Chat     ChatConfig
	Tunables Tunables
	Features Features
	Logging  LoggingConfig
}

// StoreConfig holds the relational store connection.
type StoreConfig struct {
	URL            string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxLife    time.Duration
	PrivilegedKey  string // credential used for server-side RPCs that bypass row-level policy
}

// SecurityConfig holds wallet key material handling.
type SecurityConfig struct {
	WalletEncryptionKey string // >= 32 chars, backs pkg/crypto AES-256-GCM
}

// ChainConfig holds the Solana RPC/WS endpoints (spec §6 "Chain RPC").
type ChainConfig struct {
	RPCURL            string // must be https://
	WSURL             string // must be wss://
	AggregatorBaseURL string // post-graduation swap aggregator HTTP endpoint
}

// ChatConfig holds the chat-surface credential (notifier role only).
type ChatConfig struct {
	BotToken string
}

// Tunables holds the clamped-range knobs from spec §6.
type Tunables struct {
	JobPollInterval       time.Duration
	JobClaimLimit         int
	JobLeaseSeconds       int
	NotificationPoll      time.Duration
	CandidatePoll         time.Duration
	CandidateBatch        int
	CandidateMaxAge       time.Duration
	MonitorPoll           time.Duration
	PriceCacheTTL         time.Duration
	PriceCacheMax         int
	ConfirmTimeout        time.Duration
	MaintenanceInterval   time.Duration
	CleanupThresholdMins  int
	ExitQueueHighWaterMark int
	ExitQueueLowWaterMark  int
	PerWalletConcurrency   int
}

// Features holds the feature flags from spec §6.
type Features struct {
	AutoExecuteEnabled     bool
	PositionMonitorEnabled bool
	CandidateConsumerEnabled bool
	GraduationMonitorEnabled bool
	SourceAdaptersEnabled    bool
}

// LoggingConfig controls zap wiring.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads and validates configuration for the given role.
func Load(role Role) (*Config, error) {
	cfg := &Config{
		Role:       role,
		Env:        getEnv("RAPTOR_ENV", "development"),
		Chain:      getEnv("CHAIN_NAME", "solana"),
		HealthAddr: getEnv("HEALTH_ADDR", ":9090"),
		Store: StoreConfig{
			URL:           getEnv("STORE_URL", ""),
			MaxOpenConns:  getEnvAsInt("STORE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("STORE_MAX_IDLE_CONNS", 5),
			ConnMaxLife:   getEnvAsDuration("STORE_CONN_MAX_LIFE", 5*time.Minute),
			PrivilegedKey: getEnv("STORE_PRIVILEGED_KEY", ""),
		},
		Security: SecurityConfig{
			WalletEncryptionKey: getEnv("WALLET_ENCRYPTION_KEY", ""),
		},
		RPC: ChainConfig{
			RPCURL:            getEnv("CHAIN_RPC_URL", ""),
			WSURL:             getEnv("CHAIN_WS_URL", ""),
			AggregatorBaseURL: getEnv("CHAIN_AGGREGATOR_URL", "https://quote-api.jup.ag/v6"),
		},
		Chat: ChatConfig{
			BotToken: getEnv("CHAT_BOT_TOKEN", ""),
		},
		Tunables: Tunables{
			JobPollInterval:        getEnvAsDuration("JOB_POLL_INTERVAL", 1500*time.Millisecond),
			JobClaimLimit:          clampInt(getEnvAsInt("JOB_CLAIM_LIMIT", 5), 1, 20),
			JobLeaseSeconds:        clampInt(getEnvAsInt("JOB_LEASE_SECONDS", 30), 10, 120),
			NotificationPoll:       getEnvAsDuration("NOTIFICATION_POLL_INTERVAL", 1500*time.Millisecond),
			CandidatePoll:          clampDuration(getEnvAsDuration("CANDIDATE_POLL_INTERVAL", 2*time.Second), time.Second, 10*time.Second),
			CandidateBatch:         clampInt(getEnvAsInt("CANDIDATE_BATCH_SIZE", 10), 1, 50),
			CandidateMaxAge:        clampDuration(getEnvAsDuration("CANDIDATE_MAX_AGE", 120*time.Second), 30*time.Second, 600*time.Second),
			MonitorPoll:            getEnvAsDuration("MONITOR_POLL_INTERVAL", 3*time.Second),
			PriceCacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Second),
			PriceCacheMax:          getEnvAsInt("PRICE_CACHE_MAX", 1000),
			ConfirmTimeout:         getEnvAsDuration("CONFIRM_TIMEOUT", 30*time.Second),
			MaintenanceInterval:    getEnvAsDuration("MAINTENANCE_INTERVAL", 60*time.Second),
			CleanupThresholdMins:   getEnvAsInt("CLEANUP_THRESHOLD_MINUTES", 5),
			ExitQueueHighWaterMark: getEnvAsInt("EXIT_QUEUE_HIGH_WATER_MARK", 200),
			ExitQueueLowWaterMark:  getEnvAsInt("EXIT_QUEUE_LOW_WATER_MARK", 50),
			PerWalletConcurrency:   getEnvAsInt("PER_WALLET_CONCURRENCY", 1),
		},
		Features: Features{
			AutoExecuteEnabled:       getEnvAsBool("FEATURE_AUTO_EXECUTE", true),
			PositionMonitorEnabled:   getEnvAsBool("FEATURE_POSITION_MONITOR", true),
			CandidateConsumerEnabled: getEnvAsBool("FEATURE_CANDIDATE_CONSUMER", true),
			GraduationMonitorEnabled: getEnvAsBool("FEATURE_GRADUATION_MONITOR", true),
			SourceAdaptersEnabled:    getEnvAsBool("FEATURE_SOURCE_ADAPTERS", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if c.Store.PrivilegedKey == "" {
		return fmt.Errorf("STORE_PRIVILEGED_KEY is required")
	}
	if len(c.Security.WalletEncryptionKey) < 32 {
		return fmt.Errorf("WALLET_ENCRYPTION_KEY must be at least 32 chars")
	}
	if c.RPC.RPCURL == "" || !strings.HasPrefix(c.RPC.RPCURL, "https://") {
		return fmt.Errorf("CHAIN_RPC_URL must be set and start with https://")
	}
	if c.RPC.WSURL == "" || !strings.HasPrefix(c.RPC.WSURL, "wss://") {
		return fmt.Errorf("CHAIN_WS_URL must be set and start with wss://")
	}
	if c.Role == RoleNotifier && c.Chat.BotToken == "" {
		return fmt.Errorf("CHAT_BOT_TOKEN is required for the notifier role")
	}
	if c.Env == "production" {
		lower := strings.ToLower(c.RPC.RPCURL)
		for _, dev := range []string{"devnet", "testnet", "localhost", "127.0.0.1"} {
			if strings.Contains(lower, dev) {
				return fmt.Errorf("production env must not use a dev/test RPC endpoint, got %q", c.RPC.RPCURL)
			}
		}
	}
	return nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
