// Package config loads runtime configuration from environment
// variables: the frozen risk parameter block, per-venue credentials,
// journal paths, and logging settings. There is no database and no
// HTTP server configuration here — the operator surface is a CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	DryRun              bool
	Risk                RiskConfig
	Venues              VenuesConfig
	Journal             JournalConfig
	Logging             LoggingConfig
	EncryptionKey       string
	CredentialCachePath string
}

// RiskConfig is the frozen risk parameter block, read once at startup.
type RiskConfig struct {
	MinEdgeNet                      float64
	SlippageBufferPerLeg            float64
	MaxLegDelayMs                   int64
	CooldownMsAfterFailure          int64
	CooldownMsAfterSuccess          int64
	MaxDailyLoss                    float64
	MaxNotional                     float64
	MaxQtyPerTrade                  float64
	BookDepthFraction               float64
	UnwindLadderSteps               int
	UnwindLadderStepSize            float64
	UnwindLadderStepTimeoutMs       int64
	UnwindMaxTotalTimeMs            int64
	MinVenueBalance                 float64
	NoNewPositionsCutoffMs          int64
	PreCloseUnwindMs                int64
	ReconcilerPostExecGracePeriodMs int64
}

// ClobCreds is the signed-header venue's credential set: an API key
// id and an RSA private key (PEM, PKCS#1 or PKCS#8).
type ClobCreds struct {
	APIKeyID       string
	PrivateKeyPath string
	WSURL          string
	RESTBaseURL    string
	SeriesTicker   string
}

// OnchainCreds is the onchain venue's credential set: a signer private
// key, the funder address, and L2-derived api-key/secret/passphrase.
type OnchainCreds struct {
	SignerPrivateKeyHex string
	FunderAddress       string
	ChainID             int64
	L2APIKey            string
	L2Secret            string
	L2Passphrase        string
	WSURL               string
	RESTBaseURL         string
}

// VenuesConfig bundles both venues' connection settings.
type VenuesConfig struct {
	Clob    ClobCreds
	Onchain OnchainCreds
}

// JournalConfig names the two append-only CSV files.
type JournalConfig struct {
	ExecutionsPath  string
	SettlementsPath string
}

// LoggingConfig controls the zap logger's verbosity and encoding.
type LoggingConfig struct {
	Level  string
	Format string
}

// EncryptionKey is read separately from the venue credential structs:
// it protects any at-rest copy of the venue secrets, not the secrets
// themselves, which are read straight from the environment/PEM files.
var errEncryptionKeyLength = fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")

// Load reads Config from the environment. Returns an error if live
// mode (DryRun=false) is requested without the clob venue's RSA key
// path or the onchain venue's signer key configured, or if
// ENCRYPTION_KEY is set but not exactly 32 bytes.
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvAsBool("DRY_RUN", true),
		Risk: RiskConfig{
			MinEdgeNet:                      getEnvAsFloat("RISK_MIN_EDGE_NET", 0.04),
			SlippageBufferPerLeg:            getEnvAsFloat("RISK_SLIPPAGE_BUFFER_PER_LEG", 0.005),
			MaxLegDelayMs:                   getEnvAsInt64("RISK_MAX_LEG_DELAY_MS", 500),
			CooldownMsAfterFailure:          getEnvAsInt64("RISK_COOLDOWN_MS_AFTER_FAILURE", 3000),
			CooldownMsAfterSuccess:          getEnvAsInt64("RISK_COOLDOWN_MS_AFTER_SUCCESS", 1000),
			MaxDailyLoss:                    getEnvAsFloat("RISK_MAX_DAILY_LOSS", 20),
			MaxNotional:                     getEnvAsFloat("RISK_MAX_NOTIONAL", 200),
			MaxQtyPerTrade:                  getEnvAsFloat("RISK_MAX_QTY_PER_TRADE", 25),
			BookDepthFraction:               getEnvAsFloat("RISK_BOOK_DEPTH_FRACTION", 0.80),
			UnwindLadderSteps:               getEnvAsInt("RISK_UNWIND_LADDER_STEPS", 3),
			UnwindLadderStepSize:            getEnvAsFloat("RISK_UNWIND_LADDER_STEP_SIZE", 0.01),
			UnwindLadderStepTimeoutMs:       getEnvAsInt64("RISK_UNWIND_LADDER_STEP_TIMEOUT_MS", 500),
			UnwindMaxTotalTimeMs:            getEnvAsInt64("RISK_UNWIND_MAX_TOTAL_TIME_MS", 3000),
			MinVenueBalance:                 getEnvAsFloat("RISK_MIN_VENUE_BALANCE", 10),
			NoNewPositionsCutoffMs:          getEnvAsInt64("RISK_NO_NEW_POSITIONS_CUTOFF_MS", 75000),
			PreCloseUnwindMs:                getEnvAsInt64("RISK_PRE_CLOSE_UNWIND_MS", 70000),
			ReconcilerPostExecGracePeriodMs: getEnvAsInt64("RISK_RECONCILER_POST_EXEC_GRACE_PERIOD_MS", 30000),
		},
		Venues: VenuesConfig{
			Clob: ClobCreds{
				APIKeyID:       getEnv("CLOB_API_KEY_ID", ""),
				PrivateKeyPath: getEnv("CLOB_PRIVATE_KEY_PATH", ""),
				WSURL:          getEnv("CLOB_WS_URL", "wss://api.clob.example/ws"),
				RESTBaseURL:    getEnv("CLOB_REST_BASE_URL", "https://api.clob.example"),
				SeriesTicker:   getEnv("CLOB_SERIES_TICKER", "KXBTCD"),
			},
			Onchain: OnchainCreds{
				SignerPrivateKeyHex: getEnv("ONCHAIN_SIGNER_PRIVATE_KEY", ""),
				FunderAddress:       getEnv("ONCHAIN_FUNDER_ADDRESS", ""),
				ChainID:             getEnvAsInt64("ONCHAIN_CHAIN_ID", 137),
				L2APIKey:            getEnv("ONCHAIN_L2_API_KEY", ""),
				L2Secret:            getEnv("ONCHAIN_L2_SECRET", ""),
				L2Passphrase:        getEnv("ONCHAIN_L2_PASSPHRASE", ""),
				WSURL:               getEnv("ONCHAIN_WS_URL", "wss://ws.onchain.example"),
				RESTBaseURL:         getEnv("ONCHAIN_REST_BASE_URL", "https://clob.onchain.example"),
			},
		},
		Journal: JournalConfig{
			ExecutionsPath:  getEnv("JOURNAL_EXECUTIONS_PATH", "executions.csv"),
			SettlementsPath: getEnv("JOURNAL_SETTLEMENTS_PATH", "settlements.csv"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		CredentialCachePath: getEnv("CREDENTIALS_CACHE_PATH", ""),
	}

	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		return nil, errEncryptionKeyLength
	}

	if cfg.EncryptionKey != "" && cfg.CredentialCachePath != "" {
		if err := LoadCachedCredentials(cfg.CredentialCachePath, []byte(cfg.EncryptionKey), &cfg.Venues); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load credential cache: %w", err)
		}
	}

	if !cfg.DryRun {
		if cfg.Venues.Clob.PrivateKeyPath == "" || cfg.Venues.Clob.APIKeyID == "" {
			return nil, fmt.Errorf("CLOB_PRIVATE_KEY_PATH and CLOB_API_KEY_ID are required in live mode")
		}
		if cfg.Venues.Onchain.SignerPrivateKeyHex == "" || cfg.Venues.Onchain.FunderAddress == "" {
			return nil, fmt.Errorf("ONCHAIN_SIGNER_PRIVATE_KEY and ONCHAIN_FUNDER_ADDRESS are required in live mode")
		}
	}

	if cfg.EncryptionKey != "" && cfg.CredentialCachePath != "" {
		if err := CacheCredentials(cfg.CredentialCachePath, []byte(cfg.EncryptionKey), cfg.Venues); err != nil {
			return nil, fmt.Errorf("cache credentials: %w", err)
		}
	}

	return cfg, nil
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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
