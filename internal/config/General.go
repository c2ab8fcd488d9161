package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/defiedge/rangevault/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultID is the ID of the vault this daemon instance will manage.
	VaultID uint64

	// Operator is the address allowed to rebalance and change configuration.
	Operator string
	// FeeRecipient receives claimed management and performance fee shares.
	FeeRecipient string

	// ManagementFeeRate and PerformanceFeeRate are ppm-10M (1e7 = 100%).
	ManagementFeeRate  int64
	PerformanceFeeRate int64

	// AllowedDeviationPrice and AllowedDeviationSwap are 18-decimal fractions.
	AllowedDeviationPrice sdkmath.LegacyDec
	AllowedDeviationSwap  sdkmath.LegacyDec

	// DepositCeiling bounds the vault's total value in normalized asset1
	// units. Zero means unlimited.
	DepositCeiling sdkmath.Int

	MaxRanges   int
	PrivacyMode bool

	// Asset0Symbol / Asset1Symbol name the pool pair; decimals are the
	// assets' native precision.
	Asset0Symbol   string
	Asset0Decimals int
	Asset1Symbol   string
	Asset1Decimals int

	// PriceSource selects "twap" or "feed" pricing for the pair.
	PriceSource string
	// TwapWindow is the trailing observation window for TWAP pricing.
	TwapWindow time.Duration
	// FeedHeartbeat is the maximum accepted feed answer age. Zero defers
	// to the registry default.
	FeedHeartbeat time.Duration

	// PoolID identifies the pool backing this vault.
	PoolID string
	// PoolStartTick seeds the simulated pool's initial tick.
	PoolStartTick int
	// SwapFeePercent is the router's taker fee as a fraction (0.003 = 30bps).
	SwapFeePercent float64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultID, err = getEnvAsUint64("VAULT_ID")
	if err != nil {
		return err
	}

	Operator, err = getEnv("VAULT_OPERATOR")
	if err != nil {
		return err
	}

	FeeRecipient, err = getEnv("VAULT_FEE_RECIPIENT")
	if err != nil {
		return err
	}

	ManagementFeeRate, err = getEnvAsInt64("VAULT_MANAGEMENT_FEE_RATE")
	if err != nil {
		return err
	}

	PerformanceFeeRate, err = getEnvAsInt64("VAULT_PERFORMANCE_FEE_RATE")
	if err != nil {
		return err
	}

	AllowedDeviationPrice, err = getEnvAsLegacyDec("VAULT_ALLOWED_DEVIATION_PRICE")
	if err != nil {
		return err
	}

	AllowedDeviationSwap, err = getEnvAsLegacyDec("VAULT_ALLOWED_DEVIATION_SWAP")
	if err != nil {
		return err
	}

	DepositCeiling, err = getEnvAsSDKInt("VAULT_DEPOSIT_CEILING")
	if err != nil {
		return err
	}

	MaxRanges, err = getEnvAsInt("VAULT_MAX_RANGES")
	if err != nil {
		return err
	}

	PrivacyMode, err = getEnvAsBool("VAULT_PRIVACY_MODE")
	if err != nil {
		return err
	}

	Asset0Symbol, err = getEnv("ASSET0_SYMBOL")
	if err != nil {
		return err
	}

	Asset0Decimals, err = getEnvAsInt("ASSET0_DECIMALS")
	if err != nil {
		return err
	}

	Asset1Symbol, err = getEnv("ASSET1_SYMBOL")
	if err != nil {
		return err
	}

	Asset1Decimals, err = getEnvAsInt("ASSET1_DECIMALS")
	if err != nil {
		return err
	}

	PriceSource, err = getEnv("PRICE_SOURCE")
	if err != nil {
		return err
	}

	twapSeconds, err := getEnvAsUint64("TWAP_WINDOW_SECONDS")
	if err != nil {
		return err
	}
	TwapWindow = time.Duration(twapSeconds) * time.Second

	heartbeatSeconds, err := getEnvAsUint64("FEED_HEARTBEAT_SECONDS")
	if err != nil {
		return err
	}
	FeedHeartbeat = time.Duration(heartbeatSeconds) * time.Second

	PoolID, err = getEnv("POOL_ID")
	if err != nil {
		return err
	}

	PoolStartTick, err = getEnvAsInt("POOL_START_TICK")
	if err != nil {
		return err
	}

	SwapFeePercent, err = getEnvAsFloat64("SWAP_FEE_PERCENT")
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("VaultID", VaultID).
		Str("Operator", Operator).
		Str("Pair", Asset0Symbol+"/"+Asset1Symbol).
		Str("PriceSource", PriceSource).
		Msg("Configuration loaded successfully.")

	return nil
}

// ManagerConfigFromEnv assembles the vault's manager configuration from the
// loaded globals. LoadConfig must have run first.
func ManagerConfigFromEnv() types.ManagerConfig {
	return types.ManagerConfig{
		Operator:              Operator,
		FeeRecipient:          FeeRecipient,
		ManagementFeeRate:     ManagementFeeRate,
		PerformanceFeeRate:    PerformanceFeeRate,
		DepositCeiling:        DepositCeiling,
		AllowedDeviationPrice: AllowedDeviationPrice,
		AllowedDeviationSwap:  AllowedDeviationSwap,
		MaxRanges:             MaxRanges,
		PrivacyMode:           PrivacyMode,
	}
}

// PairConfigFromEnv assembles the pair configuration from the loaded
// globals. LoadConfig must have run first.
func PairConfigFromEnv() types.PairConfig {
	return types.PairConfig{
		Asset0:     types.Asset{Symbol: Asset0Symbol, Decimals: Asset0Decimals},
		Asset1:     types.Asset{Symbol: Asset1Symbol, Decimals: Asset1Decimals},
		Source:     types.PriceSourceKind(PriceSource),
		Heartbeat:  FeedHeartbeat,
		TwapWindow: TwapWindow,
	}
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if not set or invalid.
func getEnvAsBool(key string) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsLegacyDec retrieves an environment variable as an 18-decimal fixed-point value.
func getEnvAsLegacyDec(key string) (sdkmath.LegacyDec, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	value, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil {
		return sdkmath.LegacyDec{}, errors.New("environment variable " + key + " must be a valid decimal, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsSDKInt retrieves an environment variable as an arbitrary-precision integer.
func getEnvAsSDKInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
