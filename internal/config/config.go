// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/snowball-dex/launchpad/internal/curve"
	"github.com/snowball-dex/launchpad/internal/factory"
	"github.com/snowball-dex/launchpad/internal/pool"
)

// Config is the daemon's file configuration. Amount fields are decimal
// strings so values above uint64 survive the trip through viper.
type Config struct {
	Owner    string `mapstructure:"owner"`
	Treasury string `mapstructure:"treasury"`

	PlatformFeeBP   uint64 `mapstructure:"platform_fee_bp"`
	CreatorFeeBP    uint64 `mapstructure:"creator_fee_bp"`
	GraduationFeeBP uint64 `mapstructure:"graduation_fee_bp"`

	CreationFee         string `mapstructure:"creation_fee"`
	GraduationThreshold string `mapstructure:"graduation_threshold"`
	MaxTxValue          string `mapstructure:"max_tx_value"`

	BasePrice string `mapstructure:"base_price"`
	Slope     string `mapstructure:"slope"`

	TotalSupply        string `mapstructure:"total_supply"`
	TokensOnCurve      string `mapstructure:"tokens_on_curve"`
	TokensForLiquidity string `mapstructure:"tokens_for_liquidity"`
	TokenDecimals      uint8  `mapstructure:"token_decimals"`

	MinBuybackThreshold string `mapstructure:"min_buyback_threshold"`
	BuybackFloor        string `mapstructure:"buyback_floor"`
	BuybackCeiling      string `mapstructure:"buyback_ceiling"`

	KeeperIntervalMS int `mapstructure:"keeper_interval_ms"`
	KeeperBatchSize  int `mapstructure:"keeper_batch_size"`
	KeeperRetries    int `mapstructure:"keeper_retries"`

	BlockTimeMS int `mapstructure:"block_time_ms"`

	JournalPath  string `mapstructure:"journal_path"`
	LogFile      string `mapstructure:"log_file"`
	DebugLogging bool   `mapstructure:"debug_logging"`
}

const (
	DefaultPlatformFeeBP   = 100
	DefaultCreatorFeeBP    = 50
	DefaultGraduationFeeBP = 300

	DefaultKeeperIntervalMS = 5000
	DefaultKeeperBatchSize  = 25
	DefaultKeeperRetries    = 3
	DefaultBlockTimeMS      = 400

	DefaultJournalPath = "launchpad.db"
	DefaultLogFile     = "launchpad.log"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"platform_fee_bp":       DefaultPlatformFeeBP,
		"creator_fee_bp":        DefaultCreatorFeeBP,
		"graduation_fee_bp":     DefaultGraduationFeeBP,
		"creation_fee":          "1000000",
		"graduation_threshold":  "85000000000",
		"max_tx_value":          "1000000000",
		"base_price":            "1000",
		"slope":                 "0",
		"total_supply":          "1000000000000000",
		"tokens_on_curve":       "800000000000000",
		"tokens_for_liquidity":  "200000000000000",
		"token_decimals":        6,
		"min_buyback_threshold": "100000",
		"buyback_floor":         "10000",
		"buyback_ceiling":       "10000000000",
		"keeper_interval_ms":    DefaultKeeperIntervalMS,
		"keeper_batch_size":     DefaultKeeperBatchSize,
		"keeper_retries":        DefaultKeeperRetries,
		"block_time_ms":         DefaultBlockTimeMS,
		"journal_path":          DefaultJournalPath,
		"log_file":              DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if !common.IsHexAddress(cfg.Owner) {
		return errors.New("owner must be a hex address")
	}
	if !common.IsHexAddress(cfg.Treasury) {
		return errors.New("treasury must be a hex address")
	}
	if cfg.PlatformFeeBP+cfg.CreatorFeeBP >= 10_000 {
		return errors.New("platform and creator fees must stay under 100%")
	}
	if cfg.GraduationFeeBP >= 10_000 {
		return errors.New("invalid graduation_fee_bp")
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}

	// The full defaults go through the same validation the factory applies,
	// so a bad file fails at startup instead of on the first launch.
	defaults, err := cfg.FactoryDefaults()
	if err != nil {
		return err
	}
	if err := defaults.Pool.Validate(); err != nil {
		return fmt.Errorf("pool defaults: %w", err)
	}

	minT, floor, ceiling, err := cfg.BuybackBounds()
	if err != nil {
		return err
	}
	if floor.Gt(ceiling) || minT.Lt(floor) || minT.Gt(ceiling) {
		return errors.New("min_buyback_threshold outside [buyback_floor, buyback_ceiling]")
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.KeeperIntervalMS <= 0 {
		return errors.New("invalid keeper_interval_ms")
	}
	if cfg.KeeperBatchSize <= 0 {
		return errors.New("invalid keeper_batch_size")
	}
	if cfg.KeeperRetries < 0 {
		return errors.New("invalid keeper_retries")
	}
	if cfg.BlockTimeMS <= 0 {
		return errors.New("invalid block_time_ms")
	}
	if cfg.TokenDecimals > 18 {
		return errors.New("invalid token_decimals")
	}
	if cfg.JournalPath == "" {
		return errors.New("journal_path is empty")
	}
	return nil
}

// FactoryDefaults assembles the validated launch parameters for new pools.
func (cfg *Config) FactoryDefaults() (factory.Defaults, error) {
	basePrice, err := amount("base_price", cfg.BasePrice)
	if err != nil {
		return factory.Defaults{}, err
	}
	slope, err := amount("slope", cfg.Slope)
	if err != nil {
		return factory.Defaults{}, err
	}
	threshold, err := amount("graduation_threshold", cfg.GraduationThreshold)
	if err != nil {
		return factory.Defaults{}, err
	}
	maxTx, err := amount("max_tx_value", cfg.MaxTxValue)
	if err != nil {
		return factory.Defaults{}, err
	}
	totalSupply, err := amount("total_supply", cfg.TotalSupply)
	if err != nil {
		return factory.Defaults{}, err
	}
	onCurve, err := amount("tokens_on_curve", cfg.TokensOnCurve)
	if err != nil {
		return factory.Defaults{}, err
	}
	forLiquidity, err := amount("tokens_for_liquidity", cfg.TokensForLiquidity)
	if err != nil {
		return factory.Defaults{}, err
	}
	return factory.Defaults{
		Pool: pool.Config{
			Curve: curve.Params{
				BasePrice: basePrice,
				Slope:     slope,
			},
			PlatformFeeBP:       cfg.PlatformFeeBP,
			CreatorFeeBP:        cfg.CreatorFeeBP,
			GraduationFeeBP:     cfg.GraduationFeeBP,
			GraduationThreshold: threshold,
			MaxTxValue:          maxTx,
			TokensOnCurve:       onCurve,
			TokensForLiquidity:  forLiquidity,
		},
		TotalSupply: totalSupply,
		Decimals:    cfg.TokenDecimals,
	}, nil
}

// CreationFeeAmount parses the creation fee.
func (cfg *Config) CreationFeeAmount() (*uint256.Int, error) {
	return amount("creation_fee", cfg.CreationFee)
}

// BuybackBounds parses the wrapper threshold and its admin range.
func (cfg *Config) BuybackBounds() (minThreshold, floor, ceiling *uint256.Int, err error) {
	if minThreshold, err = amount("min_buyback_threshold", cfg.MinBuybackThreshold); err != nil {
		return nil, nil, nil, err
	}
	if floor, err = amount("buyback_floor", cfg.BuybackFloor); err != nil {
		return nil, nil, nil, err
	}
	if ceiling, err = amount("buyback_ceiling", cfg.BuybackCeiling); err != nil {
		return nil, nil, nil, err
	}
	return minThreshold, floor, ceiling, nil
}

// OwnerAddress and TreasuryAddress are only valid after validateConfig.
func (cfg *Config) OwnerAddress() common.Address    { return common.HexToAddress(cfg.Owner) }
func (cfg *Config) TreasuryAddress() common.Address { return common.HexToAddress(cfg.Treasury) }

func amount(key, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if owner := v.GetString("OWNER"); owner != "" {
		cfg.Owner = owner
	}
	if treasury := v.GetString("TREASURY"); treasury != "" {
		cfg.Treasury = treasury
	}
	if journal := v.GetString("JOURNAL_PATH"); journal != "" {
		cfg.JournalPath = journal
	}
}
