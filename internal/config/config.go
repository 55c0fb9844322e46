package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// DefaultBuilderAddress receives the default builder fee when the
// caller does not configure a builder.
const DefaultBuilderAddress = "0x1924b8561eef20e70eca92ffc1cdcd7d3dad2ed2"

// DefaultBuilderFeeBps is the default builder fee in basis points.
const DefaultBuilderFeeBps = 1

// MaxBuilderFeeBps caps a configured builder fee.
const MaxBuilderFeeBps = 10

// Builder is the resolved builder-fee setting.
type Builder struct {
	Address string
	FeeBps  int
}

// Config is the resolved runtime configuration.
type Config struct {
	PrivateKey      string
	WalletAddress   string
	Testnet         bool
	DefaultSlippage decimal.Decimal
	LogLevel        string
	// Builder is nil when builder fees are disabled.
	Builder *Builder
}

// builderRaw captures the tri-state builder key: absent means default,
// explicit null means disabled, an object means custom.
type builderRaw struct {
	Address string `mapstructure:"address"`
	FeeBps  int    `mapstructure:"fee_bps"`
}

// Load reads configuration from the given file (optional), environment
// variables with the HYPERBROKER prefix, and defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HYPERBROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("testnet", false)
	v.SetDefault("default_slippage", 0.01)
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &types.InvalidConfigError{Msg: fmt.Sprintf("failed to read %s: %v", configFile, err)}
		}
	}

	return FromViper(v)
}

// FromViper resolves a Config from a populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	slippage := decimal.NewFromFloat(v.GetFloat64("default_slippage"))
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, &types.InvalidConfigError{Msg: fmt.Sprintf("default_slippage %s out of range [0,1)", slippage)}
	}

	level := strings.ToLower(v.GetString("log_level"))
	switch level {
	case "debug", "info", "warn", "error", "silent":
	default:
		return nil, &types.InvalidConfigError{Msg: fmt.Sprintf("unknown log_level %q", level)}
	}

	cfg := &Config{
		PrivateKey:      v.GetString("private_key"),
		WalletAddress:   v.GetString("wallet_address"),
		Testnet:         v.GetBool("testnet"),
		DefaultSlippage: slippage,
		LogLevel:        level,
	}

	builder, err := resolveBuilder(v)
	if err != nil {
		return nil, err
	}
	cfg.Builder = builder

	return cfg, nil
}

// resolveBuilder maps the tri-state builder key: unset -> system
// default, disabled (`none`, `false`, or an explicit null) -> nil,
// object -> validated custom. Viper cannot distinguish an explicit
// null from an absent key, so `none` and `false` are the reliable
// spellings for disabling.
func resolveBuilder(v *viper.Viper) (*Builder, error) {
	if !v.IsSet("builder") {
		return &Builder{Address: DefaultBuilderAddress, FeeBps: DefaultBuilderFeeBps}, nil
	}

	switch val := v.Get("builder").(type) {
	case nil:
		return nil, nil
	case bool:
		if !val {
			return nil, nil
		}
		return nil, &types.InvalidConfigError{Msg: "builder: true is not a valid setting"}
	case string:
		if strings.EqualFold(val, "none") || strings.EqualFold(val, "null") || val == "" {
			return nil, nil
		}
		return nil, &types.InvalidConfigError{Msg: fmt.Sprintf("unrecognized builder value %q", val)}
	}

	var raw builderRaw
	if err := v.UnmarshalKey("builder", &raw); err != nil {
		return nil, &types.InvalidConfigError{Msg: fmt.Sprintf("malformed builder: %v", err)}
	}
	if raw.Address == "" {
		return nil, &types.InvalidConfigError{Msg: "builder.address is required"}
	}
	if raw.FeeBps < 0 || raw.FeeBps > MaxBuilderFeeBps {
		return nil, &types.InvalidConfigError{
			Msg: fmt.Sprintf("builder.fee_bps %d out of range [0,%d]", raw.FeeBps, MaxBuilderFeeBps),
		}
	}
	return &Builder{Address: raw.Address, FeeBps: raw.FeeBps}, nil
}

// ConfigureLogging applies the configured level to the global logrus
// logger. silent routes everything to the void.
func (c *Config) ConfigureLogging() {
	switch c.LogLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "silent":
		logrus.SetLevel(logrus.PanicLevel)
		logrus.SetOutput(io.Discard)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
