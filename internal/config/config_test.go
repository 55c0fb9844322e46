package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("testnet", false)
	v.SetDefault("default_slippage", 0.01)
	v.SetDefault("log_level", "info")
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(baseViper())
	require.NoError(t, err)

	assert.False(t, cfg.Testnet)
	assert.True(t, cfg.DefaultSlippage.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestBuilderUnsetYieldsSystemDefault(t *testing.T) {
	cfg, err := FromViper(baseViper())
	require.NoError(t, err)

	require.NotNil(t, cfg.Builder)
	assert.Equal(t, DefaultBuilderAddress, cfg.Builder.Address)
	assert.Equal(t, DefaultBuilderFeeBps, cfg.Builder.FeeBps)
}

func TestBuilderNoneDisables(t *testing.T) {
	for _, disabled := range []interface{}{"none", "null", false} {
		v := baseViper()
		v.Set("builder", disabled)

		cfg, err := FromViper(v)
		require.NoError(t, err, "builder = %v", disabled)
		assert.Nil(t, cfg.Builder, "builder = %v", disabled)
	}
}

func TestBuilderCustomObject(t *testing.T) {
	v := baseViper()
	v.Set("builder", map[string]interface{}{"address": "0xabc", "fee_bps": 5})

	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.NotNil(t, cfg.Builder)
	assert.Equal(t, "0xabc", cfg.Builder.Address)
	assert.Equal(t, 5, cfg.Builder.FeeBps)
}

func TestBuilderFeeOutOfRangeFails(t *testing.T) {
	v := baseViper()
	v.Set("builder", map[string]interface{}{"address": "0xabc", "fee_bps": 11})

	_, err := FromViper(v)
	var cfgErr *types.InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Msg, "fee_bps")
}

func TestBuilderMissingAddressFails(t *testing.T) {
	v := baseViper()
	v.Set("builder", map[string]interface{}{"fee_bps": 2})

	_, err := FromViper(v)
	var cfgErr *types.InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSlippageOutOfRangeFails(t *testing.T) {
	for _, bad := range []float64{-0.01, 1.0, 2.5} {
		v := baseViper()
		v.Set("default_slippage", bad)

		_, err := FromViper(v)
		var cfgErr *types.InvalidConfigError
		require.ErrorAs(t, err, &cfgErr, "slippage %v", bad)
	}
}

func TestUnknownLogLevelFails(t *testing.T) {
	v := baseViper()
	v.Set("log_level", "verbose")

	_, err := FromViper(v)
	var cfgErr *types.InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
}
