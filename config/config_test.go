package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/icodeforyou/priceplan-go/logging"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9090
  request_timeout: 3s
storage:
  driver: SQLite
estimation:
  annualization_factor: 180
price_plans:
  - id: flat
    supplier: Flat Energy
    unit_rate: 0.25
  - id: peaky
    supplier: Peak Power
    unit_rate: 1
    peak_time_multipliers:
      - from: "17:00"
        to: "20:00"
        days: [mon, Tuesday]
        multiplier: 1.5
accounts:
  meter-a: peaky
logging:
  console_level: debug
  db_attrs_format: text
`)

	cnfg, err := Load(path)
	require.NoError(t, err)

	t.Run("scalars and defaults", func(t *testing.T) {
		assert.Equal(t, int16(9090), cnfg.Api.Port)
		assert.Equal(t, 3*time.Second, cnfg.Api.GetRequestTimeout())
		assert.Equal(t, DriverSQLite, cnfg.Storage.GetDriver())
		assert.Equal(t, "priceplan.db", cnfg.Storage.GetSQLitePath())
		assert.Equal(t, "priceplan:", cnfg.Storage.Redis.GetKeyPrefix())
		assert.Equal(t, 30, cnfg.Database.GetBackupRetentionDays())
		assert.Equal(t, "0 3 * * *", cnfg.Maintenance.GetRunAt())
		assert.Equal(t, slog.LevelDebug, cnfg.Logging.GetConsoleLevel())
		assert.Equal(t, slog.LevelInfo, cnfg.Logging.GetDbLevel())
		assert.Equal(t, logging.LogAttrFormatText, cnfg.Logging.GetDbAttrsFormat())
		assert.Equal(t, 10000, cnfg.Logging.GetDbMaxEntries())
	})

	t.Run("estimation options", func(t *testing.T) {
		opts, err := cnfg.Estimation.Options()
		require.NoError(t, err)
		assert.Equal(t, "180", opts.AnnualizationFactor.String())
		assert.Equal(t, int32(2), opts.CostDecimals)
		assert.False(t, opts.RequireRegisteredMeter)
	})

	t.Run("plans and accounts", func(t *testing.T) {
		plans, err := cnfg.BuildPricePlans()
		require.NoError(t, err)
		assert.Equal(t, []string{"flat", "peaky"}, plans.IDs())

		flat, err := plans.Lookup("flat")
		require.NoError(t, err)
		assert.Equal(t, "0.25", flat.UnitRate.String())
		assert.False(t, flat.TimeWeighted())

		peaky, err := plans.Lookup("peaky")
		require.NoError(t, err)
		require.True(t, peaky.TimeWeighted())
		m := peaky.PeakTimeMultipliers[0]
		assert.Equal(t, "17:00-20:00", m.Window.String())
		assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, m.Days)
		assert.Equal(t, "1.5", m.Multiplier.String())

		accounts, err := cnfg.BuildAccounts(plans)
		require.NoError(t, err)
		planID, ok := accounts.PlanFor("meter-a")
		assert.True(t, ok)
		assert.Equal(t, "peaky", planID)
		assert.False(t, accounts.Registered("smart-meter-0"))
	})
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("STORAGE_REDIS_ADDRESS", "cache:6379")

	cnfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cnfg.Storage.GetDriver())
	assert.Equal(t, "cache:6379", cnfg.Storage.Redis.Address)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cnfg := &AppConfig{}

	plans, err := cnfg.BuildPricePlans()
	require.NoError(t, err)
	assert.Equal(t, []string{"price-plan-0", "price-plan-1", "price-plan-2"}, plans.IDs())

	accounts, err := cnfg.BuildAccounts(plans)
	require.NoError(t, err)
	assert.Equal(t, 5, accounts.Len())
	planID, ok := accounts.PlanFor(types.MeterID("smart-meter-3"))
	assert.True(t, ok)
	assert.Equal(t, "price-plan-2", planID)

	opts, err := cnfg.Estimation.Options()
	require.NoError(t, err)
	assert.Equal(t, "8760", opts.AnnualizationFactor.String())
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cnfg AppConfig
		want error
	}{
		{
			name: "rate is not a number",
			cnfg: AppConfig{PricePlans: []AppConfigPricePlan{{ID: "x", UnitRate: "cheap"}}},
			want: pricing.ErrInvalidRate,
		},
		{
			name: "negative rate",
			cnfg: AppConfig{PricePlans: []AppConfigPricePlan{{ID: "x", UnitRate: "-1"}}},
			want: pricing.ErrInvalidRate,
		},
		{
			name: "negative multiplier",
			cnfg: AppConfig{PricePlans: []AppConfigPricePlan{{ID: "x", UnitRate: "1",
				PeakTimeMultipliers: []AppConfigPeakTimeMultiplier{{From: "00:00", To: "01:00", Multiplier: "-2"}}}}},
			want: pricing.ErrInvalidRate,
		},
		{
			name: "account references unknown plan",
			cnfg: AppConfig{Accounts: map[string]string{"m": "price-plan-9"}},
			want: pricing.ErrUnknownPlanReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans, err := tt.cnfg.BuildPricePlans()
			if err == nil {
				_, err = tt.cnfg.BuildAccounts(plans)
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := AppConfigPeakTimeMultiplier{From: "00:00", To: "01:00", Days: []string{"funday"}, Multiplier: "1"}.build()
	assert.ErrorContains(t, err, "funday")
}
