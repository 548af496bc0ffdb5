package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/hours"
	"github.com/icodeforyou/priceplan-go/logging"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/spf13/viper"
)

type AppConfigApi struct {
	Address string
	Port    int16
	// Max duration of a single request, default: 10s
	RequestTimeout *time.Duration `mapstructure:"request_timeout"`
}

func (a AppConfigApi) GetRequestTimeout() time.Duration {
	if a.RequestTimeout == nil {
		return 10 * time.Second
	}
	return *a.RequestTimeout
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type AppConfigStorage struct {
	// Where readings are kept: "memory", "sqlite", "redis", default: "memory"
	Driver     *string
	Redis      AppConfigRedis
	SQLitePath *string `mapstructure:"sqlite_path"`
}

func (s AppConfigStorage) GetDriver() string {
	if s.Driver == nil || *s.Driver == "" {
		return DriverMemory
	}
	return strings.ToLower(*s.Driver)
}

func (s AppConfigStorage) GetSQLitePath() string {
	if s.SQLitePath == nil {
		return "priceplan.db"
	}
	return *s.SQLitePath
}

type AppConfigRedis struct {
	Address   string
	Password  string
	DB        int     `mapstructure:"db"`
	KeyPrefix *string `mapstructure:"key_prefix"`
}

func (r AppConfigRedis) GetKeyPrefix() string {
	if r.KeyPrefix == nil {
		return "priceplan:"
	}
	return *r.KeyPrefix
}

type AppConfigDatabase struct {
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 30
	}
	return *d.BackupRetentionDays
}

type AppConfigEstimation struct {
	// Usage time units per year, default: 8760 (hours)
	AnnualizationFactor *string `mapstructure:"annualization_factor"`
	// Decimal places of a cost, default: 2
	CostDecimals *int32 `mapstructure:"cost_decimals"`
	// Reject meters that have no account
	RequireRegisteredMeter bool `mapstructure:"require_registered_meter"`
}

// Options validates the estimation section, an unparsable factor is ErrInvalidRate.
func (e AppConfigEstimation) Options() (pricing.Options, error) {
	opts := pricing.DefaultOptions()
	if e.AnnualizationFactor != nil {
		factor, err := decimal.New(*e.AnnualizationFactor)
		if err != nil {
			return opts, fmt.Errorf("annualization factor %q: %w", *e.AnnualizationFactor, pricing.ErrInvalidRate)
		}
		opts.AnnualizationFactor = factor
	}
	if e.CostDecimals != nil {
		opts.CostDecimals = *e.CostDecimals
	}
	opts.RequireRegisteredMeter = e.RequireRegisteredMeter
	return opts, nil
}

type AppConfigPeakTimeMultiplier struct {
	From       string   // "HH:MM" UTC, inclusive
	To         string   // "HH:MM" UTC, exclusive
	Days       []string // weekday names, empty means every day
	Multiplier string
}

type AppConfigPricePlan struct {
	ID                  string `mapstructure:"id"`
	Supplier            string
	UnitRate            string                        `mapstructure:"unit_rate"`
	PeakTimeMultipliers []AppConfigPeakTimeMultiplier `mapstructure:"peak_time_multipliers"`
}

type AppConfigMaintenance struct {
	// Cron spec for backups and purging, default: "0 3 * * *"
	RunAt *string `mapstructure:"run_at"`
	// Cron spec for the store summary, default: "@every 15m"
	SummaryAt *string `mapstructure:"summary_at"`
}

func (m AppConfigMaintenance) GetRunAt() string {
	if m.RunAt == nil {
		return "0 3 * * *"
	}
	return *m.RunAt
}

func (m AppConfigMaintenance) GetSummaryAt() string {
	if m.SummaryAt == nil {
		return "@every 15m"
	}
	return *m.SummaryAt
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for database console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return logging.LogAttrFormatJSON
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Api         AppConfigApi
	Storage     AppConfigStorage
	Database    AppConfigDatabase
	Estimation  AppConfigEstimation  `mapstructure:"estimation"`
	PricePlans  []AppConfigPricePlan `mapstructure:"price_plans"`
	Accounts    map[string]string    `mapstructure:"accounts"` // keys are lower cased by viper
	Maintenance AppConfigMaintenance `mapstructure:"maintenance"`
	Logging     AppConfigLogging     `mapstructure:"logging"`

	v *viper.Viper
}

// Keys that can be given through the environment without being present in
// the config file, e.g. STORAGE_DRIVER=redis.
var envKeys = []string{
	"api.address",
	"api.port",
	"api.request_timeout",
	"storage.driver",
	"storage.sqlite_path",
	"storage.redis.address",
	"storage.redis.password",
	"storage.redis.db",
	"storage.redis.key_prefix",
	"estimation.annualization_factor",
	"estimation.require_registered_meter",
	"logging.console_level",
	"logging.db_level",
}

// Load reads the config file at path. Without a path "config/config.yaml" is
// used when present, otherwise only defaults and the environment apply.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	v.SetDefault("api.address", "")
	v.SetDefault("api.port", 8080)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshal(v *viper.Viper) (*AppConfig, error) {
	var c AppConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}
	c.v = v
	return &c, nil
}

// Watch calls onChange with a freshly read config each time the config file
// is written. Callers only apply what is safe to change at runtime.
func (c *AppConfig) Watch(logger *slog.Logger, onChange func(*AppConfig)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := unmarshal(c.v)
		if err != nil {
			logger.Warn("ignoring config change", slog.String("file", e.Name), slog.Any("error", err))
			return
		}
		logger.Info("config file changed", slog.String("file", e.Name))
		onChange(next)
	})
	c.v.WatchConfig()
}

// DefaultPricePlans are used when the config has no price_plans section.
var DefaultPricePlans = []AppConfigPricePlan{
	{ID: "price-plan-0", Supplier: "Dr Evil's Dark Energy", UnitRate: "10"},
	{ID: "price-plan-1", Supplier: "The Green Eco", UnitRate: "2"},
	{ID: "price-plan-2", Supplier: "Power for Everyone", UnitRate: "1"},
}

// DefaultAccounts are used when the config has no accounts section.
var DefaultAccounts = map[string]string{
	"smart-meter-0": "price-plan-0", // Sarah
	"smart-meter-1": "price-plan-1", // Peter
	"smart-meter-2": "price-plan-0", // Charlie
	"smart-meter-3": "price-plan-2", // Andrea
	"smart-meter-4": "price-plan-1", // Alex
}

// BuildPricePlans validates the configured plans. Rates that are not numbers
// fail with pricing.ErrInvalidRate.
func (c *AppConfig) BuildPricePlans() (*pricing.Plans, error) {
	src := c.PricePlans
	if len(src) == 0 {
		src = DefaultPricePlans
	}

	plans := make([]pricing.PricePlan, 0, len(src))
	for _, p := range src {
		rate, err := decimal.New(p.UnitRate)
		if err != nil {
			return nil, fmt.Errorf("plan %q unit rate %q: %w", p.ID, p.UnitRate, pricing.ErrInvalidRate)
		}
		multipliers := make([]pricing.PeakTimeMultiplier, 0, len(p.PeakTimeMultipliers))
		for _, m := range p.PeakTimeMultipliers {
			ptm, err := m.build()
			if err != nil {
				return nil, fmt.Errorf("plan %q: %w", p.ID, err)
			}
			multipliers = append(multipliers, ptm)
		}
		plan, err := pricing.NewPricePlan(p.ID, p.Supplier, rate, multipliers...)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return pricing.NewPlans(plans...)
}

// BuildAccounts validates the meter to plan mapping against plans.
func (c *AppConfig) BuildAccounts(plans *pricing.Plans) (*pricing.Accounts, error) {
	src := c.Accounts
	if src == nil {
		src = DefaultAccounts
	}
	current := make(map[types.MeterID]string, len(src))
	for meter, planID := range src {
		current[types.MeterID(meter)] = planID
	}
	return pricing.NewAccounts(plans, current)
}

func (m AppConfigPeakTimeMultiplier) build() (pricing.PeakTimeMultiplier, error) {
	window, err := hours.ParseRange(m.From, m.To)
	if err != nil {
		return pricing.PeakTimeMultiplier{}, fmt.Errorf("peak time window: %w", err)
	}
	multiplier, err := decimal.New(m.Multiplier)
	if err != nil {
		return pricing.PeakTimeMultiplier{}, fmt.Errorf("peak time multiplier %q: %w", m.Multiplier, pricing.ErrInvalidRate)
	}
	days := make([]time.Weekday, 0, len(m.Days))
	for _, name := range m.Days {
		d, err := parseWeekday(name)
		if err != nil {
			return pricing.PeakTimeMultiplier{}, err
		}
		days = append(days, d)
	}
	return pricing.PeakTimeMultiplier{Window: window, Days: days, Multiplier: multiplier}, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
