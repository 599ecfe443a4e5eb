package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// OrdersPerHour caps how many orders one identity may place within an hour.
type OrdersPerHour struct {
	PerAccount              int64 `mapstructure:"perAccount"`
	PerAccountForCollective int64 `mapstructure:"perAccountForCollective"`
	PerEmail                int64 `mapstructure:"perEmail"`
	PerEmailForCollective   int64 `mapstructure:"perEmailForCollective"`
	PerIP                   int64 `mapstructure:"perIp"`
}

type GithubFlow struct {
	MinNbStars int `mapstructure:"minNbStars"`
}

// Limits are business tunables that can change without a restart.
type Limits struct {
	OrdersPerHour OrdersPerHour `mapstructure:"ordersPerHour"`
	GithubFlow    GithubFlow    `mapstructure:"githubFlow"`
}

func DefaultLimits() Limits {
	return Limits{
		OrdersPerHour: OrdersPerHour{
			PerAccount:              10,
			PerAccountForCollective: 5,
			PerEmail:                10,
			PerEmailForCollective:   5,
			PerIP:                   20,
		},
		GithubFlow: GithubFlow{MinNbStars: 100},
	}
}

type LimitsHolder struct {
	current atomic.Value // holds Limits
}

// NewStaticLimitsHolder returns a holder that never reloads.
func NewStaticLimitsHolder(l Limits) *LimitsHolder {
	holder := &LimitsHolder{}
	holder.current.Store(l)
	return holder
}

func NewLimitsHolder(cfg Config, log *zap.Logger) (*LimitsHolder, error) {
	log = log.Named("config.limits")
	v := viper.New()

	file := strings.TrimSpace(cfg.LimitsFile)
	if file == "" {
		file = "limits.yml"
	}
	v.SetConfigName(strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
	v.SetConfigType("yml")
	if dir := filepath.Dir(file); dir != "." {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/patronage")
	v.AddConfigPath(".")

	defaults := DefaultLimits()
	v.SetDefault("limits.ordersPerHour.perAccount", defaults.OrdersPerHour.PerAccount)
	v.SetDefault("limits.ordersPerHour.perAccountForCollective", defaults.OrdersPerHour.PerAccountForCollective)
	v.SetDefault("limits.ordersPerHour.perEmail", defaults.OrdersPerHour.PerEmail)
	v.SetDefault("limits.ordersPerHour.perEmailForCollective", defaults.OrdersPerHour.PerEmailForCollective)
	v.SetDefault("limits.ordersPerHour.perIp", defaults.OrdersPerHour.PerIP)
	v.SetDefault("limits.githubFlow.minNbStars", defaults.GithubFlow.MinNbStars)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	limits, err := unmarshalLimits(v)
	if err != nil {
		return nil, err
	}
	if err := validateLimits(limits); err != nil {
		return nil, err
	}

	holder := NewStaticLimitsHolder(limits)
	if !found {
		log.Info("limits file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalLimits(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateLimits(updated); err != nil {
			log.Warn("invalid limits ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("limits reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *LimitsHolder) Get() Limits {
	return h.current.Load().(Limits)
}

// unmarshalLimits decodes every setting so defaults fill keys a partial file omits.
func unmarshalLimits(v *viper.Viper) (Limits, error) {
	var file struct {
		Limits Limits `mapstructure:"limits"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return Limits{}, err
	}
	return file.Limits, nil
}

func validateLimits(l Limits) error {
	o := l.OrdersPerHour
	if o.PerAccount <= 0 || o.PerAccountForCollective <= 0 || o.PerEmail <= 0 || o.PerEmailForCollective <= 0 || o.PerIP <= 0 {
		return errors.New("limits.ordersPerHour values must be positive")
	}
	if l.GithubFlow.MinNbStars < 0 {
		return errors.New("limits.githubFlow.minNbStars cannot be negative")
	}
	return nil
}
