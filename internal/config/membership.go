package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MembershipConfig describes the paid tiers and the perks derived from them.
// It is operator-tunable without a redeploy: membership.yml is watched and
// hot-reloaded.
type MembershipConfig struct {
	Tiers           []TierConfig   `mapstructure:"tiers"`
	BillingPeriods  []BillingDays  `mapstructure:"billingPeriods"`
	HighlightLimits map[string]int `mapstructure:"highlightLimits"`
}

type TierConfig struct {
	Level int    `mapstructure:"level"`
	Code  string `mapstructure:"code"`
	Name  string `mapstructure:"name"`
}

type BillingDays struct {
	Period string `mapstructure:"period"`
	Days   int    `mapstructure:"days"`
}

func DefaultMembershipConfig() MembershipConfig {
	return MembershipConfig{
		Tiers: []TierConfig{
			{Level: 1, Code: "conecta", Name: "Conecta"},
			{Level: 2, Code: "destaca", Name: "Destaca"},
			{Level: 3, Code: "fundador", Name: "Fundador"},
		},
		BillingPeriods: []BillingDays{
			{Period: "monthly", Days: 30},
			{Period: "yearly", Days: 365},
		},
		HighlightLimits: map[string]int{
			"monthly": 1,
			"yearly":  2,
		},
	}
}

type MembershipConfigHolder struct {
	current atomic.Value // holds MembershipConfig
}

func NewMembershipConfigHolder() (*MembershipConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("membership")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/vitrina/config")
	v.AddConfigPath("/etc/vitrina")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VITRINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMembershipConfig()
		v.SetDefault("membership.tiers", defaults.Tiers)
		v.SetDefault("membership.billingPeriods", defaults.BillingPeriods)
		v.SetDefault("membership.highlightLimits", defaults.HighlightLimits)
	}

	var cfg MembershipConfig
	if err := v.UnmarshalKey("membership", &cfg); err != nil {
		return nil, err
	}
	if err := validateMembershipConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MembershipConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MembershipConfig
		if err := v.UnmarshalKey("membership", &updated); err != nil {
			log.Printf("[membership-config] reload failed: %v", err)
			return
		}
		if err := validateMembershipConfig(updated); err != nil {
			log.Printf("[membership-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[membership-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticMembershipConfigHolder wraps a fixed config without any file
// watching. Used by tests and tools that must not touch the filesystem.
func NewStaticMembershipConfigHolder(cfg MembershipConfig) *MembershipConfigHolder {
	holder := &MembershipConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *MembershipConfigHolder) Get() MembershipConfig {
	return h.current.Load().(MembershipConfig)
}

// HighlightLimit returns the concurrent highlight slots granted by a billing
// period, 0 when the period grants none.
func (c MembershipConfig) HighlightLimit(period string) int {
	return c.HighlightLimits[strings.ToLower(strings.TrimSpace(period))]
}

func validateMembershipConfig(cfg MembershipConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("membership.tiers cannot be empty")
	}
	if len(cfg.BillingPeriods) == 0 {
		return errors.New("membership.billingPeriods cannot be empty")
	}
	for _, bp := range cfg.BillingPeriods {
		if bp.Days <= 0 {
			return errors.New("membership.billingPeriods days must be positive")
		}
	}
	return nil
}
