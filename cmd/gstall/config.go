package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rawConfig is the merged configuration from defaults, file, environment and flags.
type rawConfig struct {
	HangTimeout    time.Duration `mapstructure:"hang-timeout"`
	LowTimeout     time.Duration `mapstructure:"low-timeout"`
	SampleInterval time.Duration `mapstructure:"sample-interval"`

	DailyDumpLimit int `mapstructure:"daily-dump-limit"`

	CPUInstantThreshold   float64 `mapstructure:"cpu-instant-threshold"`
	CPUSustainedThreshold float64 `mapstructure:"cpu-sustained-threshold"`
	CPUHighDump           bool    `mapstructure:"cpu-high-dump"`
	PowerConsumeStacks    bool    `mapstructure:"power-consume-stacks"`

	EnableProfile           bool `mapstructure:"enable-profile"`
	SuspendAllThreadsOnDump bool `mapstructure:"suspend-all-on-dump"`

	SensitiveLoopHang time.Duration `mapstructure:"sensitive-loop-hang"`
	MemoryThresholdMB uint64        `mapstructure:"memory-threshold-mb"`
	AuxPollInterval   time.Duration `mapstructure:"aux-poll-interval"`

	ReportDir string `mapstructure:"report-dir"`
	Compress  bool   `mapstructure:"compress"`

	// SQLite database path. Empty means an in-memory database.
	Store string `mapstructure:"store"`

	HTTPAddr string `mapstructure:"http-addr"`

	Color bool `mapstructure:"color"`
}

func setDefaults(v *viper.Viper) {
	d := gwatchdog.DefaultConfig()

	v.SetDefault("hang-timeout", d.HangTimeout)
	v.SetDefault("low-timeout", d.LowTimeout)
	v.SetDefault("sample-interval", d.SampleInterval)
	v.SetDefault("daily-dump-limit", d.DailyDumpLimit)
	v.SetDefault("cpu-instant-threshold", d.CPUInstantThreshold)
	v.SetDefault("cpu-sustained-threshold", d.CPUSustainedThreshold)
	v.SetDefault("cpu-high-dump", d.CPUHighDump)
	v.SetDefault("power-consume-stacks", d.PowerConsumeStacks)
	v.SetDefault("enable-profile", d.EnableProfile)
	v.SetDefault("suspend-all-on-dump", d.SuspendAllThreadsOnDump)
	v.SetDefault("sensitive-loop-hang", d.SensitiveLoopHang)
	v.SetDefault("memory-threshold-mb", d.MemoryThresholdMB)
	v.SetDefault("aux-poll-interval", d.AuxPollInterval)
	v.SetDefault("report-dir", "gstall-reports")
	v.SetDefault("compress", true)
	v.SetDefault("store", "")
	v.SetDefault("http-addr", "")
	v.SetDefault("color", true)
}

// loadConfig merges every configuration source for cmd.
func loadConfig(cmd *cobra.Command) (rawConfig, error) {
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return rawConfig{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".gstall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("GSTALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return rawConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var rc rawConfig
	if err := v.Unmarshal(&rc); err != nil {
		return rawConfig{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return rc, nil
}

// watchdogConfig returns the tunables of rc applied to the default config.
// Collaborators are left for the caller to set.
func (rc rawConfig) watchdogConfig() gwatchdog.Config {
	cfg := gwatchdog.DefaultConfig()

	cfg.HangTimeout = rc.HangTimeout
	cfg.LowTimeout = rc.LowTimeout
	cfg.SampleInterval = rc.SampleInterval
	cfg.DailyDumpLimit = rc.DailyDumpLimit
	cfg.CPUInstantThreshold = rc.CPUInstantThreshold
	cfg.CPUSustainedThreshold = rc.CPUSustainedThreshold
	cfg.CPUHighDump = rc.CPUHighDump
	cfg.PowerConsumeStacks = rc.PowerConsumeStacks
	cfg.EnableProfile = rc.EnableProfile
	cfg.SuspendAllThreadsOnDump = rc.SuspendAllThreadsOnDump
	cfg.SensitiveLoopHang = rc.SensitiveLoopHang
	cfg.MemoryThresholdMB = rc.MemoryThresholdMB
	cfg.AuxPollInterval = rc.AuxPollInterval

	return cfg
}

// rows returns rc as key/value pairs for display.
func (rc rawConfig) rows() [][]string {
	return [][]string{
		{"hang-timeout", rc.HangTimeout.String()},
		{"low-timeout", rc.LowTimeout.String()},
		{"sample-interval", rc.SampleInterval.String()},
		{"daily-dump-limit", fmt.Sprint(rc.DailyDumpLimit)},
		{"cpu-instant-threshold", fmt.Sprint(rc.CPUInstantThreshold)},
		{"cpu-sustained-threshold", fmt.Sprint(rc.CPUSustainedThreshold)},
		{"cpu-high-dump", fmt.Sprint(rc.CPUHighDump)},
		{"power-consume-stacks", fmt.Sprint(rc.PowerConsumeStacks)},
		{"enable-profile", fmt.Sprint(rc.EnableProfile)},
		{"suspend-all-on-dump", fmt.Sprint(rc.SuspendAllThreadsOnDump)},
		{"sensitive-loop-hang", rc.SensitiveLoopHang.String()},
		{"memory-threshold-mb", fmt.Sprint(rc.MemoryThresholdMB)},
		{"aux-poll-interval", rc.AuxPollInterval.String()},
		{"report-dir", rc.ReportDir},
		{"compress", fmt.Sprint(rc.Compress)},
		{"store", rc.Store},
		{"http-addr", rc.HTTPAddr},
		{"color", fmt.Sprint(rc.Color)},
	}
}
