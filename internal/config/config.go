// Package config resolves Loom's process configuration from built-in
// defaults, an optional TOML file, and environment variables, in
// increasing precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config holds every environment-overridable setting Loom's server reads
// at startup.
type Config struct {
	ProjectID  string `mapstructure:"project_id"`
	Location   string `mapstructure:"location"`
	ServerPort int    `mapstructure:"server_port"`

	HavenAddress string `mapstructure:"haven_address"`
	HavenAuthKey string `mapstructure:"haven_auth_key"`

	AbsoluteMaxIterations int `mapstructure:"absolute_max_iterations_reasoning_loop"`
	NominalMaxIterations  int `mapstructure:"nominal_max_iterations_reasoning_loop"`
	SegmentThreshold      int `mapstructure:"segment_threshold"`

	DebugMode bool `mapstructure:"debug_mode"`

	SandboxDir string `mapstructure:"sandbox_dir"`
	StoreDir   string `mapstructure:"store_dir"`

	ModelHostTimeout time.Duration `mapstructure:"model_host_timeout"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ServerPort:            5001,
		AbsoluteMaxIterations: 10,
		NominalMaxIterations:  3,
		SegmentThreshold:      20,
		DebugMode:             false,
		SandboxDir:            "./sandbox",
		StoreDir:              "./chroma_db",
		ModelHostTimeout:      120 * time.Second,
	}
}

// Load resolves configuration from (in increasing precedence): built-in
// defaults, an optional TOML file at configPath, then environment
// variables (PROJECT_ID, HAVEN_ADDRESS, SERVER_PORT, ...).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindDefaults(v, cfg)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("loom: read config %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("loom: unmarshal config: %w", err)
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server_port", cfg.ServerPort)
	v.SetDefault("absolute_max_iterations_reasoning_loop", cfg.AbsoluteMaxIterations)
	v.SetDefault("nominal_max_iterations_reasoning_loop", cfg.NominalMaxIterations)
	v.SetDefault("segment_threshold", cfg.SegmentThreshold)
	v.SetDefault("debug_mode", cfg.DebugMode)
	v.SetDefault("sandbox_dir", cfg.SandboxDir)
	v.SetDefault("store_dir", cfg.StoreDir)
	v.SetDefault("model_host_timeout", cfg.ModelHostTimeout)
}

func bindEnv(v *viper.Viper) {
	for key, env := range map[string]string{
		"project_id":                              "PROJECT_ID",
		"location":                                "LOCATION",
		"server_port":                              "SERVER_PORT",
		"haven_address":                            "HAVEN_ADDRESS",
		"haven_auth_key":                           "HAVEN_AUTH_KEY",
		"absolute_max_iterations_reasoning_loop":   "ABSOLUTE_MAX_ITERATIONS_REASONING_LOOP",
		"nominal_max_iterations_reasoning_loop":    "NOMINAL_MAX_ITERATIONS_REASONING_LOOP",
		"segment_threshold":                        "SEGMENT_THRESHOLD",
		"debug_mode":                               "DEBUG_MODE",
	} {
		_ = v.BindEnv(key, env)
	}
}

// MarshalTOML renders the config as TOML.
func MarshalTOML(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
