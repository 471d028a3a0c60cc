// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/fd1az/chainprobe/internal/apperror"
)

// Chain backends.
const (
	BackendEthereum = "ethereum"
	BackendCKB      = "ckb"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Gossip    GossipConfig    `mapstructure:"gossip"`
	Report    ReportConfig    `mapstructure:"report"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	// Network names the observed network; every stored row carries it.
	Network string `mapstructure:"network"`
	TUIMode bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// ChainConfig holds the header stream and header source settings.
type ChainConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Backend      string        `mapstructure:"backend"`
	WebSocketURL string        `mapstructure:"websocket_url"`
	HTTPURL      string        `mapstructure:"http_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RPCTimeout   time.Duration `mapstructure:"rpc_timeout"`
	RPCRateLimit float64       `mapstructure:"rpc_rate_limit"` // requests per second, 0 = unlimited
	RPCBurst     int           `mapstructure:"rpc_burst"`
}

// GossipConfig holds the peer probe settings.
type GossipConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	ListenAddr           string        `mapstructure:"listen_addr"`
	MaxPeers             int           `mapstructure:"max_peers"`
	Bootnodes            []string      `mapstructure:"bootnodes"`
	StaticNodes          []string      `mapstructure:"static_nodes"`
	NodeKeyFile          string        `mapstructure:"node_key_file"`
	NoDiscovery          bool          `mapstructure:"no_discovery"`
	HighLatencyThreshold time.Duration `mapstructure:"high_latency_threshold"`
	Percentiles          []int         `mapstructure:"percentiles"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	CacheSize            int           `mapstructure:"cache_size"` // 0 = unbounded by count
}

// ReportConfig holds the metric sink settings.
type ReportConfig struct {
	BufferSize       int            `mapstructure:"buffer_size"`
	MaxWriteAttempts uint           `mapstructure:"max_write_attempts"`
	Console          bool           `mapstructure:"console"`
	Postgres         PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds the event store connection.
type PostgresConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	OTLPMetrics    bool   `mapstructure:"otlp_metrics"` // also push metrics to otlp_endpoint
	PrometheusPort int    `mapstructure:"prometheus_port"`
	TraceProvider  string `mapstructure:"trace_provider"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("CHAINPROBE")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "CHAINPROBE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "CHAINPROBE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "CHAINPROBE_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.network", "CHAINPROBE_NETWORK")

	// Chain
	v.BindEnv("chain.enabled", "CHAINPROBE_CHAIN_ENABLED")
	v.BindEnv("chain.backend", "CHAINPROBE_CHAIN_BACKEND")
	v.BindEnv("chain.websocket_url", "CHAINPROBE_CHAIN_WS_URL", "NODE_WS_URL")
	v.BindEnv("chain.http_url", "CHAINPROBE_CHAIN_HTTP_URL", "NODE_HTTP_URL")

	// Gossip
	v.BindEnv("gossip.enabled", "CHAINPROBE_GOSSIP_ENABLED")
	v.BindEnv("gossip.listen_addr", "CHAINPROBE_GOSSIP_LISTEN_ADDR")
	v.BindEnv("gossip.bootnodes", "CHAINPROBE_GOSSIP_BOOTNODES")
	v.BindEnv("gossip.node_key_file", "CHAINPROBE_GOSSIP_NODE_KEY")
	v.BindEnv("gossip.high_latency_threshold", "CHAINPROBE_HIGH_LATENCY_THRESHOLD")

	// Report
	v.BindEnv("report.postgres.enabled", "CHAINPROBE_POSTGRES_ENABLED")
	v.BindEnv("report.postgres.dsn", "CHAINPROBE_POSTGRES_DSN", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "CHAINPROBE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "CHAINPROBE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "CHAINPROBE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "chainprobe")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.network", "mainnet")

	// Chain defaults
	v.SetDefault("chain.enabled", true)
	v.SetDefault("chain.backend", BackendEthereum)
	v.SetDefault("chain.poll_interval", "2s")
	v.SetDefault("chain.rpc_timeout", "10s")
	v.SetDefault("chain.rpc_rate_limit", 20)
	v.SetDefault("chain.rpc_burst", 5)

	// Gossip defaults
	v.SetDefault("gossip.enabled", false)
	v.SetDefault("gossip.listen_addr", ":30399")
	v.SetDefault("gossip.max_peers", 128)
	v.SetDefault("gossip.no_discovery", false)
	v.SetDefault("gossip.high_latency_threshold", "8s")
	v.SetDefault("gossip.percentiles", []int{80, 95, 99})
	v.SetDefault("gossip.cache_ttl", "10m")
	v.SetDefault("gossip.cache_size", 0)

	// Report defaults
	v.SetDefault("report.buffer_size", 1024)
	v.SetDefault("report.max_write_attempts", 5)
	v.SetDefault("report.console", true)
	v.SetDefault("report.postgres.enabled", false)
	v.SetDefault("report.postgres.max_open_conns", 4)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chainprobe")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.otlp_metrics", false)

	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration and normalises the percentile set
// to descending order.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperror.New(apperror.CodeConfigInvalid, apperror.WithContextf(format, args...))
	}

	if c.App.Network == "" {
		return invalid("app.network is required")
	}

	if c.Chain.Enabled {
		switch c.Chain.Backend {
		case BackendEthereum:
			if c.Chain.WebSocketURL == "" && c.Chain.HTTPURL == "" {
				return invalid("chain.websocket_url or chain.http_url is required")
			}
		case BackendCKB:
			if c.Chain.WebSocketURL == "" || c.Chain.HTTPURL == "" {
				return invalid("chain.websocket_url and chain.http_url are required for ckb")
			}
		default:
			return invalid("unknown chain.backend %q", c.Chain.Backend)
		}
	}

	if c.Gossip.Enabled {
		if c.Gossip.HighLatencyThreshold <= 0 {
			return invalid("gossip.high_latency_threshold must be positive")
		}
		if len(c.Gossip.Percentiles) == 0 {
			return invalid("gossip.percentiles cannot be empty")
		}
		for _, p := range c.Gossip.Percentiles {
			if p <= 0 || p > 100 {
				return invalid("gossip.percentiles: %d is outside (0,100]", p)
			}
		}
		if c.Gossip.CacheTTL < 0 || c.Gossip.CacheSize < 0 {
			return invalid("gossip cache bounds cannot be negative")
		}
	}

	if !c.Chain.Enabled && !c.Gossip.Enabled {
		return invalid("at least one of chain.enabled or gossip.enabled must be set")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPMetrics && c.Telemetry.OTLPEndpoint == "" {
		return invalid("telemetry.otlp_endpoint is required when telemetry.otlp_metrics is set")
	}

	if c.Report.BufferSize <= 0 {
		return invalid("report.buffer_size must be positive")
	}
	if c.Report.MaxWriteAttempts == 0 {
		return invalid("report.max_write_attempts must be at least 1")
	}
	if c.Report.Postgres.Enabled && c.Report.Postgres.DSN == "" {
		return invalid("report.postgres.dsn is required when postgres is enabled")
	}

	slices.Sort(c.Gossip.Percentiles)
	slices.Reverse(c.Gossip.Percentiles)
	c.Gossip.Percentiles = slices.Compact(c.Gossip.Percentiles)

	return nil
}
