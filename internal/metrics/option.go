package metrics

// Exporter selects how instruments leave the process.
type Exporter string

const (
	// PrometheusExporter exposes instruments for scraping on /metrics.
	PrometheusExporter Exporter = "prometheus"
	// OTLPExporter pushes instruments to a collector over gRPC.
	OTLPExporter Exporter = "otlp"
)

// ExporterCfg configures one reader of the meter provider.
type ExporterCfg struct {
	Exporter Exporter
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Collector returns an OTLP exporter config for endpoint.
func Collector(endpoint string, insecure bool) ExporterCfg {
	return ExporterCfg{Exporter: OTLPExporter, Endpoint: endpoint, Insecure: insecure}
}

// Config holds meter provider settings.
type Config struct {
	ServiceName string
	Exporters   []ExporterCfg
}

// Option configures the meter provider.
type Option func(*Config)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithExporter adds a reader. Without any the provider pushes to the
// OTLP endpoint named by the environment.
func WithExporter(e ExporterCfg) Option {
	return func(c *Config) {
		c.Exporters = append(c.Exporters, e)
	}
}

type serverConfig struct {
	port string
}

// ServerOption configures the Prometheus scrape server.
type ServerOption func(*serverConfig)

// WithPort sets the scrape port.
func WithPort(port string) ServerOption {
	return func(c *serverConfig) {
		c.port = port
	}
}
