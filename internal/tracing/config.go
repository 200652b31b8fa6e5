package tracing

// Config configures OpenTelemetry export. Tracing is enabled when an OTLP
// endpoint is set, directly or through OTEL_EXPORTER_OTLP_ENDPOINT.
type Config struct {
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" json:"protocol,omitempty" yaml:"protocol,omitempty"`
	ServiceName string  `mapstructure:"service_name" json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Insecure    bool    `mapstructure:"insecure" json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	// Propagate controls trace context on coordinator calls. Nil means on
	// whenever tracing is enabled.
	Propagate *bool `mapstructure:"propagate" json:"propagate,omitempty" yaml:"propagate,omitempty"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// ShouldPropagate reports whether trace context is injected into outgoing
// calls.
func (c Config) ShouldPropagate() bool {
	if c.Propagate != nil {
		return *c.Propagate
	}
	return c.Enabled()
}
