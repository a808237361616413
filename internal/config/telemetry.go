package config

import "os"

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// LoadTelemetryConfig reads the standard OTEL_* variables.
func LoadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName: envStr("OTEL_SERVICE_NAME", "baltyk-manager"),
		SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
	}
}
