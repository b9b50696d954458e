package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	assert.Equal(t, DefaultServiceName, nilCfg.GetServiceName())
	assert.Equal(t, "unknown", nilCfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, nilCfg.GetEndpoint())

	cfg := &Config{ServiceName: "scm-edge", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "scm-edge", cfg.GetServiceName())
	assert.Equal(t, "1.2.3", cfg.GetServiceVersion())
	assert.Equal(t, "otel:4318", cfg.GetEndpoint())

	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 0)
	assert.InDelta(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling(), 0)
	assert.Equal(t, DefaultMetricsInterval, (&MetricsConfig{}).GetInterval())
	assert.Equal(t, 10*time.Second, (&MetricsConfig{Interval: 10 * time.Second}).GetInterval())
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		wantTracing bool
		wantMetrics bool
	}{
		{name: "nil"},
		{
			name: "globally disabled",
			cfg:  &Config{Tracing: &TracingConfig{Enabled: true}, Metrics: &MetricsConfig{Enabled: true}},
		},
		{
			name: "no signal sections",
			cfg:  &Config{Enabled: true},
		},
		{
			name:        "tracing only",
			cfg:         &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true}, Metrics: &MetricsConfig{}},
			wantTracing: true,
		},
		{
			name:        "both",
			cfg:         &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true}, Metrics: &MetricsConfig{Enabled: true}},
			wantTracing: true,
			wantMetrics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantTracing, tt.cfg.tracingEnabled())
			assert.Equal(t, tt.wantMetrics, tt.cfg.metricsEnabled())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil"},
		{
			name: "disabled ignores bad values",
			cfg:  &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 7}},
		},
		{
			name: "valid",
			cfg: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1},
				Metrics: &MetricsConfig{Enabled: true, Interval: time.Second},
			},
		},
		{
			name:    "sampling above one",
			cfg:     &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			cfg:     &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}},
			wantErr: "tracing: sampling",
		},
		{
			name:    "negative interval",
			cfg:     &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Interval: -time.Second}},
			wantErr: "metrics: interval must not be negative",
		},
		{
			name: "disabled tracing section is not checked",
			cfg:  &Config{Enabled: true, Tracing: &TracingConfig{Sampling: 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
