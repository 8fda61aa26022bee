package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_EnabledReturnsProviderShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{
		Enabled:     true,
		ServiceName: "chronicrisk-test",
		Endpoint:    "127.0.0.1:4318",
		SampleRate:  0.5,
	}, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing was exported, so shutdown only fails on the cancelled context.
	_ = shutdown(ctx)
}
