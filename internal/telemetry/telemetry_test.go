package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
