package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"namereg/internal/platform/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{ServiceName: "namereg"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
