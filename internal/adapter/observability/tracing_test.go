package observability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/prompt-evaluator/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{})
	require.NoError(t, err)
	require.Nil(t, shutdown)
}
