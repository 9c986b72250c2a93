package graph

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UnconfiguredFailsFast(t *testing.T) {
	client := NewClient(Settings{})

	_, err := client.Driver(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigMissing(err))
	assert.False(t, client.Connected())
}

func TestClient_FailedVerificationIsNotCached(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test that dials a closed port")
	}

	// Nothing listens on port 1; verification must fail
	client := NewClient(Settings{
		URI:            "bolt://127.0.0.1:1",
		User:           "neo4j",
		Password:       "password",
		ConnectTimeout: 500 * time.Millisecond,
	})

	for attempt := 0; attempt < 2; attempt++ {
		err := client.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeGraph))
		assert.False(t, client.Connected(), "a broken driver must not be cached")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client := NewClient(Settings{URI: "bolt://127.0.0.1:1"})
	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
}

func TestClient_ExecWithoutBackend(t *testing.T) {
	client := NewClient(Settings{})
	err := client.Exec(context.Background(), "RETURN 1", nil)
	assert.True(t, apperrors.IsConfigMissing(err))
}
