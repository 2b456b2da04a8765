package providers

import (
	"context"
	"errors"
	"testing"

	"orcaflow/internal/util"

	"github.com/stretchr/testify/require"
)

func TestProbeModelsPicksHighestRankedAvailable(t *testing.T) {
	mock := NewMockProvider()
	mock.DownModels["gemini-1.5-flash-002"] = true

	res, err := ProbeModels(context.Background(), mock, []string{
		"gemini-1.5-pro",
		"gemini-1.5-flash-002",
		"gemini-1.5-flash-latest",
	})
	require.NoError(t, err)
	require.Equal(t, "gemini-1.5-flash-latest", res.BaseModel)
	// Probing stops at the first success, so the reserve pro model at the
	// tail of the ranking is never touched.
	require.Len(t, res.Attempts, 2)
	require.False(t, res.Attempts[0].OK)
	require.NotEmpty(t, res.Attempts[0].Error)
	require.True(t, res.Attempts[1].OK)
	for _, a := range res.Attempts {
		require.NotEqual(t, "gemini-1.5-pro", a.Model)
	}
}

func TestProbeModelsStopsAtFirstSuccess(t *testing.T) {
	mock := NewMockProvider()

	res, err := ProbeModels(context.Background(), mock, []string{
		"gemini-1.5-pro",
		"gemini-1.5-flash-002",
	})
	require.NoError(t, err)
	require.Equal(t, "gemini-1.5-flash-002", res.BaseModel)
	require.Len(t, res.Attempts, 1)
}

func TestProbeModelsAllDown(t *testing.T) {
	mock := NewMockProvider()
	mock.DownModels["a-flash-001"] = true
	mock.DownModels["b-pro"] = true

	_, err := ProbeModels(context.Background(), mock, []string{"a-flash-001", "b-pro"})
	require.Error(t, err)
	require.True(t, errors.Is(err, util.ErrModelUnavailable))
}
