package pow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeUsesRemoteServiceWhenAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(computeResponse{Cres: "remote-suffix-0000"})
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	cres, err := c.Compute(context.Background(), "0", "key", 1)
	require.NoError(t, err)
	require.Equal(t, "remote-suffix-0000", cres)
	require.Equal(t, int64(1), c.Stats().RemoteHits)
}

func TestComputeCachesRepeatPuzzles(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(computeResponse{Cres: "cached-suffix-0000"})
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	ctx := context.Background()
	_, err := c.Compute(ctx, "0", "key", 1)
	require.NoError(t, err)
	_, err = c.Compute(ctx, "0", "key", 1)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, int64(1), c.Stats().CacheHits)
}

func TestComputeFallsBackToLocalSolveWhenRemoteFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	cres, err := c.Compute(context.Background(), "0", "key", 1)
	require.NoError(t, err)
	require.Len(t, cres, suffixLen)
	require.Equal(t, int64(1), c.Stats().LocalSolves)
}

func TestComputeRejectsOverlongMask(t *testing.T) {
	c := NewServiceClient("")
	_, err := c.Compute(context.Background(), "abcdef", "key", 1)
	require.ErrorIs(t, err, ErrMaskTooLong)
	require.Equal(t, int64(1), c.Stats().Failures)
}

func TestComputeDegradesToRandomCresOnTriviallyInvalidInput(t *testing.T) {
	c := NewServiceClient("")

	cres, err := c.Compute(context.Background(), "", "key", 1)
	require.NoError(t, err)
	require.Len(t, cres, suffixLen)

	cres, err = c.Compute(context.Background(), "0", "", 1)
	require.NoError(t, err)
	require.Len(t, cres, suffixLen)

	cres, err = c.Compute(context.Background(), "0", "key", 0)
	require.NoError(t, err)
	require.Len(t, cres, suffixLen)

	require.Equal(t, int64(3), c.Stats().RandomCres)
}
