package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/perfgate/internal/journey"
	"github.com/wesleyorama2/perfgate/internal/loadgen"
	"github.com/wesleyorama2/perfgate/internal/loadgen/metrics"
)

func TestGateway_ServesJourney(t *testing.T) {
	srv := httptest.NewServer((&gateway{}).routes())
	defer srv.Close()

	j, err := journey.Lookup(journey.GatewayName)
	require.NoError(t, err)

	engine := metrics.NewEngine()
	s := loadgen.NewSession(1, srv.URL, srv.Client(), engine, 1)
	vu, err := loadgen.NewVirtualUser(1, j, s)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, vu.RunIteration(ctx))

	assert.Greater(t, engine.Snapshot().TotalRequests, int64(0))
	assert.Zero(t, engine.Snapshot().Failures)
}

func TestGateway_InjectsFailures(t *testing.T) {
	srv := httptest.NewServer((&gateway{errorRate: 1}).routes())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/product-service/api/products")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
