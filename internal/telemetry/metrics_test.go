package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	RetriesTotal.Inc()
	ScrapesTotal.WithLabelValues("complete").Inc()
	SetBuildInfo("v0.0.0-test")

	server := httptest.NewServer(MetricsHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, want := range []string{
		"guild_roster_range_requests_total",
		"guild_roster_members_discovered_total",
		"guild_roster_attempts_total",
		"guild_roster_retries_total",
		`guild_roster_scrapes_total{result="complete"}`,
		`guild_roster_build_info{version="v0.0.0-test"} 1`,
		"guild_roster_uptime_seconds",
	} {
		require.Contains(t, string(body), want)
	}
}

func TestRegistryIsConsistent(t *testing.T) {
	// every collector registered in init gathers without error
	n, err := testutil.GatherAndCount(Registry)
	require.NoError(t, err)
	require.Positive(t, n)
}
