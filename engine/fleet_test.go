package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/engine"
	"github.com/polarsignals/columnfort/scaling"
)

func TestFleetSpawnManualRegistersNewBackend(t *testing.T) {
	cfg := engine.NewConfig(engine.WithRegisterer(prometheus.NewRegistry()))
	f, err := engine.NewFleet("source", cfg)
	require.NoError(t, err)
	require.Equal(t, 1, f.LoadBalancer().Backends())

	newID, err := f.SpawnManual("source")
	require.NoError(t, err)

	_, ok := f.DB(newID)
	require.True(t, ok)
	require.Equal(t, 2, f.LoadBalancer().Backends())

	stats := f.Stats()
	require.Equal(t, int64(1), stats.TotalSpawns)
	require.Equal(t, scaling.Manual, stats.Events[0].Trigger)
}

// TestFleetRunSpawnsOnThresholdBreach drives the real control loop (via
// Fleet.Run, a thin wrapper over scaling.AutoScalingController.Run) with
// a check interval long enough for exactly one tick to land inside the
// test's context deadline, and confirms a row-count breach spawns a new
// backend (spec.md §8 S6, exercised end to end through Fleet rather than
// the controller directly).
func TestFleetRunSpawnsOnThresholdBreach(t *testing.T) {
	cfg := engine.NewConfig(
		engine.WithRegisterer(prometheus.NewRegistry()),
		engine.WithCheckInterval(30*time.Millisecond),
		engine.WithThresholds(scaling.Thresholds{MaxRowCount: 100, SpawnThresholdPercentage: 0.8}),
	)
	f, err := engine.NewFleet("source", cfg)
	require.NoError(t, err)
	f.Metrics().SetSize("source", 0, 85, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = f.Run(ctx)

	stats := f.Stats()
	require.GreaterOrEqual(t, stats.TotalSpawns, int64(1))
	require.Equal(t, scaling.RowCountThreshold, stats.Events[0].Trigger)
	require.GreaterOrEqual(t, f.LoadBalancer().Backends(), 2)
}
