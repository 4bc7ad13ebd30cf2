package scaling

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	created []DatabaseID
}

func (f *fakeManager) CreateDatabase(id DatabaseID) error {
	f.created = append(f.created, id)
	return nil
}

// TestControllerSpawnTriggerScenario is the literal scenario: max_row_count=100,
// spawn_threshold_percentage=0.8, row_count=85 → exactly one SpawnEvent with
// trigger RowCountThreshold, and the load balancer reports two backends.
func TestControllerSpawnTriggerScenario(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricCollector(reg)
	metrics.Register("source")
	metrics.SetSize("source", 0, 85, 1)

	lb := NewLoadBalancer(LeastConnections)
	lb.Register("source")

	mgr := &fakeManager{}
	thresholds := Thresholds{MaxRowCount: 100, SpawnThresholdPercentage: 0.8}
	ctrl := NewController(metrics, mgr, lb, thresholds)

	ctrl.tick(time.Now())

	stats := ctrl.Stats()
	require.Equal(t, int64(1), stats.TotalSpawns)
	require.Len(t, stats.Events, 1)
	require.Equal(t, RowCountThreshold, stats.Events[0].Trigger)
	require.Equal(t, DatabaseID("source"), stats.Events[0].Source)
	require.Equal(t, 2, lb.Backends())
}

func TestControllerNoTriggerBelowThreshold(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricCollector(reg)
	metrics.Register("source")
	metrics.SetSize("source", 0, 50, 1)

	lb := NewLoadBalancer(LeastConnections)
	lb.Register("source")

	mgr := &fakeManager{}
	thresholds := Thresholds{MaxRowCount: 100, SpawnThresholdPercentage: 0.8}
	ctrl := NewController(metrics, mgr, lb, thresholds)

	ctrl.tick(time.Now())

	require.Equal(t, int64(0), ctrl.Stats().TotalSpawns)
	require.Equal(t, 1, lb.Backends())
}

func TestControllerAtMostOneSpawnPerIterationPerSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricCollector(reg)
	metrics.Register("source")
	metrics.SetSize("source", 0, 1000, 1)

	lb := NewLoadBalancer(LeastConnections)
	lb.Register("source")

	mgr := &fakeManager{}
	thresholds := Thresholds{MaxRowCount: 100, SpawnThresholdPercentage: 0.8}
	ctrl := NewController(metrics, mgr, lb, thresholds)

	ctrl.tick(time.Now())
	require.Equal(t, int64(1), ctrl.Stats().TotalSpawns)
}

func TestControllerSpawnManualBypassesThresholds(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricCollector(reg)
	metrics.Register("source")
	metrics.SetSize("source", 0, 0, 0)

	lb := NewLoadBalancer(LeastConnections)
	lb.Register("source")

	mgr := &fakeManager{}
	ctrl := NewController(metrics, mgr, lb, Thresholds{MaxRowCount: 100})

	newID, err := ctrl.SpawnManual("source")
	require.NoError(t, err)
	require.NotEmpty(t, newID)

	stats := ctrl.Stats()
	require.Equal(t, int64(1), stats.TotalSpawns)
	require.Equal(t, Manual, stats.Events[0].Trigger)
}

// TestControllerMonotonicity is property 9: for a given metrics stream,
// increasing any threshold never increases spawn count.
func TestControllerMonotonicity(t *testing.T) {
	run := func(maxRowCount int64) int64 {
		reg := prometheus.NewRegistry()
		metrics := NewMetricCollector(reg)
		metrics.Register("source")
		metrics.SetSize("source", 0, 85, 1)

		lb := NewLoadBalancer(LeastConnections)
		lb.Register("source")

		mgr := &fakeManager{}
		ctrl := NewController(metrics, mgr, lb, Thresholds{MaxRowCount: maxRowCount, SpawnThresholdPercentage: 0.8})
		ctrl.tick(time.Now())
		return ctrl.Stats().TotalSpawns
	}

	lowThresholdSpawns := run(100)  // 85 >= 0.8*100 -> spawns
	highThresholdSpawns := run(1000) // 85 < 0.8*1000 -> no spawn
	require.GreaterOrEqual(t, lowThresholdSpawns, highThresholdSpawns)
}
