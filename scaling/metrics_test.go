package scaling

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricCollectorRecordsTransactionsAndQueries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewMetricCollector(reg)
	c.Register("db-1")

	now := time.Now()
	c.RecordTransaction("db-1", now)
	c.RecordTransaction("db-1", now.Add(time.Second))
	c.RecordQuery("db-1", now)

	m, ok := c.Snapshot("db-1")
	require.True(t, ok)
	require.Equal(t, int64(2), m.TransactionCount)
	require.Equal(t, int64(1), m.QueryCount)
}

func TestMetricCollectorConnectionsAdjust(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewMetricCollector(reg)
	c.Register("db-1")

	c.AdjustConnections("db-1", 1)
	c.AdjustConnections("db-1", 1)
	c.AdjustConnections("db-1", -1)

	m, ok := c.Snapshot("db-1")
	require.True(t, ok)
	require.Equal(t, int64(1), m.ActiveConnections)
}

func TestMetricCollectorUnknownDatabaseIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewMetricCollector(reg)
	c.RecordTransaction("ghost", time.Now())
	_, ok := c.Snapshot("ghost")
	require.False(t, ok)
}

func TestMetricCollectorSetSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewMetricCollector(reg)
	c.Register("db-1")
	c.SetSize("db-1", 1024, 10, 2)

	m, ok := c.Snapshot("db-1")
	require.True(t, ok)
	require.Equal(t, int64(1024), m.SizeBytes)
	require.Equal(t, int64(10), m.RowCount)
	require.Equal(t, int64(2), m.TableCount)
}
