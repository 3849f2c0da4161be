package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordConnection(t *testing.T) {
	m := NewMetrics()

	m.RecordConnection()
	m.RecordConnection()
	m.RecordConnection()
	m.RecordDisconnection(time.Second)
	m.RecordConnection()

	assert.Equal(t, int64(4), m.TotalConnections)
	assert.Equal(t, int64(3), m.ActiveConnections)
	assert.Equal(t, int64(3), m.MaxConcurrent, "max tracks the high-water mark")
}

func TestMetricsConnectionDurationAverage(t *testing.T) {
	m := NewMetrics()

	m.RecordConnection()
	m.RecordConnection()
	m.RecordDisconnection(2 * time.Second)
	m.RecordDisconnection(4 * time.Second)

	assert.Equal(t, 3*time.Second, m.AvgConnectionTime)
	assert.Equal(t, int64(0), m.ActiveConnections)
}

func TestMetricsRecordMessage(t *testing.T) {
	m := NewMetrics()

	m.RecordMessage(100)
	m.RecordMessage(250)

	assert.Equal(t, int64(2), m.MessagesSent)
	assert.Equal(t, int64(350), m.BytesSent)
}

func TestMetricsRecordDroppedClient(t *testing.T) {
	m := NewMetrics()

	m.RecordDroppedClient()
	m.RecordDroppedClient()

	assert.Equal(t, int64(2), m.DroppedClients)
}

func TestMetricsRecordQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth(10)
	assert.Equal(t, int64(10), m.AvgQueueDepth, "first sample seeds the average")
	assert.Equal(t, int64(10), m.MaxQueueDepth)

	m.RecordQueueDepth(20)
	assert.Equal(t, int64(11), m.AvgQueueDepth, "(10*9+20)/10")
	assert.Equal(t, int64(20), m.MaxQueueDepth)

	m.RecordQueueDepth(5)
	assert.Equal(t, int64(20), m.MaxQueueDepth, "max never decreases")
}

func TestMetricsGetSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordConnection()
	m.RecordMessage(128)
	m.RecordDroppedClient()
	m.RecordQueueDepth(7)

	snapshot := m.GetSnapshot()

	connections, ok := snapshot["connections"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(1), connections["total"])
	assert.Equal(t, int64(1), connections["active"])

	messages, ok := snapshot["messages"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(1), messages["sent"])
	assert.Equal(t, int64(128), messages["bytes_sent"])
	assert.Equal(t, int64(1), messages["dropped_clients"])

	performance, ok := snapshot["performance"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(7), performance["avg_queue_depth"])
	assert.Equal(t, int64(7), performance["max_queue_depth"])

	uptime, ok := snapshot["uptime_seconds"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, uptime, 0.0)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordConnection()
	m.RecordMessage(64)
	m.RecordDroppedClient()
	m.RecordQueueDepth(3)
	before := m.LastReset

	time.Sleep(time.Millisecond)
	m.Reset()

	assert.Equal(t, int64(0), m.TotalConnections)
	assert.Equal(t, int64(0), m.ActiveConnections)
	assert.Equal(t, int64(0), m.MessagesSent)
	assert.Equal(t, int64(0), m.BytesSent)
	assert.Equal(t, int64(0), m.DroppedClients)
	assert.Equal(t, int64(0), m.AvgQueueDepth)
	assert.Equal(t, int64(0), m.MaxQueueDepth)
	assert.True(t, m.LastReset.After(before))
}

func TestGetMetricsReturnsSingleton(t *testing.T) {
	assert.Same(t, GetMetrics(), GetMetrics())
}
