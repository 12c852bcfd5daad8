package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessedCounterAccumulates(t *testing.T) {
	m := New()
	m.Add(10)
	m.Add(5)
	assert.Equal(t, 15.0, testutil.ToFloat64(m.processed))
}

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun(8, 1500*time.Millisecond)
	assert.Equal(t, 8.0, testutil.ToFloat64(m.regions))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.duration))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Add(3)
	m.SetVoxelClass("nan", 2)

	path := filepath.Join(t.TempDir(), "doublelog.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "doublelog_processed_voxels_total 3")
	assert.Contains(t, out, `doublelog_output_voxels{class="nan"} 2`)
}

func TestWriteTextfileBadDir(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
