package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.RecordRow("classified")
	r.RecordRow("classified")
	r.RecordRow("no_file")
	r.RecordFiles(3, 1)
	r.RecordMerge(true, 4)
	r.RecordMerge(false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.rows.WithLabelValues("classified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rows.WithLabelValues("no_file")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.files.WithLabelValues("copy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.files.WithLabelValues("convert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.merges.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.placed))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	at := time.Unix(1700000000, 0)
	r.RecordPass("merge", 2*time.Second, true, at)
	r.RecordPass("classify", time.Second, false, at)

	path := filepath.Join(t.TempDir(), "bomsort.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `bomsort_pass_duration_seconds_count{task="merge"} 1`)
	assert.Contains(t, text, `bomsort_last_success_timestamp_seconds{task="merge"} 1.7e+09`)
	assert.NotContains(t, text, `bomsort_last_success_timestamp_seconds{task="classify"}`)
}
