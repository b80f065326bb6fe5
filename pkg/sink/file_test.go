package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/compression"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/testutil"
)

func TestFileSink(t *testing.T) {
	tests := []struct {
		name      string
		algorithm compression.Algorithm
	}{
		{"plain", compression.None},
		{"gzip", compression.Gzip},
		{"zstd", compression.Zstd},
		{"snappy", compression.Snappy},
		{"s2", compression.S2},
		{"lz4", compression.LZ4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			sink, err := NewFileSink(dir, tt.algorithm, testutil.TestLogger(t))
			require.NoError(t, err)

			require.NoError(t, sink.Write(ctx, core.StreamMetrics, []core.Record{{"contact_id": "1"}}))
			require.NoError(t, sink.Write(ctx, core.StreamMetrics, []core.Record{{"contact_id": "2"}}))
			require.NoError(t, sink.Close())

			f, err := os.Open(sink.Path(core.StreamMetrics))
			require.NoError(t, err)
			defer f.Close()

			r, err := compression.NewReader(f, tt.algorithm)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			require.Len(t, lines, 2)
			assert.JSONEq(t, `{"contact_id":"1"}`, lines[0])
			assert.JSONEq(t, `{"contact_id":"2"}`, lines[1])
		})
	}
}

func TestFileSinkWriteSchema(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, compression.None, nil)
	require.NoError(t, err)

	require.NoError(t, sink.WriteSchema(context.Background(), core.StreamContactLists,
		map[string]interface{}{"type": "object"}, []string{"id"}))

	data, err := os.ReadFile(filepath.Join(dir, "contact_lists.schema.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key_properties"`)
	assert.Equal(t, filepath.Join(dir, "contact_lists.jsonl.gz"),
		(&FileSink{dir: dir, algorithm: compression.Gzip}).Path(core.StreamContactLists))
}
