package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

const sampleCatalog = `{
  "streams": [
    {
      "tap_stream_id": "contacts",
      "stream": "contacts",
      "key_properties": ["id"],
      "schema": {
        "type": "object",
        "selected": true,
        "properties": {
          "id": {"type": ["null", "string"], "inclusion": "automatic"},
          "email": {"type": ["null", "string"], "selected": true},
          "first_name": {"type": ["null", "string"], "selected": false},
          "birth_date": {"type": ["null", "string"], "format": "date-time"}
        }
      },
      "metadata": [
        {"breadcrumb": ["properties", "birth_date"], "metadata": {"selected": true}}
      ]
    },
    {
      "tap_stream_id": "campaigns",
      "stream": "campaigns",
      "schema": {"type": "object", "properties": {}}
    },
    {
      "tap_stream_id": "metrics",
      "stream": "metrics",
      "schema": {"type": "object", "properties": {}},
      "metadata": [
        {"breadcrumb": [], "metadata": {"selected": true, "tap-emarsys.metrics-selected": ["opened", "clicked"]}}
      ]
    }
  ]
}`

func TestRead(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	assert.Equal(t, []string{"contacts", "metrics"}, c.SelectedStreamIDs())
	assert.Nil(t, c.GetStream("contact_lists"))

	contacts := c.GetStream("contacts")
	require.NotNil(t, contacts)
	assert.Equal(t, []string{"birth_date", "email", "id"}, contacts.SelectedProperties())

	metrics := c.GetStream("metrics")
	list, ok := metrics.MetadataStrings(nil, "tap-emarsys.metrics-selected")
	require.True(t, ok)
	assert.Equal(t, []string{"opened", "clicked"}, list)

	_, ok = c.GetStream("campaigns").MetadataStrings(nil, "tap-emarsys.metrics-selected")
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = Load(path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestWriteAndSetMetadata(t *testing.T) {
	s := &Stream{TapStreamID: "metrics", Stream: "metrics", Schema: &Schema{Type: SchemaType{"object"}}}
	s.SetMetadata(nil, "selected", true)
	s.SetMetadata([]string{}, "tap-emarsys.metrics-selected", []string{"opened"})
	require.Len(t, s.Metadata, 1)

	var buf bytes.Buffer
	require.NoError(t, (&Catalog{Streams: []*Stream{s}}).Write(&buf))

	c, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics"}, c.SelectedStreamIDs())
	list, ok := c.Streams[0].MetadataStrings(nil, "tap-emarsys.metrics-selected")
	require.True(t, ok)
	assert.Equal(t, []string{"opened"}, list)
}

func TestSchemaType(t *testing.T) {
	var s Schema
	require.NoError(t, json.Unmarshal([]byte(`{"type": "object", "properties": {
		"id": {"type": ["null", "integer"]},
		"tags": {"type": ["null", "array"], "items": {"type": "string"}}
	}}`), &s))

	assert.Equal(t, SchemaType{"object"}, s.Type)
	assert.Equal(t, Nullable("integer"), s.Properties["id"].Type)
	assert.True(t, s.Properties["tags"].Type.Has("array"))
	assert.False(t, s.Properties["tags"].Type.Has("object"))
	assert.Equal(t, SchemaType{"string"}, s.Properties["tags"].Items.Type)

	out, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"object"`)
	assert.Contains(t, string(out), `"type":["null","integer"]`)

	err = json.Unmarshal([]byte(`{"type": 7}`), &s)
	require.Error(t, err)
}
