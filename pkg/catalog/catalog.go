// Package catalog reads and writes Singer catalogs: the per-stream JSON
// schemas, field selection flags and stream metadata that drive a sync.
package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// Catalog is the set of streams a tap can emit
type Catalog struct {
	Streams []*Stream `json:"streams"`
}

// Stream describes one stream
type Stream struct {
	TapStreamID   string          `json:"tap_stream_id"`
	Stream        string          `json:"stream"`
	KeyProperties []string        `json:"key_properties,omitempty"`
	Schema        *Schema         `json:"schema"`
	Metadata      []MetadataEntry `json:"metadata,omitempty"`
}

// Schema is the subset of JSON Schema used by Singer catalogs
type Schema struct {
	Type       SchemaType         `json:"type,omitempty"`
	Format     string             `json:"format,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	// AdditionalProperties is kept verbatim: either a boolean or a schema
	AdditionalProperties json.RawMessage `json:"additionalProperties,omitempty"`
	Inclusion            string          `json:"inclusion,omitempty"`
	Selected             *bool           `json:"selected,omitempty"`
}

// AllowAdditional is the AdditionalProperties value permitting any extra key
var AllowAdditional = json.RawMessage(`true`)

// SchemaType is a JSON Schema "type": a single name or a list of names.
// A single name is encoded as a plain string.
type SchemaType []string

// Nullable returns a type that admits null and each of types
func Nullable(types ...string) SchemaType {
	return append(SchemaType{"null"}, types...)
}

// Has reports whether name is one of the types
func (t SchemaType) Has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

// MarshalJSON implements json.Marshaler
func (t SchemaType) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON implements json.Unmarshaler
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = SchemaType{name}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("schema type must be a string or a list of strings: %w", err)
	}
	*t = names
	return nil
}

// MetadataEntry attaches metadata to a breadcrumb. The empty breadcrumb
// addresses the stream itself, ["properties", name] a field.
type MetadataEntry struct {
	Breadcrumb []string               `json:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Load reads a catalog file
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the --catalog flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open catalog").
			WithDetail("path", path)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a catalog
func Read(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse catalog")
	}
	return &c, nil
}

// Write encodes the catalog as indented JSON
func (c *Catalog) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write catalog")
	}
	return nil
}

// GetStream returns the stream with the given id, or nil
func (c *Catalog) GetStream(id string) *Stream {
	for _, s := range c.Streams {
		if s.TapStreamID == id {
			return s
		}
	}
	return nil
}

// SelectedStreamIDs returns the ids of selected streams in catalog order
func (c *Catalog) SelectedStreamIDs() []string {
	var ids []string
	for _, s := range c.Streams {
		if s.IsSelected() {
			ids = append(ids, s.TapStreamID)
		}
	}
	return ids
}

// IsSelected reports whether the stream is selected, either by the legacy
// schema flag or by stream-level metadata
func (s *Stream) IsSelected() bool {
	if s.Schema != nil && s.Schema.Selected != nil && *s.Schema.Selected {
		return true
	}
	v, ok := s.MetadataValue(nil, "selected")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SelectedProperties returns the names of selected top-level properties,
// sorted. A property is selected by its schema flag, by field metadata,
// or by automatic inclusion.
func (s *Stream) SelectedProperties() []string {
	if s.Schema == nil {
		return nil
	}
	var names []string
	for name, prop := range s.Schema.Properties {
		if s.propertySelected(name, prop) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Stream) propertySelected(name string, prop *Schema) bool {
	if prop != nil {
		if prop.Inclusion == "automatic" {
			return true
		}
		if prop.Selected != nil {
			return *prop.Selected
		}
	}
	breadcrumb := []string{"properties", name}
	if v, ok := s.MetadataValue(breadcrumb, "inclusion"); ok && v == "automatic" {
		return true
	}
	v, ok := s.MetadataValue(breadcrumb, "selected")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// MetadataValue looks up key in the metadata entry for breadcrumb
func (s *Stream) MetadataValue(breadcrumb []string, key string) (interface{}, bool) {
	for _, entry := range s.Metadata {
		if !sameBreadcrumb(entry.Breadcrumb, breadcrumb) {
			continue
		}
		v, ok := entry.Metadata[key]
		return v, ok
	}
	return nil, false
}

// MetadataStrings returns a string list stored under key, if present
func (s *Stream) MetadataStrings(breadcrumb []string, key string) ([]string, bool) {
	v, ok := s.MetadataValue(breadcrumb, key)
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, isString := item.(string)
			if !isString {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// SetMetadata sets key on the entry for breadcrumb, creating it if needed
func (s *Stream) SetMetadata(breadcrumb []string, key string, value interface{}) {
	for _, entry := range s.Metadata {
		if sameBreadcrumb(entry.Breadcrumb, breadcrumb) {
			entry.Metadata[key] = value
			return
		}
	}
	bc := breadcrumb
	if bc == nil {
		bc = []string{}
	}
	s.Metadata = append(s.Metadata, MetadataEntry{
		Breadcrumb: bc,
		Metadata:   map[string]interface{}{key: value},
	})
}

func sameBreadcrumb(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
