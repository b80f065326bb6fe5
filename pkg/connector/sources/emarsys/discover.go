package emarsys

import (
	"context"
	"sort"

	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// Discover builds the catalog of every stream. The contacts schema lists
// the account's contact fields. Nothing is selected.
func Discover(ctx context.Context, client core.APIClient) (*catalog.Catalog, error) {
	if client == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "discovery requires an API client")
	}
	fields, err := fetchFieldCatalog(ctx, client)
	if err != nil {
		return nil, err
	}

	schemas := staticSchemas()
	schemas[core.StreamContacts] = contactsSchema(fields)

	cat := &catalog.Catalog{}
	for _, id := range core.StreamOrder {
		cat.Streams = append(cat.Streams, discoverStream(id, schemas[id]))
	}
	return cat, nil
}

func discoverStream(id string, schema *catalog.Schema) *catalog.Stream {
	keys := KeyProperties[id]
	stream := &catalog.Stream{
		TapStreamID:   id,
		Stream:        id,
		KeyProperties: keys,
		Schema:        schema,
	}
	stream.SetMetadata(nil, "table-key-properties", keys)
	stream.SetMetadata(nil, "inclusion", "available")
	if id == core.StreamMetrics {
		stream.SetMetadata(nil, MetricsSelectedKey, copyStrings(MetricsAvailable))
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		inclusion := "available"
		if isKey[name] {
			inclusion = "automatic"
		}
		stream.SetMetadata([]string{"properties", name}, "inclusion", inclusion)
	}
	return stream
}
