package emarsys

import (
	"context"
	"strings"
	"unicode"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// FieldType classifies a contact field's values
type FieldType string

const (
	// FieldTypeDate values are parsed into canonical timestamps
	FieldTypeDate FieldType = "date"
	// FieldTypePlain values pass through unchanged
	FieldTypePlain FieldType = "plain"
)

// contactKeys are returned by every contact lookup and need no descriptor
var contactKeys = map[string]bool{"id": true, "uid": true}

// RawField is a contact field definition as returned by GET /field.
type RawField struct {
	ID              interface{} `json:"id"`
	Name            string      `json:"name"`
	ApplicationType string      `json:"application_type"`
	StringID        string      `json:"string_id,omitempty"`
}

// FieldDescriptor maps a provider field id to its normalized name.
type FieldDescriptor struct {
	ID   string
	Name string
	Type FieldType
}

// FieldCatalog indexes the account's contact fields by id and by
// normalized name.
type FieldCatalog struct {
	byID   map[string]*FieldDescriptor
	byName map[string]*FieldDescriptor
	// ordered as returned by the provider, for discovery
	fields []*FieldDescriptor
}

// NormalizeFieldName lowercases name and replaces every run of
// non-alphanumeric characters with a single underscore.
func NormalizeFieldName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// NewFieldCatalog builds the lookup maps from the raw field list. When two
// raw fields normalize to the same name the first one wins.
func NewFieldCatalog(raw []RawField) *FieldCatalog {
	fc := &FieldCatalog{
		byID:   make(map[string]*FieldDescriptor, len(raw)),
		byName: make(map[string]*FieldDescriptor, len(raw)),
	}
	for _, rf := range raw {
		id := idString(rf.ID)
		if id == "" {
			continue
		}
		fd := &FieldDescriptor{ID: id, Name: NormalizeFieldName(rf.Name), Type: FieldTypePlain}
		if strings.EqualFold(rf.ApplicationType, string(FieldTypeDate)) {
			fd.Type = FieldTypeDate
		}
		if _, dup := fc.byID[id]; dup {
			continue
		}
		if _, dup := fc.byName[fd.Name]; dup {
			continue
		}
		fc.byID[id] = fd
		fc.byName[fd.Name] = fd
		fc.fields = append(fc.fields, fd)
	}
	return fc
}

// ByID looks up a field by provider id
func (fc *FieldCatalog) ByID(id string) (*FieldDescriptor, bool) {
	fd, ok := fc.byID[id]
	return fd, ok
}

// ByName looks up a field by normalized name
func (fc *FieldCatalog) ByName(name string) (*FieldDescriptor, bool) {
	fd, ok := fc.byName[name]
	return fd, ok
}

// Fields returns every descriptor in provider order
func (fc *FieldCatalog) Fields() []*FieldDescriptor {
	return fc.fields
}

// Resolve returns the descriptors for the selected property names, in
// order. The contact keys id and uid are skipped. A name the account does
// not expose fails with *errors.MissingFieldError.
func (fc *FieldCatalog) Resolve(selected []string) ([]*FieldDescriptor, error) {
	out := make([]*FieldDescriptor, 0, len(selected))
	for _, name := range selected {
		if contactKeys[name] {
			continue
		}
		fd, ok := fc.byName[name]
		if !ok {
			return nil, &errors.MissingFieldError{Field: name}
		}
		out = append(out, fd)
	}
	return out, nil
}

// fetchFieldCatalog loads the account's contact fields
func fetchFieldCatalog(ctx context.Context, client core.APIClient) (*FieldCatalog, error) {
	var raw []RawField
	if err := client.Get(ctx, "/field", nil, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProvider, "failed to list contact fields")
	}
	return NewFieldCatalog(raw), nil
}
