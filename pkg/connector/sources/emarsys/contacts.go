package emarsys

import (
	"bytes"
	"context"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// contactPage is the data of /contact/query/ and /contact/getdata.
// The API sends result as false instead of an empty list.
type contactPage struct {
	Errors []interface{}   `json:"errors"`
	Result json.RawMessage `json:"result"`
}

type contactQuery struct {
	KeyID     string   `json:"keyId"`
	KeyValues []string `json:"keyValues"`
	Fields    []string `json:"fields"`
}

func (p *contactPage) errorMessages() []string {
	msgs := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		switch v := e.(type) {
		case string:
			msgs = append(msgs, v)
		default:
			b, _ := json.Marshal(v)
			msgs = append(msgs, string(b))
		}
	}
	return msgs
}

func (p *contactPage) records() ([]core.Record, error) {
	raw := bytes.TrimSpace(p.Result)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	var out []core.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode contact page")
	}
	return out, nil
}

// syncContacts resolves the selected contact fields and walks the contact
// collection with the two-step query: list a page of ids, then fetch the
// selected fields for those ids.
func (s *Source) syncContacts(ctx context.Context) error {
	stream := s.catalog.GetStream(core.StreamContacts)

	fields, err := fetchFieldCatalog(ctx, s.client)
	if err != nil {
		return err
	}
	var selectedNames []string
	if stream != nil {
		selectedNames = stream.SelectedProperties()
	}
	selected, err := fields.Resolve(selectedNames)
	if err != nil {
		return err
	}
	fieldIDs := make([]string, len(selected))
	for i, fd := range selected {
		fieldIDs[i] = fd.ID
	}

	total := 0
	pages, err := Paginate(ctx, core.StreamContacts, s.config.Sync.ContactsPageSize, func(ctx context.Context, cursor PageCursor) (int, error) {
		n, err := s.contactPage(ctx, fields, fieldIDs, cursor)
		total += n
		return n, err
	})
	if err != nil {
		return err
	}

	s.logger.Info("contacts synced",
		zap.Int("fields", len(selected)),
		zap.Int("pages", pages),
		zap.Int("records", total))
	return nil
}

func (s *Source) contactPage(ctx context.Context, fields *FieldCatalog, fieldIDs []string, cursor PageCursor) (int, error) {
	params := url.Values{}
	params.Set("return", "3")
	params.Set("limit", strconv.Itoa(cursor.Limit))
	params.Set("offset", strconv.Itoa(cursor.Offset))

	var idPage contactPage
	if err := s.client.Get(ctx, "/contact/query/", params, &idPage); err != nil {
		return 0, err
	}
	if len(idPage.Errors) > 0 {
		return 0, &errors.ProviderPageError{Stream: core.StreamContacts, Messages: idPage.errorMessages()}
	}
	ids, err := idPage.records()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query := contactQuery{KeyID: "id", KeyValues: make([]string, 0, len(ids)), Fields: fieldIDs}
	for _, row := range ids {
		query.KeyValues = append(query.KeyValues, idString(row["id"]))
	}

	var dataPage contactPage
	if err := s.client.Post(ctx, "/contact/getdata", query, &dataPage); err != nil {
		return 0, err
	}
	if len(dataPage.Errors) > 0 {
		s.logger.Warn("contact lookup reported errors", zap.Strings("errors", dataPage.errorMessages()))
	}
	contacts, err := dataPage.records()
	if err != nil {
		return 0, err
	}

	records := make([]core.Record, 0, len(contacts))
	for _, c := range contacts {
		r, err := transformContact(fields, c)
		if err != nil {
			return 0, err
		}
		records = append(records, r)
	}
	if err := s.flush(ctx, core.StreamContacts, records); err != nil {
		return 0, err
	}
	return len(contacts), nil
}

// transformContact renames field ids to normalized names and applies the
// base transform. Field ids missing from the catalog keep their id as key.
func transformContact(fields *FieldCatalog, contact core.Record) (core.Record, error) {
	out := make(core.Record, len(contact))
	for key, value := range contact {
		if contactKeys[key] {
			out[key] = value
			continue
		}
		name, isDate := key, false
		if fd, ok := fields.ByID(key); ok {
			name, isDate = fd.Name, fd.Type == FieldTypeDate
		}
		v, err := transformValue(value, isDate)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to transform contact field").
				WithDetail("field", name)
		}
		out[name] = v
	}
	return out, nil
}
