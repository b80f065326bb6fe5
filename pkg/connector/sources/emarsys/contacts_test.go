package emarsys

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

func selectContactFields(h *harness, names ...string) {
	stream := h.cat.GetStream(core.StreamContacts)
	for _, n := range names {
		if _, ok := stream.Schema.Properties[n]; !ok {
			stream.Schema.Properties[n] = nullable("string")
		}
		stream.SetMetadata([]string{"properties", n}, "selected", true)
	}
}

func serveFields(h *harness) {
	h.api.on("GET", "/field", func(apiCall) (interface{}, error) {
		return []map[string]interface{}{
			{"id": 1, "name": "First Name", "application_type": "shorttext"},
			{"id": 3, "name": "Email", "application_type": "longtext"},
			{"id": 4, "name": "Birth Date", "application_type": "date"},
		}, nil
	})
}

func TestContactsTwoStepQuery(t *testing.T) {
	h := newHarness(t, core.StreamContacts)
	h.config.Sync.ContactsPageSize = 2
	selectContactFields(h, "first_name", "birth_date")
	serveFields(h)

	pages := map[string][]map[string]interface{}{
		"0": {{"id": 10}, {"id": 11}},
		"2": {{"id": 12}},
	}
	h.api.on("GET", "/contact/query/", func(c apiCall) (interface{}, error) {
		assert.Equal(t, "3", c.Params.Get("return"))
		assert.Equal(t, "2", c.Params.Get("limit"))
		return map[string]interface{}{"errors": []string{}, "result": pages[c.Params.Get("offset")]}, nil
	})
	h.api.on("POST", "/contact/getdata", func(c apiCall) (interface{}, error) {
		q := c.Body.(contactQuery)
		assert.Equal(t, "id", q.KeyID)
		assert.Equal(t, []string{"4", "1"}, q.Fields)
		result := make([]map[string]interface{}, 0, len(q.KeyValues))
		for _, id := range q.KeyValues {
			result = append(result, map[string]interface{}{
				"id":  id,
				"uid": "u" + id,
				"1":   "name " + id,
				"4":   "",
			})
		}
		return map[string]interface{}{"errors": []string{}, "result": result}, nil
	})

	require.NoError(t, h.sync())

	getdata := h.api.callsTo("POST", "/contact/getdata")
	require.Len(t, getdata, 2)
	assert.Equal(t, []string{"10", "11"}, getdata[0].Body.(contactQuery).KeyValues)
	assert.Equal(t, []string{"12"}, getdata[1].Body.(contactQuery).KeyValues)

	records := h.sink.records(core.StreamContacts)
	require.Len(t, records, 3)
	assert.Equal(t, core.Record{"id": "10", "uid": "u10", "first_name": "name 10", "birth_date": nil}, records[0])
	assert.Equal(t, 2, h.sink.batchCount(core.StreamContacts))
	assert.Equal(t, []string{core.StreamContacts}, h.sink.schemas)
}

func TestContactsExhaustionUsesFetchedPage(t *testing.T) {
	h := newHarness(t, core.StreamContacts)
	h.config.Sync.ContactsPageSize = 2
	selectContactFields(h, "email")
	serveFields(h)

	h.api.on("GET", "/contact/query/", func(apiCall) (interface{}, error) {
		return map[string]interface{}{"errors": []string{}, "result": []map[string]interface{}{{"id": 1}, {"id": 2}}}, nil
	})
	h.api.on("POST", "/contact/getdata", func(apiCall) (interface{}, error) {
		// one of the two ids was deleted between the calls
		return map[string]interface{}{
			"errors": []string{},
			"result": []map[string]interface{}{{"id": "1", "3": "a@example.com"}},
		}, nil
	})

	require.NoError(t, h.sync())
	assert.Len(t, h.api.callsTo("GET", "/contact/query/"), 1)
	assert.Equal(t, []core.Record{{"id": "1", "email": "a@example.com"}}, h.sink.records(core.StreamContacts))
}

func TestContactsEmptyResult(t *testing.T) {
	h := newHarness(t, core.StreamContacts)
	serveFields(h)
	h.api.on("GET", "/contact/query/", func(apiCall) (interface{}, error) {
		return map[string]interface{}{"errors": []string{}, "result": false}, nil
	})

	require.NoError(t, h.sync())
	assert.Empty(t, h.api.callsTo("POST", "/contact/getdata"))
	assert.Empty(t, h.sink.records(core.StreamContacts))
}

func TestContactsPageErrors(t *testing.T) {
	h := newHarness(t, core.StreamContacts)
	serveFields(h)
	h.api.on("GET", "/contact/query/", func(apiCall) (interface{}, error) {
		return map[string]interface{}{
			"errors": []string{"invalid offset", "limit too large"},
			"result": false,
		}, nil
	})

	err := h.sync()
	require.Error(t, err)

	var pageErr *errors.ProviderPageError
	require.True(t, errors.As(err, &pageErr))
	assert.Equal(t, []string{"invalid offset", "limit too large"}, pageErr.Messages)
	assert.Contains(t, err.Error(), "contacts - invalid offset,limit too large")
	assert.True(t, errors.IsType(err, errors.ErrorTypeProvider))
	assert.Empty(t, h.store.History(), "no checkpoint after a failed stream")
}

func TestContactsMissingField(t *testing.T) {
	h := newHarness(t, core.StreamContacts)
	selectContactFields(h, "email", "loyalty_tier")
	serveFields(h)

	err := h.sync()
	require.Error(t, err)

	var missing *errors.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "loyalty_tier", missing.Field)
	assert.Contains(t, err.Error(), "field `loyalty_tier` not currently available from Emarsys")
	assert.Empty(t, h.api.callsTo("GET", "/contact/query/"), "fails before any page is requested")
	assert.Empty(t, h.store.History())
}

func TestContactsLargeCollection(t *testing.T) {
	const total = 2500
	h := newHarness(t, core.StreamContacts)
	serveFields(h)

	h.api.on("GET", "/contact/query/", func(c apiCall) (interface{}, error) {
		offset, _ := strconv.Atoi(c.Params.Get("offset"))
		limit, _ := strconv.Atoi(c.Params.Get("limit"))
		var ids []map[string]interface{}
		for i := offset; i < total && i < offset+limit; i++ {
			ids = append(ids, map[string]interface{}{"id": i})
		}
		return map[string]interface{}{"errors": []string{}, "result": ids}, nil
	})
	h.api.on("POST", "/contact/getdata", func(c apiCall) (interface{}, error) {
		q := c.Body.(contactQuery)
		result := make([]map[string]interface{}, len(q.KeyValues))
		for i, id := range q.KeyValues {
			result[i] = map[string]interface{}{"id": id}
		}
		return map[string]interface{}{"errors": []string{}, "result": result}, nil
	})

	require.NoError(t, h.sync())
	assert.Len(t, h.sink.records(core.StreamContacts), total)
	assert.Equal(t, 3, h.sink.batchCount(core.StreamContacts))
}
