package emarsys

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/state"
	"github.com/ajitpratap0/emarsys-tap/pkg/testutil"
)

var testEpoch = time.Date(2021, 3, 10, 9, 30, 0, 0, time.UTC)

type apiCall struct {
	Method string
	Path   string
	Params url.Values
	Body   interface{}
	At     time.Time
}

type apiHandler func(c apiCall) (interface{}, error)

// fakeAPI routes requests to handlers by "METHOD path" and round-trips
// responses through JSON like the real client does.
type fakeAPI struct {
	mu       sync.Mutex
	clock    *testutil.FakeClock
	handlers map[string]apiHandler
	calls    []apiCall
}

var _ core.APIClient = (*fakeAPI)(nil)

func newFakeAPI(clock *testutil.FakeClock) *fakeAPI {
	return &fakeAPI{clock: clock, handlers: make(map[string]apiHandler)}
}

func (f *fakeAPI) on(method, path string, h apiHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

func (f *fakeAPI) Get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return f.do(ctx, "GET", path, params, nil, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return f.do(ctx, "POST", path, nil, body, out)
}

func (f *fakeAPI) do(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := apiCall{Method: method, Path: path, Params: params, Body: body}
	if f.clock != nil {
		c.At = f.clock.Now()
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	h, ok := f.handlers[method+" "+path]
	f.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrorTypeProvider, "unexpected request %s %s", method, path)
	}
	v, err := h(c)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) callsTo(method, path string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// metricJobs serves POST /email/responses and the matching result polls.
// result returns the contact ids of a cell; nil makes the job never ready.
func (f *fakeAPI) metricJobs(result func(req metricJobRequest) []interface{}) {
	var mu sync.Mutex
	next := 100
	f.on("POST", "/email/responses", func(c apiCall) (interface{}, error) {
		req := c.Body.(metricJobRequest)
		mu.Lock()
		next++
		id := next
		mu.Unlock()

		ids := result(req)
		f.on("GET", fmt.Sprintf("/email/%d/responses", id), func(apiCall) (interface{}, error) {
			if ids == nil {
				return "", nil
			}
			return map[string]interface{}{"contact_ids": ids}, nil
		})
		return map[string]interface{}{"id": id}, nil
	})
}

// event is one observable side effect, in order
type event struct {
	Kind   string // write or state
	Stream string
	Count  int
	Doc    *state.Document
}

type eventLog struct {
	mu     sync.Mutex
	events []event
}

func (l *eventLog) add(e event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event, len(l.events))
	copy(out, l.events)
	return out
}

// memorySink keeps every batch in memory
type memorySink struct {
	mu      sync.Mutex
	log     *eventLog
	batches map[string][][]core.Record
	schemas []string
}

var _ core.Sink = (*memorySink)(nil)

func newMemorySink(log *eventLog) *memorySink {
	return &memorySink{log: log, batches: make(map[string][][]core.Record)}
}

func (s *memorySink) WriteSchema(_ context.Context, stream string, _ interface{}, _ []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas = append(s.schemas, stream)
	return nil
}

func (s *memorySink) Write(_ context.Context, stream string, records []core.Record) error {
	s.mu.Lock()
	s.batches[stream] = append(s.batches[stream], records)
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(event{Kind: "write", Stream: stream, Count: len(records)})
	}
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) records(stream string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Record
	for _, b := range s.batches[stream] {
		out = append(out, b...)
	}
	return out
}

func (s *memorySink) batchCount(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches[stream])
}

// loggingStore records every successful write in the event log
type loggingStore struct {
	*state.MemoryStore
	log *eventLog
}

func (s *loggingStore) Write(ctx context.Context, doc *state.Document) error {
	if err := s.MemoryStore.Write(ctx, doc); err != nil {
		return err
	}
	s.log.add(event{Kind: "state", Doc: doc.Clone()})
	return nil
}

// testCatalog builds a discovered catalog with the given streams selected.
// Contacts expose first_name and birth_date.
func testCatalog(selected ...string) *catalog.Catalog {
	fields := NewFieldCatalog([]RawField{
		{ID: float64(1), Name: "First Name", ApplicationType: "shorttext"},
		{ID: float64(4), Name: "Birth Date", ApplicationType: "date"},
	})
	schemas := staticSchemas()
	schemas[core.StreamContacts] = contactsSchema(fields)

	cat := &catalog.Catalog{}
	for _, id := range core.StreamOrder {
		cat.Streams = append(cat.Streams, discoverStream(id, schemas[id]))
	}
	for _, id := range selected {
		cat.GetStream(id).SetMetadata(nil, "selected", true)
	}
	return cat
}

func selectMetrics(cat *catalog.Catalog, names ...string) {
	list := make([]interface{}, len(names))
	for i, n := range names {
		list[i] = n
	}
	cat.GetStream(core.StreamMetrics).SetMetadata(nil, MetricsSelectedKey, list)
}

type harness struct {
	t      *testing.T
	clock  *testutil.FakeClock
	api    *fakeAPI
	sink   *memorySink
	store  *loggingStore
	log    *eventLog
	config *config.TapConfig
	cat    *catalog.Catalog
}

func newHarness(t *testing.T, selected ...string) *harness {
	clock := testutil.NewFakeClock(testEpoch)
	log := &eventLog{}
	cfg := config.NewTapConfig()
	cfg.Credentials.Username = "user"
	cfg.Credentials.Secret = "secret"
	return &harness{
		t:      t,
		clock:  clock,
		api:    newFakeAPI(clock),
		sink:   newMemorySink(log),
		store:  &loggingStore{MemoryStore: state.NewMemoryStore(nil), log: log},
		log:    log,
		config: cfg,
		cat:    testCatalog(selected...),
	}
}

func (h *harness) source() *Source {
	h.t.Helper()
	src, err := NewSource(Options{
		Config:  h.config,
		Client:  h.api,
		Sink:    h.sink,
		Store:   h.store,
		Catalog: h.cat,
		Clock:   h.clock,
		Logger:  testutil.TestLogger(h.t),
	})
	require.NoError(h.t, err)
	return src
}

// sync runs a full Sync with a fresh Source
func (h *harness) sync() error {
	ctx, cancel := testutil.TestContext(h.t)
	defer cancel()
	return h.source().Sync(ctx)
}

// campaigns serves GET /email/ with the given campaigns
func (h *harness) campaigns(list ...map[string]interface{}) {
	h.api.on("GET", "/email/", func(apiCall) (interface{}, error) {
		return list, nil
	})
}

func campaign(id int, deleted string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"name":    fmt.Sprintf("campaign %d", id),
		"created": "2020-06-01 10:00:00",
		"deleted": deleted,
	}
}

func (h *harness) checkpoint() *state.Document {
	doc, err := h.store.Read(context.Background())
	require.NoError(h.t, err)
	return doc
}

func postedCells(api *fakeAPI) []metricJobRequest {
	var out []metricJobRequest
	for _, c := range api.callsTo("POST", "/email/responses") {
		out = append(out, c.Body.(metricJobRequest))
	}
	return out
}
