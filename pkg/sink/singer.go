// Package sink provides record sinks: the Singer message writer, a
// JSON-lines file writer and a metrics wrapper.
package sink

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/state"
)

// Singer message types
const (
	MessageSchema = "SCHEMA"
	MessageRecord = "RECORD"
	MessageState  = "STATE"
)

type schemaMessage struct {
	Type          string      `json:"type"`
	Stream        string      `json:"stream"`
	Schema        interface{} `json:"schema"`
	KeyProperties []string    `json:"key_properties"`
}

type recordMessage struct {
	Type   string      `json:"type"`
	Stream string      `json:"stream"`
	Record core.Record `json:"record"`
}

type stateMessage struct {
	Type  string          `json:"type"`
	Value *state.Document `json:"value"`
}

// SingerWriter writes Singer SCHEMA, RECORD and STATE messages as JSON
// lines. Every call is flushed before it returns so a STATE message never
// overtakes the records it covers.
type SingerWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
	mu  sync.Mutex
}

var (
	_ core.Sink     = (*SingerWriter)(nil)
	_ state.Emitter = (*SingerWriter)(nil)
)

// NewSingerWriter creates a writer over out, normally stdout
func NewSingerWriter(out io.Writer) *SingerWriter {
	bw := bufio.NewWriterSize(out, 64*1024)
	return &SingerWriter{w: bw, enc: json.NewEncoder(bw)}
}

// WriteSchema emits a SCHEMA message
func (s *SingerWriter) WriteSchema(_ context.Context, stream string, schema interface{}, keyProperties []string) error {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	return s.emit(schemaMessage{
		Type:          MessageSchema,
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
	})
}

// Write emits one RECORD message per record, in order
func (s *SingerWriter) Write(_ context.Context, stream string, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.enc.Encode(recordMessage{Type: MessageRecord, Stream: stream, Record: r}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record").
				WithDetail("stream", stream)
		}
	}
	return s.flush()
}

// WriteState emits a STATE message
func (s *SingerWriter) WriteState(_ context.Context, doc *state.Document) error {
	return s.emit(stateMessage{Type: MessageState, Value: doc})
}

// Close flushes buffered output
func (s *SingerWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *SingerWriter) emit(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode message")
	}
	return s.flush()
}

func (s *SingerWriter) flush() error {
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	return nil
}
