package state

import (
	"context"

	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// Store reads and writes the checkpoint. Write must be durable when it
// returns. Read returns an empty document when nothing was stored yet.
type Store interface {
	Read(ctx context.Context) (*Document, error)
	Write(ctx context.Context, doc *Document) error
	Close() error
}

// Emitter receives a copy of every persisted checkpoint, for example to
// echo it on the output stream.
type Emitter interface {
	WriteState(ctx context.Context, doc *Document) error
}

// Tee persists to a primary store, then hands the document to an emitter.
type Tee struct {
	primary Store
	emitter Emitter
}

var _ Store = (*Tee)(nil)

// NewTee creates a Tee
func NewTee(primary Store, emitter Emitter) *Tee {
	return &Tee{primary: primary, emitter: emitter}
}

// Read reads from the primary store
func (t *Tee) Read(ctx context.Context) (*Document, error) {
	return t.primary.Read(ctx)
}

// Write persists doc and then emits it
func (t *Tee) Write(ctx context.Context, doc *Document) error {
	if err := t.primary.Write(ctx, doc); err != nil {
		return err
	}
	return t.emitter.WriteState(ctx, doc)
}

// Close closes the primary store
func (t *Tee) Close() error {
	return t.primary.Close()
}

func recordWrite(backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CheckpointWrites.WithLabelValues(backend, status).Inc()
}
