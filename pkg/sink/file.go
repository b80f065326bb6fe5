package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/compression"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// FileSink appends records as JSON lines to one file per stream under a
// directory, optionally compressed. Each Write is flushed and synced to
// disk before it returns.
type FileSink struct {
	dir       string
	algorithm compression.Algorithm
	level     compression.Level
	logger    *zap.Logger

	files map[string]*streamFile
	mu    sync.Mutex
}

type streamFile struct {
	file *os.File
	comp io.WriteCloser
	buf  *bufio.Writer
	enc  *json.Encoder
}

type flusher interface {
	Flush() error
}

var _ core.Sink = (*FileSink)(nil)

// NewFileSink creates the output directory and returns a sink writing into it
func NewFileSink(dir string, algorithm compression.Algorithm, logger *zap.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("dir", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{
		dir:       dir,
		algorithm: algorithm,
		level:     compression.Default,
		logger:    logger,
		files:     make(map[string]*streamFile),
	}, nil
}

// Path returns the records file path for stream
func (f *FileSink) Path(stream string) string {
	return filepath.Join(f.dir, stream+".jsonl"+f.algorithm.Extension())
}

// WriteSchema writes <stream>.schema.json, replacing any previous copy
func (f *FileSink) WriteSchema(_ context.Context, stream string, schema interface{}, keyProperties []string) error {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	data, err := json.MarshalIndent(schemaFile{
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode schema").WithDetail("stream", stream)
	}
	path := filepath.Join(f.dir, stream+".schema.json")
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write schema").WithDetail("path", path)
	}
	return nil
}

type schemaFile struct {
	Stream        string      `json:"stream"`
	Schema        interface{} `json:"schema"`
	KeyProperties []string    `json:"key_properties"`
}

// Write appends records to the stream's file
func (f *FileSink) Write(_ context.Context, stream string, records []core.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sf, err := f.open(stream)
	if err != nil {
		return err
	}

	for _, r := range records {
		if err := sf.enc.Encode(r); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record").WithDetail("stream", stream)
		}
	}
	return sf.sync()
}

func (f *FileSink) open(stream string) (*streamFile, error) {
	if sf, ok := f.files[stream]; ok {
		return sf, nil
	}

	path := f.Path(stream)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open output file").WithDetail("path", path)
	}
	comp, err := compression.NewWriter(file, f.algorithm, f.level)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor").WithDetail("path", path)
	}
	buf := bufio.NewWriterSize(comp, 64*1024)
	sf := &streamFile{file: file, comp: comp, buf: buf, enc: json.NewEncoder(buf)}
	f.files[stream] = sf

	f.logger.Debug("opened output file", zap.String("stream", stream), zap.String("path", path))
	return sf, nil
}

// sync pushes buffered bytes through the compressor to disk
func (sf *streamFile) sync() error {
	if err := sf.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	if fl, ok := sf.comp.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressor")
		}
	}
	if err := sf.file.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to sync output file")
	}
	return nil
}

// Close finishes every compressed stream and closes the files
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for stream, sf := range f.files {
		if err := sf.buf.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sf.comp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.files, stream)
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeFile, "failed to close output files")
	}
	return nil
}
