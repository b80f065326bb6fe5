package registry

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

type discardSink struct{}

func (discardSink) WriteSchema(context.Context, string, interface{}, []string) error { return nil }
func (discardSink) Write(context.Context, string, []core.Record) error             { return nil }
func (discardSink) Close() error                                                   { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(*config.TapConfig, io.Writer, *zap.Logger) (core.Sink, error) {
		return discardSink{}, nil
	}

	require.NoError(t, r.RegisterSink("discard", factory))
	assert.True(t, errors.IsType(r.RegisterSink("discard", factory), errors.ErrorTypeConfig))
	assert.True(t, r.HasSink("discard"))
	assert.Equal(t, []string{"discard"}, r.ListSinks())

	sink, err := r.CreateSink("discard", config.NewTapConfig(), io.Discard)
	require.NoError(t, err)
	assert.NotNil(t, sink)

	_, err = r.CreateSink("kafka", config.NewTapConfig(), io.Discard)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSink("broken", func(*config.TapConfig, io.Writer, *zap.Logger) (core.Sink, error) {
		return nil, errors.New(errors.ErrorTypeFile, "output directory is read-only")
	}))

	_, err := r.CreateSink("broken", config.NewTapConfig(), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}
