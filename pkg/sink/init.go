package sink

import (
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/compression"
	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink(config.OutputModeSinger, func(_ *config.TapConfig, stdout io.Writer, _ *zap.Logger) (core.Sink, error) {
		return NewSingerWriter(stdout), nil
	})

	_ = registry.RegisterSink(config.OutputModeFile, func(cfg *config.TapConfig, _ io.Writer, logger *zap.Logger) (core.Sink, error) {
		alg, err := compression.ParseAlgorithm(cfg.Output.Compression)
		if err != nil {
			return nil, err
		}
		return NewFileSink(cfg.Output.Dir, alg, logger)
	})
}
