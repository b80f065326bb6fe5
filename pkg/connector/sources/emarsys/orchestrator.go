package emarsys

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/logger"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
	"github.com/ajitpratap0/emarsys-tap/pkg/observability"
)

// Sync runs every selected stream in dependency order. The stream named
// by the checkpoint's completion marker is skipped, since it finished in
// an earlier attempt. contact_lists is fetched whenever memberships need
// it and campaigns whenever metrics need them, but their records are only
// emitted when they are selected themselves.
func (s *Source) Sync(ctx context.Context) error {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	s.doc = doc

	marker := doc.Marker()
	selected := make(map[string]bool, len(core.StreamOrder))
	for _, id := range core.StreamOrder {
		selected[id] = s.selected(id)
	}
	pending := func(stream string) bool {
		return selected[stream] && marker != stream
	}

	s.logger.Info("sync started",
		zap.Strings("selected", s.catalog.SelectedStreamIDs()),
		zap.String("last_synced_stream", marker))

	if pending(core.StreamContacts) {
		if err := s.runStream(ctx, core.StreamContacts, true, s.syncContacts); err != nil {
			return err
		}
	}

	var lists []core.Record
	if pending(core.StreamContactLists) || pending(core.StreamContactListMemberships) {
		emit := selected[core.StreamContactLists]
		err := s.runStream(ctx, core.StreamContactLists, emit, func(ctx context.Context) error {
			var err error
			lists, err = s.syncContactLists(ctx, emit)
			return err
		})
		if err != nil {
			return err
		}
	}

	if pending(core.StreamContactListMemberships) {
		err := s.runStream(ctx, core.StreamContactListMemberships, true, func(ctx context.Context) error {
			return s.syncMemberships(ctx, lists)
		})
		if err != nil {
			return err
		}
	}

	var campaigns []core.Record
	if pending(core.StreamCampaigns) || pending(core.StreamMetrics) {
		emit := selected[core.StreamCampaigns]
		err := s.runStream(ctx, core.StreamCampaigns, emit, func(ctx context.Context) error {
			var err error
			campaigns, err = s.syncCampaigns(ctx, emit)
			return err
		})
		if err != nil {
			return err
		}
	}

	if pending(core.StreamMetrics) {
		err := s.runStream(ctx, core.StreamMetrics, true, func(ctx context.Context) error {
			return s.syncMetrics(ctx, campaigns)
		})
		if err != nil {
			return err
		}
	}

	s.doc.SetMarker("")
	if err := s.writeState(ctx); err != nil {
		return err
	}
	s.logger.Info("sync completed")
	return nil
}

// runStream announces the schema when records will be emitted, runs fn in
// a span and marks the stream complete once fn succeeds
func (s *Source) runStream(ctx context.Context, stream string, emit bool, fn func(context.Context) error) (err error) {
	ctx = context.WithValue(ctx, logger.StreamKey, stream)
	ctx, span := observability.StartSpan(ctx, "emarsys.sync."+stream,
		attribute.String("stream", stream),
		attribute.Bool("emit", emit))
	timer := metrics.NewTimer()

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.StreamDuration.WithLabelValues(stream, status).Observe(timer.Stop().Seconds())
		observability.EndSpan(span, err)
	}()

	if emit {
		if err = s.writeSchema(ctx, stream); err != nil {
			return err
		}
	}

	s.log(ctx).Info("stream sync started", zap.Bool("emit", emit))
	if err = fn(ctx); err != nil {
		return fmt.Errorf("sync %s: %w", stream, err)
	}

	s.doc.SetMarker(stream)
	return s.writeState(ctx)
}

func (s *Source) writeSchema(ctx context.Context, stream string) error {
	cs := s.catalog.GetStream(stream)
	if cs == nil || cs.Schema == nil {
		return nil
	}
	if err := s.sink.WriteSchema(ctx, stream, cs.Schema, cs.KeyProperties); err != nil {
		return fmt.Errorf("write %s schema: %w", stream, err)
	}
	return nil
}
