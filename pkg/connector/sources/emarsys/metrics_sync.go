package emarsys

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/logger"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// MetricsSelectedKey is the stream metadata key listing the metrics to sync
const MetricsSelectedKey = "tap-emarsys.metrics-selected"

// MetricsAvailable lists every email response metric, in sync order
var MetricsAvailable = []string{
	"opened",
	"not_opened",
	"received",
	"clicked",
	"not_clicked",
	"bounced",
	"hard_bounced",
	"soft_bounced",
	"block_bounced",
}

// workList is the ordered campaign × metric universe with a cursor into
// each list. The checkpoint is the suffix of both lists from the cursors.
type workList struct {
	campaigns   []string
	campaignIdx int

	// all is the selected metric set every campaign after the first starts from
	all []string
	// metrics is the metric list of the current campaign
	metrics   []string
	metricIdx int
}

func newWorkList(campaigns, firstMetrics, all []string) *workList {
	return &workList{campaigns: campaigns, all: all, metrics: firstMetrics}
}

func (w *workList) done() bool {
	return w.campaignIdx >= len(w.campaigns)
}

func (w *workList) campaign() string {
	return w.campaigns[w.campaignIdx]
}

func (w *workList) metricsDone() bool {
	return w.metricIdx >= len(w.metrics)
}

func (w *workList) metric() string {
	return w.metrics[w.metricIdx]
}

func (w *workList) nextMetric() {
	w.metricIdx++
}

// nextCampaign moves to the following campaign with the full metric set
func (w *workList) nextCampaign() {
	w.campaignIdx++
	w.metrics = w.all
	w.metricIdx = 0
}

func (w *workList) remainingCampaigns() []string {
	return copyStrings(w.campaigns[w.campaignIdx:])
}

func (w *workList) remainingMetrics() []string {
	return copyStrings(w.metrics[w.metricIdx:])
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// selectedMetrics reads the configured metric subset from the metrics
// stream metadata, defaulting to every available metric
func selectedMetrics(stream *catalog.Stream) []string {
	if stream != nil {
		if list, ok := stream.MetadataStrings(nil, MetricsSelectedKey); ok {
			return copyStrings(list)
		}
	}
	return copyStrings(MetricsAvailable)
}

// syncMetrics runs every (campaign, metric, date) cell not yet completed.
// A checkpoint left by an interrupted pass is resumed exactly; otherwise
// the universe is the active campaigns × selected metrics × the dates from
// max(start_date, last_metric_date) to end_date.
func (s *Source) syncMetrics(ctx context.Context, campaigns []core.Record) error {
	now := s.clock.Now()
	startDate, err := resolveDate(s.config.Sync.StartDate, now)
	if err != nil {
		return err
	}
	endDate, err := resolveDate(s.config.Sync.EndDate, now)
	if err != nil {
		return err
	}

	bookmark := &s.doc.Bookmarks.Metrics
	if bookmark.LastMetricDate != "" {
		last, err := resolveDate(bookmark.LastMetricDate, now)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeState, "invalid last_metric_date in checkpoint")
		}
		startDate = laterDate(startDate, last)
	}

	selected := selectedMetrics(s.catalog.GetStream(core.StreamMetrics))

	var work *workList
	resumeDate := startDate
	if bookmark.InProgress() {
		firstMetrics := bookmark.MetricsToResume
		if len(firstMetrics) == 0 {
			firstMetrics = selected
		}
		work = newWorkList(copyStrings(bookmark.CampaignsToResume), copyStrings(firstMetrics), selected)
		if bookmark.DateToResume != "" {
			resumeDate, err = resolveDate(bookmark.DateToResume, now)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeState, "invalid date_to_resume in checkpoint")
			}
		}
		s.log(ctx).Info("resuming metrics",
			zap.Strings("campaigns", work.campaigns),
			zap.Strings("metrics", work.metrics),
			zap.String("date", formatDate(resumeDate)))
	} else {
		work = newWorkList(activeCampaignIDs(campaigns), selected, selected)
		s.log(ctx).Info("starting metrics",
			zap.Int("campaigns", len(work.campaigns)),
			zap.Strings("metrics", selected),
			zap.String("start_date", formatDate(startDate)),
			zap.String("end_date", formatDate(endDate)))
	}

	for ; !work.done(); work.nextCampaign() {
		campaignID := work.campaign()
		cctx := context.WithValue(ctx, logger.CampaignKey, campaignID)

		for ; !work.metricsDone(); work.nextMetric() {
			for date := resumeDate; !date.After(endDate); {
				if err := s.syncCell(cctx, campaignID, work.metric(), formatDate(date)); err != nil {
					return err
				}
				date = nextDay(date)
				if err := s.checkpointMetrics(cctx, work, date); err != nil {
					return err
				}
			}
			resumeDate = startDate
		}
	}

	*bookmark = bookmark.Cleared(formatDate(endDate))
	if err := s.writeState(ctx); err != nil {
		return err
	}
	s.log(ctx).Info("metrics caught up", zap.String("last_metric_date", bookmark.LastMetricDate))
	return nil
}

// syncCell creates the job for one cell, waits for its result and flushes
// the matching contacts
func (s *Source) syncCell(ctx context.Context, campaignID, metric, date string) error {
	job, err := s.poller.PostMetric(ctx, metric, date, campaignID)
	if err != nil {
		return err
	}
	result, err := s.poller.Await(ctx, job)
	if err != nil {
		return err
	}

	var records []core.Record
	if !result.NoMatches() {
		records = make([]core.Record, 0, len(result.ContactIDs))
		for _, contactID := range result.ContactIDs {
			records = append(records, core.Record{
				"date":        date,
				"metric":      metric,
				"contact_id":  contactID,
				"campaign_id": campaignID,
			})
		}
	}
	if err := s.flush(ctx, core.StreamMetrics, records); err != nil {
		return err
	}

	metrics.SyncCellsCompleted.WithLabelValues(metric).Inc()
	s.log(ctx).Debug("metric cell synced",
		zap.String("metric", metric),
		zap.String("date", date),
		zap.Int("records", len(records)))
	return nil
}

// checkpointMetrics persists the resume point after a flushed cell
func (s *Source) checkpointMetrics(ctx context.Context, work *workList, next time.Time) error {
	b := &s.doc.Bookmarks.Metrics
	b.CampaignsToResume = work.remainingCampaigns()
	b.MetricsToResume = work.remainingMetrics()
	b.DateToResume = formatDate(next)
	return s.writeState(ctx)
}
