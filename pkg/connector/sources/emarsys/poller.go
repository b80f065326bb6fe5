package emarsys

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/clients"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/base"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// PollerConfig configures job creation backoff and result polling.
// Zero values fall back to the defaults noted on each field.
type PollerConfig struct {
	MaxAttempts    int           // 5
	InitialBackoff time.Duration // 1s
	MaxBackoff     time.Duration // 5m
	PollInterval   time.Duration // 5s
	PollAttempts   int           // 10
}

// Job is a created metric job
type Job struct {
	ID string
}

// JobResult is the ready result of a metric job
type JobResult struct {
	ContactIDs []string
}

// NoMatches reports the provider's zero-match marker: a single empty id
func (r *JobResult) NoMatches() bool {
	return len(r.ContactIDs) == 1 && r.ContactIDs[0] == ""
}

type metricJobRequest struct {
	Type       string `json:"type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	CampaignID string `json:"campaign_id"`
}

// JobPoller creates metric jobs under the global window limit and polls
// them until a result is ready.
type JobPoller struct {
	client       core.APIClient
	limiter      *clients.WindowLimiter
	clock        clients.Clock
	retry        *base.RetryPolicy
	pollInterval time.Duration
	pollAttempts int
	logger       *zap.Logger
}

// NewJobPoller creates a poller. limiter must be shared by every poller
// in the process since the quota is account-wide.
func NewJobPoller(client core.APIClient, limiter *clients.WindowLimiter, clock clients.Clock, cfg PollerConfig, logger *zap.Logger) *JobPoller {
	if clock == nil {
		clock = clients.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retry := base.RateLimitRetryPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		retry.InitialDelay = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxDelay = cfg.MaxBackoff
	}
	retry.Sleep = clock.Sleep
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("metric job rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	p := &JobPoller{
		client:       client,
		limiter:      limiter,
		clock:        clock,
		retry:        retry,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		logger:       logger,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 5 * time.Second
	}
	if p.pollAttempts <= 0 {
		p.pollAttempts = 10
	}
	return p
}

// PostMetric creates a job for one metric of one campaign on one date.
// Each attempt waits for the rate limit window first. Rate limit
// rejections are retried with exponential backoff; any other error, or
// running out of attempts, is returned.
func (p *JobPoller) PostMetric(ctx context.Context, metric, date, campaignID string) (*Job, error) {
	req := metricJobRequest{Type: metric, StartDate: date, EndDate: date, CampaignID: campaignID}

	var job *Job
	err := p.retry.ExecuteWithCondition(ctx, func() error {
		waited, err := p.limiter.Wait(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "rate limit wait cancelled")
		}
		metrics.RateLimitWait.Observe(waited.Seconds())

		var resp struct {
			ID interface{} `json:"id"`
		}
		if err := p.client.Post(ctx, "/email/responses", req, &resp); err != nil {
			if errors.IsRateLimit(err) {
				metrics.JobAttempts.WithLabelValues("rate_limited").Inc()
			} else {
				metrics.JobAttempts.WithLabelValues("failed").Inc()
			}
			return err
		}
		id := idString(resp.ID)
		if id == "" {
			metrics.JobAttempts.WithLabelValues("failed").Inc()
			return errors.New(errors.ErrorTypeData, "metric job response has no id")
		}
		metrics.JobAttempts.WithLabelValues("created").Inc()
		job = &Job{ID: id}
		return nil
	}, errors.IsRateLimit)
	if err != nil {
		return nil, fmt.Errorf("create %s job for campaign %s on %s: %w", metric, campaignID, date, err)
	}

	p.logger.Debug("metric job created",
		zap.String("job_id", job.ID),
		zap.String("metric", metric),
		zap.String("campaign_id", campaignID),
		zap.String("date", date))
	return job, nil
}

// Await polls the job's result at a fixed interval until it is ready.
// Running out of polls returns *errors.JobTimeoutError.
func (p *JobPoller) Await(ctx context.Context, job *Job) (*JobResult, error) {
	path := fmt.Sprintf("/email/%s/responses", url.PathEscape(job.ID))

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		var raw json.RawMessage
		if err := p.client.Get(ctx, path, nil, &raw); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", job.ID, err)
		}

		if !pendingResult(raw) {
			metrics.JobPolls.WithLabelValues("ready").Inc()
			return decodeJobResult(job, raw)
		}
		metrics.JobPolls.WithLabelValues("pending").Inc()

		if attempt == p.pollAttempts {
			break
		}
		if err := p.clock.Sleep(ctx, p.pollInterval); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "job polling cancelled").
				WithDetail("job_id", job.ID)
		}
	}

	metrics.JobPolls.WithLabelValues("timeout").Inc()
	return nil, &errors.JobTimeoutError{JobID: job.ID, Attempts: p.pollAttempts}
}

// pendingResult reports whether the payload is an empty result
func pendingResult(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", `""`, "null", "{}", "[]":
		return true
	}
	return false
}

func decodeJobResult(job *Job, raw json.RawMessage) (*JobResult, error) {
	var payload struct {
		ContactIDs []interface{} `json:"contact_ids"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode job result").
			WithDetail("job_id", job.ID)
	}
	result := &JobResult{ContactIDs: make([]string, 0, len(payload.ContactIDs))}
	for _, id := range payload.ContactIDs {
		result.ContactIDs = append(result.ContactIDs, idString(id))
	}
	return result, nil
}
