package emarsys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/clients"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/testutil"
)

func newTestPoller(t *testing.T, api *fakeAPI, clock *testutil.FakeClock) *JobPoller {
	limiter := clients.NewWindowLimiter(61*time.Second, clock)
	return NewJobPoller(api, limiter, clock, PollerConfig{}, testutil.TestLogger(t))
}

func TestPostMetricRespectsWindow(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)
	api := newFakeAPI(clock)
	api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
		return map[string]interface{}{"id": 9}, nil
	})
	p := newTestPoller(t, api, clock)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		job, err := p.PostMetric(ctx, "opened", "2021-03-01", "5")
		require.NoError(t, err)
		assert.Equal(t, "9", job.ID)
	}

	calls := api.callsTo("POST", "/email/responses")
	require.Len(t, calls, 4)
	for i := 1; i < len(calls); i++ {
		gap := calls[i].At.Sub(calls[i-1].At)
		assert.GreaterOrEqual(t, gap, 61*time.Second, "call %d came %s after the previous one", i, gap)
	}

	body := calls[0].Body.(metricJobRequest)
	assert.Equal(t, metricJobRequest{Type: "opened", StartDate: "2021-03-01", EndDate: "2021-03-01", CampaignID: "5"}, body)
}

func TestPostMetricRateLimitBackoff(t *testing.T) {
	t.Run("gives up after five rejections", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
			return nil, errors.New(errors.ErrorTypeRateLimit, "too many requests")
		})
		p := newTestPoller(t, api, clock)

		_, err := p.PostMetric(context.Background(), "clicked", "2021-03-01", "5")
		require.Error(t, err)
		assert.True(t, errors.IsRateLimit(err))
		assert.Contains(t, err.Error(), "all 5 attempts failed")
		assert.Len(t, api.callsTo("POST", "/email/responses"), 5)
	})

	t.Run("recovers after a rejection", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		attempts := 0
		api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New(errors.ErrorTypeRateLimit, "too many requests")
			}
			return map[string]interface{}{"id": "abc"}, nil
		})
		p := newTestPoller(t, api, clock)

		job, err := p.PostMetric(context.Background(), "clicked", "2021-03-01", "5")
		require.NoError(t, err)
		assert.Equal(t, "abc", job.ID)

		calls := api.callsTo("POST", "/email/responses")
		require.Len(t, calls, 2)
		assert.GreaterOrEqual(t, calls[1].At.Sub(calls[0].At), 61*time.Second)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
			return nil, errors.New(errors.ErrorTypeAuthentication, "bad digest")
		})
		p := newTestPoller(t, api, clock)

		_, err := p.PostMetric(context.Background(), "clicked", "2021-03-01", "5")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
		assert.Len(t, api.callsTo("POST", "/email/responses"), 1)
	})

	t.Run("provider reply codes are not retried", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
			return nil, errors.New(errors.ErrorTypeProvider, "Invalid campaign (reply code 6003)")
		})
		p := newTestPoller(t, api, clock)

		_, err := p.PostMetric(context.Background(), "clicked", "2021-03-01", "5")
		require.Error(t, err)
		assert.False(t, errors.IsRateLimit(err))
		assert.Len(t, api.callsTo("POST", "/email/responses"), 1)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("response without id", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("POST", "/email/responses", func(apiCall) (interface{}, error) {
			return map[string]interface{}{}, nil
		})
		p := newTestPoller(t, api, clock)

		_, err := p.PostMetric(context.Background(), "clicked", "2021-03-01", "5")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}

func TestAwait(t *testing.T) {
	t.Run("polls until ready", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		polls := 0
		api.on("GET", "/email/7/responses", func(apiCall) (interface{}, error) {
			polls++
			switch polls {
			case 1:
				return "", nil
			case 2:
				return nil, nil
			case 3:
				return map[string]interface{}{}, nil
			}
			return map[string]interface{}{"contact_ids": []interface{}{float64(11), "12"}}, nil
		})
		p := newTestPoller(t, api, clock)

		result, err := p.Await(context.Background(), &Job{ID: "7"})
		require.NoError(t, err)
		assert.Equal(t, []string{"11", "12"}, result.ContactIDs)
		assert.False(t, result.NoMatches())
		assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.Sleeps())
	})

	t.Run("times out after ten polls", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("GET", "/email/7/responses", func(apiCall) (interface{}, error) {
			return "", nil
		})
		p := newTestPoller(t, api, clock)

		_, err := p.Await(context.Background(), &Job{ID: "7"})
		require.Error(t, err)

		var timeout *errors.JobTimeoutError
		require.True(t, errors.As(err, &timeout))
		assert.Equal(t, "7", timeout.JobID)
		assert.Equal(t, 10, timeout.Attempts)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
		assert.Len(t, api.callsTo("GET", "/email/7/responses"), 10)
		assert.Len(t, clock.Sleeps(), 9)
	})

	t.Run("zero matches", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("GET", "/email/7/responses", func(apiCall) (interface{}, error) {
			return map[string]interface{}{"contact_ids": []interface{}{""}}, nil
		})
		p := newTestPoller(t, api, clock)

		result, err := p.Await(context.Background(), &Job{ID: "7"})
		require.NoError(t, err)
		assert.True(t, result.NoMatches())
	})

	t.Run("poll error", func(t *testing.T) {
		clock := testutil.NewFakeClock(testEpoch)
		api := newFakeAPI(clock)
		api.on("GET", "/email/7/responses", func(apiCall) (interface{}, error) {
			return nil, errors.New(errors.ErrorTypeConnection, "reset by peer")
		})
		p := newTestPoller(t, api, clock)

		_, err := p.Await(context.Background(), &Job{ID: "7"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	})
}
