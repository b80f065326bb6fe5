package emarsys

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
)

// syncCampaigns fetches all campaigns including deleted ones and returns
// them transformed. Records are flushed only when emit is set; metrics
// need the campaign list either way.
func (s *Source) syncCampaigns(ctx context.Context, emit bool) ([]core.Record, error) {
	params := url.Values{}
	params.Set("showdeleted", "1")

	var raw []core.Record
	if err := s.client.Get(ctx, "/email/", params, &raw); err != nil {
		return nil, err
	}

	campaigns := make([]core.Record, 0, len(raw))
	for _, r := range raw {
		t, err := BaseTransform(r, "created", "deleted")
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, t)
	}

	if emit {
		if err := s.flush(ctx, core.StreamCampaigns, campaigns); err != nil {
			return nil, err
		}
	}
	s.logger.Info("campaigns synced", zap.Int("records", len(campaigns)), zap.Bool("emitted", emit))
	return campaigns, nil
}

// activeCampaignIDs returns the ids of campaigns without a deletion date,
// in collection order
func activeCampaignIDs(campaigns []core.Record) []string {
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		if c["deleted"] != nil {
			continue
		}
		if id := idString(c["id"]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
