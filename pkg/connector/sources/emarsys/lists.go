package emarsys

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// syncContactLists fetches every contact list and returns them transformed.
// Records are flushed only when emit is set.
func (s *Source) syncContactLists(ctx context.Context, emit bool) ([]core.Record, error) {
	var raw []core.Record
	if err := s.client.Get(ctx, "/contactlist", nil, &raw); err != nil {
		return nil, err
	}

	lists := make([]core.Record, 0, len(raw))
	for _, r := range raw {
		t, err := BaseTransform(r, "created")
		if err != nil {
			return nil, err
		}
		lists = append(lists, t)
	}

	if emit {
		if err := s.flush(ctx, core.StreamContactLists, lists); err != nil {
			return nil, err
		}
	}
	s.logger.Info("contact lists synced", zap.Int("records", len(lists)), zap.Bool("emitted", emit))
	return lists, nil
}

// syncMemberships walks the members of every contact list, in list order
func (s *Source) syncMemberships(ctx context.Context, lists []core.Record) error {
	for _, list := range lists {
		listID := list["id"]
		id := idString(listID)
		if id == "" {
			return errors.New(errors.ErrorTypeData, "contact list without id")
		}

		path := fmt.Sprintf("/contactlist/%s/", url.PathEscape(id))
		members := 0
		_, err := Paginate(ctx, core.StreamContactListMemberships, s.config.Sync.MembershipsPageSize, func(ctx context.Context, cursor PageCursor) (int, error) {
			params := url.Values{}
			params.Set("limit", strconv.Itoa(cursor.Limit))
			params.Set("offset", strconv.Itoa(cursor.Offset))

			var contactIDs []interface{}
			if err := s.client.Get(ctx, path, params, &contactIDs); err != nil {
				return 0, err
			}

			records := make([]core.Record, 0, len(contactIDs))
			for _, contactID := range contactIDs {
				records = append(records, core.Record{
					"contact_list_id": listID,
					"contact_id":      contactID,
				})
			}
			if err := s.flush(ctx, core.StreamContactListMemberships, records); err != nil {
				return 0, err
			}
			members += len(contactIDs)
			return len(contactIDs), nil
		})
		if err != nil {
			return fmt.Errorf("contact list %s: %w", id, err)
		}
		s.logger.Debug("contact list members synced", zap.String("contact_list_id", id), zap.Int("records", members))
	}
	return nil
}
