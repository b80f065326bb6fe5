// Package core defines the contracts between the extraction engine and its
// collaborators: the API client, the record sink and the stream ids.
package core

import (
	"context"
	"net/url"
)

// Record is one semi-structured output record.
type Record = map[string]interface{}

// Stream ids
const (
	StreamContacts               = "contacts"
	StreamContactLists           = "contact_lists"
	StreamContactListMemberships = "contact_list_memberships"
	StreamCampaigns              = "campaigns"
	StreamMetrics                = "metrics"
)

// StreamOrder is the fixed dependency order in which streams sync.
// contact_lists feeds memberships and campaigns feeds metrics.
var StreamOrder = []string{
	StreamContacts,
	StreamContactLists,
	StreamContactListMemberships,
	StreamCampaigns,
	StreamMetrics,
}

// IsStream reports whether id names a known stream
func IsStream(id string) bool {
	for _, s := range StreamOrder {
		if s == id {
			return true
		}
	}
	return false
}

// APIClient issues authenticated requests and decodes the response payload
// into out. Rate limit rejections are reported as errors.ErrorTypeRateLimit,
// transport failures as errors.ErrorTypeConnection.
type APIClient interface {
	Get(ctx context.Context, path string, params url.Values, out interface{}) error
	Post(ctx context.Context, path string, body interface{}, out interface{}) error
}

// Sink receives records in order. Write is called once per flushed batch.
type Sink interface {
	// WriteSchema announces a stream's JSON schema before its records
	WriteSchema(ctx context.Context, stream string, schema interface{}, keyProperties []string) error
	// Write emits records for stream, preserving order
	Write(ctx context.Context, stream string, records []Record) error
	// Close flushes buffered output
	Close() error
}
