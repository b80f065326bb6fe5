// Package state persists the tap's resumable position.
//
// A Document holds the stream completion marker and the metrics bookmark.
// Its JSON form is stable across releases:
//
//	{
//	  "last_synced_stream": "campaigns",
//	  "bookmarks": {
//	    "metrics": {
//	      "campaigns_to_resume": ["5", "9"],
//	      "metrics_to_resume": ["clicked", "bounced"],
//	      "date_to_resume": "2021-03-02",
//	      "last_metric_date": "2021-02-28"
//	    }
//	  }
//	}
package state

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// Document is the persisted checkpoint.
type Document struct {
	// LastSyncedStream is the last stream fully completed in the current
	// attempt, nil once the whole sequence has finished.
	LastSyncedStream *string   `json:"last_synced_stream"`
	Bookmarks        Bookmarks `json:"bookmarks"`
}

// Bookmarks holds per-stream bookmarks. Only metrics is incremental.
type Bookmarks struct {
	Metrics MetricsBookmark `json:"metrics"`
}

// MetricsBookmark is the resume point of the metric sync.
type MetricsBookmark struct {
	// CampaignsToResume lists the remaining campaigns, current one first
	CampaignsToResume []string `json:"campaigns_to_resume,omitempty"`
	// MetricsToResume lists the remaining metrics of the current campaign
	MetricsToResume []string `json:"metrics_to_resume,omitempty"`
	// DateToResume is the next date to process (YYYY-MM-DD)
	DateToResume string `json:"date_to_resume,omitempty"`
	// LastMetricDate is the end date of the last complete pass (YYYY-MM-DD)
	LastMetricDate string `json:"last_metric_date,omitempty"`
}

// InProgress reports whether an interrupted pass left a resume point
func (b MetricsBookmark) InProgress() bool {
	return len(b.CampaignsToResume) > 0
}

// Cleared returns an empty bookmark recording a completed pass through
// lastMetricDate
func (MetricsBookmark) Cleared(lastMetricDate string) MetricsBookmark {
	return MetricsBookmark{LastMetricDate: lastMetricDate}
}

// New returns an empty document
func New() *Document {
	return &Document{}
}

// Marker returns the completion marker or "" when unset
func (d *Document) Marker() string {
	if d.LastSyncedStream == nil {
		return ""
	}
	return *d.LastSyncedStream
}

// SetMarker sets the completion marker. An empty id clears it.
func (d *Document) SetMarker(stream string) {
	if stream == "" {
		d.LastSyncedStream = nil
		return
	}
	s := stream
	d.LastSyncedStream = &s
}

// Clone returns a deep copy
func (d *Document) Clone() *Document {
	out := &Document{Bookmarks: d.Bookmarks}
	if d.LastSyncedStream != nil {
		out.SetMarker(*d.LastSyncedStream)
	}
	m := &out.Bookmarks.Metrics
	m.CampaignsToResume = cloneStrings(d.Bookmarks.Metrics.CampaignsToResume)
	m.MetricsToResume = cloneStrings(d.Bookmarks.Metrics.MetricsToResume)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Encode serializes the document
func Encode(d *Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to encode state")
	}
	return data, nil
}

// Decode parses a document. Empty input yields an empty document.
func Decode(data []byte) (*Document, error) {
	doc := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to decode state")
	}
	return doc, nil
}
