// Package connector holds the extraction engine and the pieces it is built from.
//
// The sub-packages are:
//
//   - core: the contracts the engine consumes (APIClient, Sink) and the stream ids.
//
//   - base: RetryPolicy, exponential backoff with a retry condition and an
//     injectable sleep.
//
//   - registry: sink factories looked up by output mode.
//
//   - sources/emarsys: field catalog resolution, page walking, the rate
//     limited job poller, the metric sync state machine and the stream
//     orchestrator.
//
// # Data Flow
//
//	Orchestrator ──► contacts / contact_lists / memberships / campaigns ──► Paginate ──► APIClient
//	     │                                                                   └─────────► Sink
//	     └──► MetricSync ──► JobPoller ──► WindowLimiter + APIClient
//	               └──► Sink, then state.Store (flush then checkpoint)
package connector
