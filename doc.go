// Package emarsystap is an incremental extractor for the Emarsys marketing
// API. It reads contacts, contact lists, list memberships, campaigns and
// per-contact campaign metrics, and writes them as Singer messages or as
// compressed JSON Lines files.
//
// # Architecture
//
// A run is driven by internal/pipeline, which builds the pieces below from a
// single config.TapConfig and hands them to the source:
//
//   - clients: the WSSE-authenticated API client and the process-wide window
//     limiter used for metric jobs.
//   - connector/sources/emarsys: the stream orchestrator, the page walker,
//     the job poller and the metric sync state machine.
//   - state: the checkpoint document and its file, Redis and PostgreSQL
//     stores.
//   - sink: Singer and file record sinks.
//   - catalog: stream selection and discovery output.
//
// # Resumability
//
// Every unit of work is flushed to the sink before its checkpoint is
// written. A run interrupted at any point resumes from the last checkpoint
// and emits each record at least once.
//
// # Quick Start
//
//	emarsys-tap discover --config tap.yaml > catalog.json
//	# mark streams selected in catalog.json
//	emarsys-tap sync --config tap.yaml --catalog catalog.json
//
// Credentials can also come from EMARSYS_USERNAME and EMARSYS_SECRET or a
// .env file.
package emarsystap
