// Package main hosts the fleet control plane entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and the /v1 surface for
//     jobs, services, run logs, and spider pools. Requests are validated, normalized
//     into spider domain records, and persisted before any external call.
//   - Dispatch: internal/dispatch.Orchestrator resolves a job or service into one
//     immutable crawl spec, creates the run log, and submits the spec to the crawl
//     ingestion endpoint. Submission failures are recorded in the run log rather
//     than surfaced to the caller; the record is the audit trail.
//   - Run state machine: internal/runlog.Machine owns every mutation of a run record
//     after creation. Operator actions (resume/pause/stop/start/cancel) reconcile
//     the persisted status against live fleet state before acting, poll on a fixed
//     interval while a pool converges, and give up with a conflict after a bounded
//     budget.
//   - Fleet: internal/fleet.Controller derives pool status fresh from the Redis
//     signal store and the external control command on every read. Nothing about
//     pool state is cached in this process.
//   - Scheduling: internal/schedule.Scheduler registers cron and one-shot date
//     triggers for enabled jobs and re-resolves the job at fire time, so edits
//     between firings apply to the next run.
//   - Configuration & plumbing: Viper populates config from env/files with the
//     SPIDERCTL prefix; zap provides structured logging; Prometheus counters track
//     dispatches, executor commands, reconciliations, and trigger firings, exported
//     via /metrics.
//
// Operational notes:
//   - The external control command (executor.command) and the Redis instance are
//     hard dependencies: /readyz fails when the fleet executor cannot report pools.
//   - Storage is selectable: storage.driver=postgres for durable records,
//     storage.driver=memory for local development.
//   - Run locally: go run ./cmd/spiderctl -config config.yaml (or rely solely on
//     SPIDERCTL_* env overrides). The process reacts to SIGTERM for graceful drain.
package main
