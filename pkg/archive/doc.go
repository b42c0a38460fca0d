// Package archive copies finished rollup runs to object storage.
//
// S3Archiver implements analytics.RollupArchiver. Each run becomes one JSON
// document keyed by period and bucket start:
//
//	<prefix>rollups/<period>/<bucket-start>.json
//
// Re-running a bucket overwrites its document, matching the upsert semantics of
// the rollup store. Any S3-compatible endpoint works (MinIO, LocalStack) when
// Endpoint and UsePathStyle are set.
package archive
