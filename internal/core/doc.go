// Package core runs the address normalization pipeline.
//
// It holds the domain logic independent of any transport, so the HTTP
// server, the CLI and tests drive the same [Service].
//
// # Pipeline
//
// [Service.NormalizeRecord] runs the per-row stages in a fixed order:
//
//  1. Country pre-resolution from the raw value (no ZIP inference)
//  2. ZIP normalization, validated against the pre-resolved country
//  3. Country resolution, falling back to the ZIP-inferred country
//  4. Locality, street, district and region normalization
//  5. Assembly of the normalized address string
//
// [Service.Enrich] optionally sends the assembled string to an external
// parser and overwrites fields only with values that survive their own
// normalizer. An unavailable parser never fails a row.
//
// # Batches
//
// [Service.NormalizeBatch] fans rows out over a bounded worker group while
// keeping input order, diffs every report field against its raw value
// ([TrackChanges]) and renders a [Report]. Finished batches stay in a
// bounded in-memory registry for the report endpoints and are handed to a
// [ChangeLog] when one is configured.
//
// # Errors
//
// Technical errors are mapped to user-facing messages with support codes by
// [MapError]:
//
//   - FILE001-FILE005: file errors (size, format, encoding)
//   - UPL001-UPL005: upload errors (busy, expired batch, cancelled, timeout)
//   - REQ001-REQ002: single-record request errors
//   - ENR001-ENR002: enrichment errors
//   - RULE001: rule profile errors
package core
