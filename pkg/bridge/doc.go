// Package bridge moves payloads between a key-addressed blob store (S3) and a
// content-addressed store (IPFS) and keeps a durable mapping between the two
// addresses.
//
// The Service interface exposes transfer-in (blob store to content store),
// transfer-out (content store to blob store), mapping queries, and read-only
// pass-through access to both stores. Repository, BlobStore and ContentStore
// implementations live in subpackages (repo/memory, repo/postgres,
// storage/s3, storage/fs, storage/memory, contentstore/pinata,
// contentstore/memory, contentstore/cache).
//
// # Mapping Consistency
//
// A blob key maps to exactly one content identifier and a content identifier
// is bound to at most one blob key. Repositories enforce both with unique
// constraints; the service treats a duplicate blob key on insert as the
// idempotent case and returns the stored mapping, and treats a content
// identifier already bound to another key as a conflict.
//
// # Metadata Strategy
//
// Well-known attributes from either store (content store id, display name,
// network, file count, timestamps) are first-class fields on MappingRecord.
// Free-form blob store headers go into MappingRecord.Metadata, a flat
// string-to-string map persisted in a side table.
package bridge
