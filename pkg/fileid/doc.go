// Package fileid implements the composite identifier scheme used across
// all federated storage operations.
//
// Every file and folder reference that crosses the public API is an
// opaque string encoding the tuple {service, account, folder, file}.
// The codec guarantees lossless round-trips: segments are URL-escaped so
// backend identifiers may contain any character, including the "/" and
// "://" delimiters of the canonical form.
//
// For compatibility with identifiers that predate federation, a bare
// "folder/file" pair parses as a reference into the built-in infostore
// account.
package fileid
