// Package demux is the public entry point for demultiplexing broadcast
// streams: MMT/TLV as used by ISDB-S3 and the legacy MPEG-2 transport
// stream variant.
//
// A session is created with NewTLVReader or NewTSReader, listeners are
// attached to the typed topics returned by Events, and raw bytes are fed
// with Push in chunks of any size. Decoding happens synchronously inside
// Push, and only for topics that have at least one subscriber (tables the
// session needs for its own bookkeeping excepted).
//
// Byte slices inside published values may alias the pushed buffer and are
// valid only for the duration of the handler. Copy them to retain them.
package demux
