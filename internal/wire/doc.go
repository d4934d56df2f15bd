// Package wire implements RocketSpeed's versioned wire protocol and codec
// (C10): message kinds, a length-tagged encoding, and the stream framing
// used by the transport layer.
//
// The framing and the varint/CRC encoding idiom both follow the same shape
// the broker's own logstore package uses for its on-disk record format
// (varint length prefix, big-endian fixed fields, explicit checksum) —
// applied here to wire frames instead of log records.
package wire
