// Package wire implements the dirmesh framing protocol.
//
// Every message is one JSON document preceded by its byte length as an
// unsigned 16-bit big-endian integer. Streamed responses mix frame shapes
// without an envelope, so a receiver tries one type against the pending
// frame and falls back to another: DecodeAs keeps the frame pending on a
// structural mismatch. File contents follow their metadata frame as raw,
// unframed bytes.
package wire
