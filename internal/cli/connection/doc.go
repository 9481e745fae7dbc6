// Package connection provides the node protocol client of dirmesh-cli.
//
// A Client opens one framed connection per command, over TLS when
// configured, and decodes the replies: acknowledgements, result streams
// with their terminator, fetched file bytes and subscription pushes.
package connection
