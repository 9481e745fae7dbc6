// Package domain defines the core domain models for dirmesh.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Resource: directory entry, template matching and outgoing copies
//   - Peer: federation node address
//   - Command: the closed set of protocol requests and their decoder
//   - Response, ResultSize: acknowledgements and stream terminators
//   - Errors: domain error codes and wire messages
package domain
