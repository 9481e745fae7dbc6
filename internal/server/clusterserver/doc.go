// Package clusterserver provides the federation layer of a DirMesh node.
//
// A node belongs to one federation per listener: the plain one and, when
// TLS is configured, the secure one. Each federation keeps its own peer
// set and runs:
//
//   - PeerDirectory: the known peers, merged from EXCHANGE commands
//   - Exchanger: the periodic gossip round with one random peer
//   - QueryRelay: parallel fan-out of relayed QUERY commands
//   - SubscriptionRelay: persistent subscription links to every peer
//
// All peer traffic uses the node protocol from package wire.
package clusterserver
