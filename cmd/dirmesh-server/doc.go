// Package main provides the entry point for dirmesh-server.
//
// dirmesh-server runs one node of a DirMesh federation: it keeps a
// directory of published and shared resources, answers queries, streams
// shared files, gossips its peer list and relays queries and subscriptions
// to its peers.
//
// Usage:
//
//	dirmesh-server [flags]
//	dirmesh-server --config /etc/dirmesh/server.yaml
//
// Settings are read from the defaults, the YAML file, DIRMESH_* environment
// variables and finally the command line flags.
package main
