// Package main provides the entry point for dirmesh-cli.
//
// dirmesh-cli sends single commands to a DirMesh node: publish, remove and
// share resources, query the directory, fetch shared files, exchange
// server lists and subscribe to new resources.
//
// Usage:
//
//	dirmesh-cli [global flags] COMMAND [flags]
//	dirmesh-cli -s node1:3780 query --relay --tags docs
package main
