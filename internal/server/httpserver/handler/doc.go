// Package handler provides the HTTP handlers of the DirMesh admin
// endpoint: node health and the peer lists of each federation.
package handler
