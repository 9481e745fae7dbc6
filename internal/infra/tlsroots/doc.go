// Package tlsroots provides TLS certificate management for DirMesh.
//
//   - roots.go: CA pools and the server/client configurations of a node
//   - watcher.go: Certificate hot-reload via fsnotify
package tlsroots
