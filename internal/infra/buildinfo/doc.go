// Package buildinfo provides build information for DirMesh.
//
// Version, commit and build time are injected via ldflags:
//
//	go build -ldflags "-X .../buildinfo.Version=1.0.0 -X .../buildinfo.Commit=abc123"
//
// Both binaries print it for --version and the admin endpoint reports it
// from /healthz.
package buildinfo
