// Package memory provides the in-memory resource directory for dirmesh.
//
// State lives only in memory and is lost on restart.
//
// Thread Safety:
//
// A single RWMutex guards each Directory. Read operations use RLock,
// write operations use Lock. The lock is never held across network I/O:
// callers that stream results snapshot them first.
package memory
