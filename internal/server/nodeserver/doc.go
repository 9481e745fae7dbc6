// Package nodeserver provides the client and peer listener of a DirMesh
// node.
//
// Every connection carries one command. The first frame is decoded and
// dispatched through a fixed table; the handler answers and the
// connection closes. A SUBSCRIBE turns the connection persistent: it then
// accepts only SUBSCRIBE and UNSUBSCRIBE while matching resources are
// pushed to it, until either side closes.
//
// Connections from an address that connected less than the configured
// interval ago are closed before anything is read.
package nodeserver
