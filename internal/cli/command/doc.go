// Package command defines the dirmesh-cli commands.
//
// Each command opens one connection to the node given by --server, sends
// a single protocol command and prints the outcome in the format chosen
// by --output. subscribe keeps its connection open until interrupted.
package command
