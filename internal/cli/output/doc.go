// Package output renders dirmesh-cli results as tables, JSON or YAML and
// draws the transfer progress of FETCH.
package output
