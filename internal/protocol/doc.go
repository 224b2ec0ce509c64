// Package protocol implements the line-oriented client protocol: it reads commands from a client
// connection, dispatches them, and writes "+" or "-" prefixed replies.
package protocol
