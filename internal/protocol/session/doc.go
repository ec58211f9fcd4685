// Package session owns link<->daemon connection policy shared by both peers.
//
// Ownership boundary:
// - connect/handshake/read deadlines
// - reconnect backoff between session attempts
package session
