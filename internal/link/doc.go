// Package link is the rig side of the protocol. A Runtime owns the rig
// hardware through a fixed set of tasks and repeatedly connects to the
// daemon, negotiates as the Initiator, announces itself and carries out
// whatever the daemon asks until the session ends.
package link
