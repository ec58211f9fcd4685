// Package daemon is the controller side of the rig link: it accepts link
// connections, negotiates the secure channel as the Responder and drives each
// announced link through the scripted test session.
package daemon
