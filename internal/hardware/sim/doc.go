// Package sim provides in-memory rig hardware for host builds of the link
// runtime and for tests. Every device records what it was asked to do.
package sim
