// Package channel turns a raw byte stream into a confidential packet channel.
//
// Negotiation is an unauthenticated ephemeral X25519 exchange. Each peer sends
// a hello (magic, side, public key); the Initiator writes first and the
// Responder reads first, so no buffering is needed on either end. The raw
// shared secret keys AES-256 directly. After negotiation, Sender and Receiver
// carry protocol packets in CBC-encrypted frames whose IV chains across frames
// in each direction.
//
// The key pair and shared secret live only for one connection; reconnecting
// always negotiates again.
package channel
