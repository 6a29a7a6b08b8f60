// Package voynich implements anonymous, end-to-end encrypted, authenticated
// peer-to-peer chat over onion services.
//
// A participant's stable identity is the id of an onion service it controls.
// Connect and Accept run the session handshake over any byte-stream
// transport (normally a Tor connection from the tor subpackage): both sides
// exchange fresh X25519 ephemerals, derive directional ChaCha20-Poly1305
// keys via HKDF, and prove ownership of their onion ids by signing the
// session transcript with the service's long-term ed25519 key. The returned
// Session frames, pads, encrypts and orders chat messages until either side
// says goodbye.
package voynich
