// Package crypto implements the cryptographic primitives underlying node
// identity, message authenticity, and content-addressing for the mesh.
//
// This package provides two distinct, cryptographically unrelated key
// pair types for two distinct concerns: [Identity] (Ed25519) signs and
// verifies wire messages, while [KeyPair] (NaCl crypto_box / Curve25519)
// performs the Noise XX static Diffie-Hellman exchange a transport
// session negotiates over. A node generates one of each; neither is
// derivable from the other, and a KeyPair's fields must never be fed to
// Sign/Verify or an Identity's fields to the Noise handshake.
//
// Also provided: a NodeId derived from the long-term signing public key
// and used as the domain of the Kademlia XOR metric, and a content hash
// over the canonical message encoding that serves as the relay's
// deduplication key.
//
// # Core Types
//
//   - [Identity]: Ed25519 signing key pair, the node's long-term identity
//   - [KeyPair]: NaCl crypto_box key pair (Curve25519), for Noise DH only
//   - [NodeID]: fixed-width identifier derived from the signing public key
//   - [Nonce]: 24-byte random nonce for encryption operations
//   - [Signature]: Ed25519 signature
//
// # Encryption and Decryption
//
//	nonce, _ := crypto.GenerateNonce()
//	ciphertext, _ := crypto.Encrypt(plaintext, nonce, peerPublicKey, myPrivateKey)
//	plaintext, _ := crypto.Decrypt(ciphertext, nonce, peerPublicKey, myPrivateKey)
//
// # Identity
//
//	id, _ := crypto.GenerateIdentity()
//	nodeID := crypto.NodeIDFromPublicKey(id.Public)
//	fmt.Println(nodeID.String()) // normalized lowercase hex
//
// # Digital Signatures
//
//	signature, _ := crypto.Sign(message, id.Private)
//	valid, _ := crypto.Verify(message, signature, id.Public)
//
// # Secure Memory Handling
//
// Sensitive data should be wiped after use:
//
//	defer crypto.SecureWipe(sensitiveData)
//
// The [SecureWipe] function uses a constant-time XOR that the compiler
// cannot optimize away, ensuring memory is actually zeroed.
package crypto
