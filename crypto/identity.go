package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Identity is a node's long-term Ed25519 signing key pair. It is
// cryptographically independent of [KeyPair] (a NaCl crypto_box/X25519
// pair): the two serve different concerns — Identity authenticates wire
// messages, KeyPair performs the Noise XX static Diffie-Hellman exchange
// a transport session negotiates over. Neither is derivable from the
// other; a node generates one of each.
type Identity struct {
	Public  [32]byte
	Private [32]byte // Ed25519 seed, per ed25519.NewKeyFromSeed
}

// GenerateIdentity creates a new random Ed25519 signing identity.
func GenerateIdentity() (*Identity, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateIdentity",
		"package":  "crypto",
	})

	logger.Info("Function entry: generating new Ed25519 signing identity")

	defer func() {
		logger.Debug("Function exit: GenerateIdentity")
	}()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":      err.Error(),
			"error_type": "key_generation_failed",
			"operation":  "ed25519.GenerateKey",
		}).Error("Failed to generate signing identity")
		return nil, err
	}

	id := &Identity{}
	copy(id.Public[:], publicKey)
	copy(id.Private[:], privateKey.Seed())

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", id.Public[:8]),
		"operation":          "identity_generation_success",
	}).Info("Ed25519 signing identity generated successfully")

	return id, nil
}

// IdentityFromSeed reconstructs an Identity from an existing 32-byte
// Ed25519 seed, deriving the matching public key.
func IdentityFromSeed(seed [32]byte) (*Identity, error) {
	if isZeroKey(seed) {
		return nil, errors.New("invalid identity seed: all zeros")
	}
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	id := &Identity{Private: seed}
	copy(id.Public[:], privateKey.Public().(ed25519.PublicKey))
	return id, nil
}
