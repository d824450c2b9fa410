// Package cloudqueue implements the durable command relay: an alternative
// to the in-process `to-pool` channel (spec §5 IngressFromIP) that survives
// a process restart by parking commands in an Azure Storage queue,
// end-to-end encrypted with the Noise Protocol. Adapted from the teacher's
// crypto.go (Noise session wrapper) and azqueue.go (queue-backed transport),
// generalized from a general-purpose interactive connection transport to a
// one-way, self-contained envelope suited to a durable, asynchronous queue:
// each command is its own complete Noise `N` handshake message, so no live
// round-trip with the consumer is required to seal it.
package cloudqueue

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
)

var defaultCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

// ResponderKeys is the long-lived static keypair the relay's consumer
// generates once at startup (spec §4.12: "pre-shared ... established once
// at startup"). Its public half must reach the producer side
// (NewAzureRelayProducer) out of band; pkg/config carries no field for it.
type ResponderKeys struct {
	dh noise.DHKey
}

// NewResponderKeys generates a fresh static keypair.
func NewResponderKeys() (ResponderKeys, error) {
	dh, err := defaultCipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return ResponderKeys{}, fmt.Errorf("cloudqueue: keypair generation failed: %w", err)
	}
	return ResponderKeys{dh: dh}, nil
}

// PublicKey returns the 32-byte public key to distribute to initiators.
func (k ResponderKeys) PublicKey() []byte { return k.dh.Public }

// seal encrypts plaintext into a single self-contained Noise N handshake
// message addressed to the responder identified by responderPub. No state
// is retained between calls — callers may seal as many independent commands
// as they like with only the responder's public key.
func seal(responderPub, plaintext []byte) ([]byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   defaultCipherSuite,
		Pattern:       noise.HandshakeN,
		Initiator:     true,
		PeerStatic:    responderPub,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudqueue: handshake init failed: %w", err)
	}
	msg, _, _, err := hs.WriteMessage(nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("cloudqueue: seal failed: %w", err)
	}
	return msg, nil
}

// unseal decrypts one envelope produced by seal, using the responder's
// static keypair.
func unseal(keys ResponderKeys, envelope []byte) ([]byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   defaultCipherSuite,
		Pattern:       noise.HandshakeN,
		Initiator:     false,
		StaticKeypair: keys.dh,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudqueue: handshake init failed: %w", err)
	}
	plaintext, _, _, err := hs.ReadMessage(nil, envelope)
	if err != nil {
		return nil, fmt.Errorf("cloudqueue: unseal failed: %w", err)
	}
	return plaintext, nil
}
