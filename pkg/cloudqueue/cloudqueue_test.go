package cloudqueue

import (
	"context"
	"testing"

	"github.com/atsika/poolbridge/pkg/scheduler"
)

func TestChanRelayEnqueueDrain(t *testing.T) {
	r := NewChanRelay(nil)
	ctx := context.Background()

	_ = r.Enqueue(ctx, scheduler.Command{Topic: "a"})
	_ = r.Enqueue(ctx, scheduler.Command{Topic: "b"})

	got, err := r.Drain(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Topic != "a" || got[1].Topic != "b" {
		t.Fatalf("unexpected drain result: %+v", got)
	}

	got, _ = r.Drain(ctx)
	if len(got) != 0 {
		t.Fatalf("expected empty drain after exhausting the relay, got %+v", got)
	}
}

func TestChanRelayDropsNewestWhenFull(t *testing.T) {
	r := NewChanRelay(nil)
	ctx := context.Background()
	for i := 0; i < QueueDepth+5; i++ {
		_ = r.Enqueue(ctx, scheduler.Command{Topic: "x"})
	}
	got, _ := r.Drain(ctx)
	if len(got) != QueueDepth {
		t.Fatalf("expected exactly QueueDepth commands retained, got %d", len(got))
	}
}

// TestNoiseSealUnsealRoundTrip verifies a self-contained N-pattern envelope
// sealed with only the responder's public key can be unsealed with the
// responder's full keypair, with no interactive round trip.
func TestNoiseSealUnsealRoundTrip(t *testing.T) {
	keys, err := NewResponderKeys()
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}

	envelope, err := seal(keys.PublicKey(), []byte("circuit/pool/set=ON"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := unseal(keys, envelope)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if string(plain) != "circuit/pool/set=ON" {
		t.Fatalf("unexpected plaintext: %q", plain)
	}
}

// TestNoiseUnsealRejectsWrongKey confirms a message sealed for one responder
// cannot be unsealed by a different keypair.
func TestNoiseUnsealRejectsWrongKey(t *testing.T) {
	keys, err := NewResponderKeys()
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}
	otherKeys, err := NewResponderKeys()
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}

	envelope, err := seal(keys.PublicKey(), []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := unseal(otherKeys, envelope); err == nil {
		t.Fatal("expected unseal with the wrong keypair to fail")
	}
}
