package modem

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHNAPHMAC_Shape(t *testing.T) {
	digest := hnapHMAC("key", "message")

	if len(digest) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(digest))
	}
	if digest != strings.ToUpper(digest) {
		t.Error("digest should be uppercase")
	}
	if hnapHMAC("key", "message") != digest {
		t.Error("digest should be deterministic")
	}
	if hnapHMAC("key", "other") == digest {
		t.Error("different messages should produce different digests")
	}
	if hnapHMAC("other", "message") == digest {
		t.Error("different keys should produce different digests")
	}
}

func TestHNAPKeyDerivation(t *testing.T) {
	private := hnapPrivateKey("PUBKEY", "hunter2", "CHALLENGE")
	password := hnapLoginPassword(private, "CHALLENGE")

	// The private key is keyed on publicKey+password, so either input
	// changing must change the derived chain.
	if hnapPrivateKey("PUBKEY", "hunter3", "CHALLENGE") == private {
		t.Error("private key should depend on the password")
	}
	if hnapPrivateKey("OTHERKEY", "hunter2", "CHALLENGE") == private {
		t.Error("private key should depend on the public key")
	}
	if hnapLoginPassword(private, "OTHER") == password {
		t.Error("login password should depend on the challenge")
	}
}

func TestHNAPAuthHeader(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	header := hnapAuthHeader("withoutloginkey", "Login", now)

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		t.Fatalf("expected 'digest timestamp', got %q", header)
	}
	if len(parts[0]) != 32 {
		t.Errorf("expected 32 hex digest chars, got %d", len(parts[0]))
	}

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		t.Fatalf("timestamp not numeric: %v", err)
	}
	if want := now.UnixMilli() % 2000000000000; ts != want {
		t.Errorf("expected timestamp %d, got %d", want, ts)
	}

	// Header is timestamp-based, so a different instant yields a
	// different digest.
	other := hnapAuthHeader("withoutloginkey", "Login", now.Add(time.Second))
	if other == header {
		t.Error("auth header should vary with time")
	}
}
