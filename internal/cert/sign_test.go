package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestSign_Roundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	identity := "github.com/example/wiretap-modules/chatlog@v1.0.0"
	sig := Sign(priv, identity)

	if !ed25519.Verify(pub, identityDigest(identity), sig) {
		t.Error("signature verification failed with correct key")
	}
}

func TestSign_DifferentIdentityFailsVerification(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	sig := Sign(priv, "github.com/example/wiretap-modules/chatlog@v1.0.0")

	if ed25519.Verify(pub, identityDigest("github.com/example/wiretap-modules/other@v1.0.0"), sig) {
		t.Error("expected verification to fail for a different identity string")
	}
}
