package ws

import "testing"

func TestAcceptKeyDeterminism(t *testing.T) {
	// The canonical example from RFC 6455 §1.3.
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

	got := acceptKey(key)
	if got != want {
		t.Fatalf("acceptKey(%q) = %q, want %q", key, got, want)
	}
}

func TestAcceptKeyVariesWithInput(t *testing.T) {
	a := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	b := acceptKey("w3CJHMbDL2EzLkh9GBhXDw==")
	if a == b {
		t.Fatalf("acceptKey should differ for different keys")
	}
}
