package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"address", "0xabc",
		"signature", "0xdeadbeef",
		"stripe_secret", "whsec_123",
		"session_id", "cs_test_1",
	})
	if len(out) != 8 {
		t.Fatalf("len: want=8 got=%d", len(out))
	}
	if out[1] != "0xabc" {
		t.Fatalf("address: want=%q got=%v", "0xabc", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Fatalf("signature: want=[REDACTED] got=%v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Fatalf("stripe_secret: want=[REDACTED] got=%v", out[5])
	}
	hashed, _ := out[7].(string)
	if len(hashed) != len("hash:")+12 {
		t.Fatalf("session_id: want hashed value got=%v", out[7])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"tier", "pro", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", out)
	}
}

func TestSanitizeKVsCatchesSignatureShapes(t *testing.T) {
	sig := "0x" + strings.Repeat("ab", 65)
	tx := "0x" + strings.Repeat("cd", 32)
	out := sanitizeKVs([]interface{}{"payload", sig, "tx_hash", tx, "nonce", "n-1"})
	if out[1] != "[REDACTED]" {
		t.Fatalf("signature value: want=[REDACTED] got=%v", out[1])
	}
	if out[3] != tx {
		t.Fatalf("tx hash: want=%q got=%v", tx, out[3])
	}
	if s, _ := out[5].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("nonce: want hashed got=%v", out[5])
	}
}
