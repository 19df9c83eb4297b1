package api

import (
	"strings"
	"testing"
)

func TestHashAndVerifyKey(t *testing.T) {
	stored, err := HashKey("secret-key")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(stored, "argon2id$") {
		t.Fatalf("stored format = %q", stored)
	}
	if !VerifyKey("secret-key", stored) {
		t.Error("correct key rejected")
	}
	if VerifyKey("wrong-key", stored) {
		t.Error("wrong key accepted")
	}
}

func TestHashKeySaltsDiffer(t *testing.T) {
	a, _ := HashKey("secret-key")
	b, _ := HashKey("secret-key")
	if a == b {
		t.Error("two hashes of the same key should differ by salt")
	}
}

func TestVerifyKeyMalformedStored(t *testing.T) {
	for _, stored := range []string{"", "argon2id$only-two", "md5$abc$def", "argon2id$!!$!!"} {
		if VerifyKey("secret-key", stored) {
			t.Errorf("malformed hash %q verified", stored)
		}
	}
}
