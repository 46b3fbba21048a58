package idhash

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

func TestComputeRequestKey(t *testing.T) {
	a := ComputeRequestKey("agent1", "key-1")
	b := ComputeRequestKey("agent1", "key-1")
	if a != b {
		t.Errorf("not deterministic: %s vs %s", a, b)
	}
	if a == ComputeRequestKey("agent2", "key-1") {
		t.Error("same client key on another agent must differ")
	}

	raw, err := base58.Decode(a)
	if err != nil || len(raw) != 32 {
		t.Errorf("expected 32-byte base58 digest, got %d bytes, err %v", len(raw), err)
	}
}

func TestComputeAutoTradeKey(t *testing.T) {
	if ComputeAutoTradeKey("a", "r1") == ComputeAutoTradeKey("a", "r2") {
		t.Error("different recommendations must produce different keys")
	}
	if ComputeAutoTradeKey("a", "r1") == ComputeRequestKey("a", "r1") {
		t.Error("auto keys must not collide with client keys")
	}
}

func TestNewAPIToken(t *testing.T) {
	token, hash, err := NewAPIToken()
	if err != nil {
		t.Fatalf("NewAPIToken failed: %v", err)
	}
	if !strings.HasPrefix(token, APITokenPrefix) {
		t.Errorf("token %q missing prefix", token)
	}
	if len(hash) != 64 || hash != HashAPIToken(token) {
		t.Errorf("hash mismatch: %s", hash)
	}

	other, _, _ := NewAPIToken()
	if other == token {
		t.Error("tokens must be random")
	}
}
