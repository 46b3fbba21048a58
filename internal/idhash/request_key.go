package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeRequestKey scopes a client-supplied idempotency key to an agent.
// Formula: SHA256(agent_id|client_key)
// Returns base58-encoded hash.
func ComputeRequestKey(agentID, clientKey string) string {
	data := fmt.Sprintf("%s|%s", agentID, clientKey)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// ComputeAutoTradeKey derives the idempotency key for executing a
// recommendation unattended, so a retried sweep never executes it twice.
// Formula: SHA256(auto|agent_id|recommendation_id)
// Returns base58-encoded hash.
func ComputeAutoTradeKey(agentID, recommendationID string) string {
	data := fmt.Sprintf("auto|%s|%s", agentID, recommendationID)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
