package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	defaultNamespace = "vdl"

	idempotencyPrefix = "idempotency"
	webhookPrefix     = "webhook"
	lockPrefix        = "lock"

	// Parts longer than this are replaced by their digest.
	maxKeyPart = 96
)

// keyspace builds colon-separated keys under one namespace. The zero value
// uses the default namespace.
type keyspace struct {
	namespace string
}

func (k keyspace) build(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) > maxKeyPart {
			sum := sha256.Sum256([]byte(part))
			part = hex.EncodeToString(sum[:16])
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces one client key within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys.build(idempotencyPrefix, scope, id)
}

// WebhookKey identifies one provider delivery; status is case-folded so
// "Complete" and "COMPLETE" dedupe together.
func (c *Client) WebhookKey(provider, reference, status string) string {
	return c.keys.build(webhookPrefix, provider, reference, strings.ToLower(status))
}

// LockKey names the key guarding an exclusive job.
func (c *Client) LockKey(name string) string {
	return c.keys.build(lockPrefix, name)
}
