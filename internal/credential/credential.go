// Package credential derives per-protocol upstream credentials from a
// subscription's access_key (§4.F). Derivation is a pure function of
// access_key and protocol so the same credential is produced independent of
// which node or tick computes it, and changes only when access_key rotates.
package credential

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// namespace fixes the UUID v5 namespace for credential derivation; it has no
// meaning beyond being a stable constant every derivation call agrees on.
var namespace = uuid.MustParse("6f6e9f6a-9b1e-4f6e-8c2e-0f1a2b3c4d5e")

// UUID derives a stable per-protocol UUID from an access_key (vless/vmess
// credential). Different protocols yield independent UUIDs for the same key.
func UUID(accessKey, protocol string) string {
	return uuid.NewSHA1(namespace, []byte(accessKey+protocol)).String()
}

// Password derives a stable 16-byte hex password from an access_key, for
// protocols that use shared-secret auth instead of a UUID (trojan, ss).
func Password(accessKey, protocol string) string {
	sum := sha256.Sum256([]byte(accessKey + protocol))
	return hex.EncodeToString(sum[:16])
}
