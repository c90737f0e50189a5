package charter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest returns "sha256:<hex>" over the RFC 8785 canonical JSON form
// of the charter. Two charters with the same content share a digest
// regardless of YAML key order or formatting.
func (c *Config) Digest() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding charter: %w", err)
	}
	return CanonicalDigest(raw)
}

// CanonicalDigest canonicalises a JSON document and hashes it.
func CanonicalDigest(raw []byte) (string, error) {
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalising json: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
