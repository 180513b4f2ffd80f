package state

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Standard-library crypto/hmac and crypto/sha256 are used directly
// here rather than a third-party signing library: this is a single,
// narrowly-scoped MAC-and-verify operation with no key management,
// rotation, or alternative-algorithm requirement that would justify
// pulling in an external JWT/paseto-style library, and hmac/sha256 are
// exactly what the standard library is for (see DESIGN.md).

// ErrExpired is returned by Verify when a snapshot's TTL has elapsed.
var ErrExpired = errors.New("state: snapshot has expired")

// ErrSignatureMismatch is returned by Verify when the HMAC does not
// match the recomputed value, meaning the blob was tampered with or
// signed under a different key.
var ErrSignatureMismatch = errors.New("state: signature mismatch")

// ErrChecksumMismatch is returned by Verify when the embedded payload
// checksum does not match the decoded payload bytes.
var ErrChecksumMismatch = errors.New("state: checksum mismatch")

// ErrVersionUnsupported is returned by Verify when the snapshot's
// schema_version is newer than this build understands.
var ErrVersionUnsupported = errors.New("state: unsupported snapshot schema version")

// ErrSnapshotTooLarge is returned by Export when the encoded blob,
// even after Payload.Truncate has trimmed conversation memory, still
// exceeds the configured maximum snapshot size.
var ErrSnapshotTooLarge = errors.New("state: snapshot exceeds maximum size")

// envelope is the wire shape of an exported snapshot: base64 payload
// bytes, a SHA-256 checksum of those bytes, and an HMAC signature over
// the encoded payload, checksum and expiry together.
type envelope struct {
	Payload   string `json:"payload"`
	Checksum  string `json:"checksum"`
	Signature string `json:"signature"`
	ExpiresAt int64  `json:"expires_at"`
}

// Signer signs and verifies snapshot envelopes with a single shared
// secret. Rotate by deploying a new SecretKey; this implementation
// does not support multi-key verification.
type Signer struct {
	secret   []byte
	ttl      time.Duration
	maxBytes int
}

// NewSigner builds a Signer using secretKey for HMAC-SHA256, ttl as the
// validity window for exported snapshots, and maxBytes as the largest
// encoded blob Export will return (0 disables the check).
func NewSigner(secretKey string, ttl time.Duration, maxBytes int) *Signer {
	return &Signer{secret: []byte(secretKey), ttl: ttl, maxBytes: maxBytes}
}

// Export marshals payload, computes its checksum and signature, and
// returns the opaque blob the client should store.
func (s *Signer) Export(payload Payload) (string, error) {
	payload.SchemaVersion = SnapshotSchemaVersion
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("state: marshal payload: %w", err)
	}

	checksum := sha256.Sum256(raw)
	env := envelope{
		Payload:   base64.StdEncoding.EncodeToString(raw),
		Checksum:  base64.StdEncoding.EncodeToString(checksum[:]),
		ExpiresAt: payload.ExportedAt.Add(s.ttl).Unix(),
	}
	env.Signature = s.sign(env)

	blob, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("state: marshal envelope: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(blob)
	if s.maxBytes > 0 && len(encoded) > s.maxBytes {
		return "", ErrSnapshotTooLarge
	}
	return encoded, nil
}

// Verify decodes and authenticates blob, returning the embedded
// Payload if the signature, checksum, expiry, and schema version all
// check out.
func (s *Signer) Verify(blob string, now time.Time) (Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(blob)
	if err != nil {
		return Payload{}, fmt.Errorf("state: decode blob: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Payload{}, fmt.Errorf("state: decode envelope: %w", err)
	}

	expectedSig := s.sign(envelope{Payload: env.Payload, Checksum: env.Checksum, ExpiresAt: env.ExpiresAt})
	if !hmac.Equal([]byte(expectedSig), []byte(env.Signature)) {
		return Payload{}, ErrSignatureMismatch
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return Payload{}, fmt.Errorf("state: decode payload: %w", err)
	}
	sum := sha256.Sum256(payloadBytes)
	wantChecksum, err := base64.StdEncoding.DecodeString(env.Checksum)
	if err != nil || !hmac.Equal(sum[:], wantChecksum) {
		return Payload{}, ErrChecksumMismatch
	}

	if now.Unix() > env.ExpiresAt {
		return Payload{}, ErrExpired
	}

	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return Payload{}, fmt.Errorf("state: decode payload json: %w", err)
	}
	if payload.SchemaVersion > SnapshotSchemaVersion {
		return Payload{}, ErrVersionUnsupported
	}
	return payload, nil
}

func (s *Signer) sign(env envelope) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s.%s.%d", env.Payload, env.Checksum, env.ExpiresAt)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
