// Package seal layers optional symmetric encryption and an integrity
// checksum over serialized snapshots. With no key configured, Wrap and
// Unwrap are identity operations, so the medium stores codec output
// directly. With a key, snapshots are stored as a JSON envelope holding
// nonce, ciphertext, and a SHA-256 checksum of the plaintext; the
// checksum is verified again after decryption.
//
// Key material only ever arrives from configuration at construction and
// is never persisted.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/snapdoc/snapdoc/internal/errs"
)

// envelopeVersion marks the sealed format so a future algorithm change
// can still read old snapshots.
const envelopeVersion = 1

// keySalt is a fixed application salt for key derivation. The secret is
// the only confidential input; the salt separates snapdoc-derived keys
// from any other use of the same passphrase.
const keySalt = "snapdoc/seal/v1"

// scrypt parameters: interactive-use profile (~32 MiB).
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32 // AES-256
)

type envelope struct {
	Version    int    `json:"v"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Checksum   string `json:"checksum"`
}

// Sealer wraps and unwraps snapshot blobs. The zero-key Sealer passes
// bytes through untouched.
type Sealer struct {
	key []byte
}

// New derives the encryption key from the configured secret. An empty
// secret disables sealing.
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return &Sealer{}, nil
	}
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Enabled reports whether an encryption key is configured.
func (s *Sealer) Enabled() bool { return len(s.key) > 0 }

// Wrap seals plaintext snapshot bytes. Without a key it returns the
// input unchanged.
func (s *Sealer) Wrap(plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return plaintext, nil
	}

	checksum := sha256.Sum256(plaintext)

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// The checksum doubles as additional authenticated data: a swapped
	// checksum fails decryption, not just the post-decrypt compare.
	ciphertext := gcm.Seal(nil, nonce, plaintext, checksum[:])

	env := envelope{
		Version:    envelopeVersion,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Checksum:   hex.EncodeToString(checksum[:]),
	}
	return json.Marshal(env)
}

// Unwrap opens a sealed blob and verifies the plaintext checksum,
// failing with errs.ErrIntegrity on mismatch. Without a key it returns
// the input unchanged.
func (s *Sealer) Unwrap(blob []byte) ([]byte, error) {
	if !s.Enabled() {
		return blob, nil
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("not a sealed envelope: %w", err)}
	}
	if env.Version != envelopeVersion {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("unsupported envelope version %d", env.Version)}
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("decode nonce: %w", err)}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("decode ciphertext: %w", err)}
	}
	storedChecksum, err := hex.DecodeString(env.Checksum)
	if err != nil {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("decode checksum: %w", err)}
	}

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, &errs.FormatError{Codec: "seal", Err: fmt.Errorf("nonce length %d, want %d", len(nonce), gcm.NonceSize())}
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, storedChecksum)
	if err != nil {
		return nil, fmt.Errorf("decrypt snapshot: %w", errs.ErrIntegrity)
	}

	recomputed := sha256.Sum256(plaintext)
	if hex.EncodeToString(recomputed[:]) != env.Checksum {
		return nil, fmt.Errorf("snapshot checksum: %w", errs.ErrIntegrity)
	}

	return plaintext, nil
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
