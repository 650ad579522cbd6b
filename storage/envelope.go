package storage

import (
	"fmt"

	"github.com/jmcleod/homly/internal/util"
)

const (
	// SchemeRaw stores the value unencrypted.
	SchemeRaw = "raw"
	// SchemeAESGCM stores the value sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
)

// Envelope is the on-disk form of a stored value.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealRecord encrypts plaintext into an Envelope using the given key and AAD.
func SealRecord(key, plaintext, aad []byte) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        1,
		Scheme:     SchemeAESGCM,
		Nonce:      cipher[:12],
		Ciphertext: cipher[12:],
	}, nil
}

// RawRecord wraps plaintext in an unencrypted Envelope.
func RawRecord(plaintext []byte) *Envelope {
	return &Envelope{Ver: 1, Scheme: SchemeRaw, Ciphertext: util.CopyBytes(plaintext)}
}

// OpenRecord returns the plaintext held by an Envelope. Raw envelopes are
// returned as-is; sealed envelopes require the key they were sealed with.
func OpenRecord(key []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	switch envelope.Scheme {
	case SchemeRaw:
		return util.CopyBytes(envelope.Ciphertext), nil
	case SchemeAESGCM:
		if key == nil {
			return nil, fmt.Errorf("sealed envelope requires a key")
		}
	default:
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, key, aad)
}

// DeriveKey derives a 32-byte store key from a secret, bound to a profile.
func DeriveKey(secret, profile string) ([]byte, error) {
	return util.HKDF([]byte(secret), nil, []byte("homly:store:"+profile))
}
