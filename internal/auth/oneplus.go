package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/keystore"
)

// OnePlusRecipe selects the encryption key derivation used by the
// OnePlus Demacia/SetProjModel handshake (spec §4.6); the recipe a given
// device needs is selected by proj_id.
type OnePlusRecipe int

const (
	RecipeV1 OnePlusRecipe = iota
	RecipeV2Demacia
	RecipeV3SetSwProjModel
)

// OnePlus implements the two-step Demacia + SetProjModel XML handshake.
// prod_key and postfix are vendor constants supplied per device family;
// Serial and ProjID identify the attached device. Timestamp is required
// only for RecipeV3 and, per spec's documented source ambiguity, may
// arrive as ASCII decimal or as a raw little-endian binary encoding —
// mismatches are reported as ErrRejected with the raw bytes attached
// rather than guessed at.
type OnePlus struct {
	Recipe    OnePlusRecipe
	Serial    string
	ProjID    string
	ProdKey   string
	Postfix   string
	Timestamp []byte // required, raw device-supplied bytes, for RecipeV3

	Keys keystore.KeyStore
}

func (o *OnePlus) Name() string { return "oneplus" }

// Authenticate builds the AES-256-CBC token and returns it as
// IV||ciphertext. It does not use the handle: nothing is sent to the
// device here, and no Demacia/SetProjModel XML command is built.
func (o *OnePlus) Authenticate(_ context.Context, _ Handle, _ []byte) ([]byte, error) {
	key, err := o.deriveKey()
	if err != nil {
		return nil, err
	}

	randKey := make([]byte, 16)
	if _, err := rand.Read(randKey); err != nil {
		return nil, fmt.Errorf("%w: generate random key: %v", ErrRejected, err)
	}

	plaintext := append([]byte(o.Serial), randKey...)
	plaintext = codec.PadPKCS7(plaintext, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", ErrRejected, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", ErrRejected, err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	token := make([]byte, 0, len(iv)+len(ciphertext))
	token = append(token, iv...)
	token = append(token, ciphertext...)
	return token, nil
}

// deriveKey computes the 32-byte AES key for the selected recipe. All
// three recipes share the prod_key||proj_id||postfix digest; v3 mixes in
// the device timestamp, per spec §4.6.
func (o *OnePlus) deriveKey() ([]byte, error) {
	base := sha256.Sum256([]byte(o.ProdKey + o.ProjID + o.Postfix))

	switch o.Recipe {
	case RecipeV1, RecipeV2Demacia:
		return base[:], nil

	case RecipeV3SetSwProjModel:
		if len(o.Timestamp) == 0 {
			return nil, fmt.Errorf("%w: v3 requires a device timestamp", ErrRejected)
		}
		ts, err := decodeTimestamp(o.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: v3 timestamp %x: %v", ErrRejected, o.Timestamp, err)
		}
		tsBytes := make([]byte, 8)
		codec.PutUint64LE(tsBytes, ts)
		mixed := sha256.Sum256(append(base[:], tsBytes...))
		return mixed[:], nil

	default:
		return nil, fmt.Errorf("%w: unknown recipe", ErrRejected)
	}
}

// decodeTimestamp accepts either ASCII decimal or raw little-endian
// binary, per the source ambiguity noted in spec §9. ASCII decimal is
// tried first; bytes that do not parse as decimal are read as a
// little-endian uint64 when exactly 8 bytes long. Any decoded value,
// zero included, is accepted; anything else is an error. Callers should
// treat a KindAuthRejected surfaced here as grounds to check the raw
// bytes against the target device rather than an automatic recipe bug.
func decodeTimestamp(raw []byte) (uint64, error) {
	if n, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
		return n, nil
	}
	if len(raw) == 8 {
		v, err := codec.Uint64LE(raw)
		if err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("timestamp is neither ASCII decimal nor 8-byte little-endian binary")
}

var _ Strategy = (*OnePlus)(nil)
