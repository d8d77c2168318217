package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/edlkit/edl/internal/keystore"
)

// MtkSLA signs a 16-byte BROM/DA challenge with an RSA-PSS-SHA-256
// signature, keyed by hw_code, per spec §4.5/§4.6.
type MtkSLA struct {
	HwCode string
	Keys   keystore.KeyStore
}

func (s *MtkSLA) Name() string { return "mtk-sla" }

// Authenticate ignores handle (the BROM/DA driver performs the
// send/receive framing itself around the signature this returns) and
// signs challenge directly.
func (s *MtkSLA) Authenticate(_ context.Context, _ Handle, challenge []byte) ([]byte, error) {
	keyBytes, ok := s.Keys.Lookup(keystore.KindHwCode, s.HwCode)
	if !ok {
		return nil, fmt.Errorf("%w: no SLA key for hw_code %s", ErrRejected, s.HwCode)
	}

	priv, err := x509.ParsePKCS1PrivateKey(keyBytes)
	if err != nil {
		priv, err = parsePKCS8RSA(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse SLA private key: %v", ErrRejected, err)
		}
	}

	digest := sha256.Sum256(challenge)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sign challenge: %v", ErrRejected, err)
	}
	if len(sig) > 256 {
		return nil, fmt.Errorf("%w: signature %d bytes exceeds 256-byte response limit", ErrRejected, len(sig))
	}
	return sig, nil
}

func parsePKCS8RSA(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return rsaKey, nil
}

var _ Strategy = (*MtkSLA)(nil)
