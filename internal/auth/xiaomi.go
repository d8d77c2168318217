package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// TokenNeeded is returned (wrapped, via errors.As) when a device's token
// requires an external signer the caller must supply out of band — the
// UI collaborator signal described in spec §4.6.
type TokenNeeded struct {
	Token string
}

func (e *TokenNeeded) Error() string {
	return fmt.Sprintf("auth: external signature needed for token %q", e.Token)
}

// ExternalSigner asks an out-of-band collaborator (a provisioning
// service, an operator-held signing tool) to sign a device token.
// Implementations may be network-backed; Sign is expected to block for
// the duration of that round trip.
type ExternalSigner interface {
	Sign(ctx context.Context, token string) ([]byte, error)
}

// Xiaomi authenticates the base64 "VQ..." token Xiaomi EDL devices
// emit. When Signer is nil, Authenticate returns a *TokenNeeded error
// instead of failing outright, so a caller can route the token to a UI
// collaborator and retry with the signature once it arrives.
type Xiaomi struct {
	Signer ExternalSigner
}

func (x *Xiaomi) Name() string { return "xiaomi" }

func (x *Xiaomi) Authenticate(ctx context.Context, _ Handle, challenge []byte) ([]byte, error) {
	token := string(challenge)
	if !strings.HasPrefix(token, "VQ") {
		return nil, fmt.Errorf("%w: token %q missing expected VQ prefix", ErrRejected, token)
	}
	if _, err := base64.StdEncoding.DecodeString(token); err != nil {
		return nil, fmt.Errorf("%w: token is not valid base64: %v", ErrRejected, err)
	}

	if x.Signer == nil {
		return nil, &TokenNeeded{Token: token}
	}
	sig, err := x.Signer.Sign(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: external signer: %v", ErrRejected, err)
	}
	return sig, nil
}

var _ Strategy = (*Xiaomi)(nil)
