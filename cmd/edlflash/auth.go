package main

import (
	"fmt"
	"os"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/keystore"
)

// authFlags carries every auth-strategy-specific flag upload-loader
// accepts; only the fields the selected strategy needs are read.
type authFlags struct {
	strategy string

	hwCode string

	recipe    string
	serial    string
	projID    string
	prodKey   string
	postfix   string
	timestamp string

	digestFile    string
	signatureFile string
}

func buildAuthStrategy(f authFlags, keys keystore.KeyStore) (auth.Strategy, error) {
	switch f.strategy {
	case "", "none":
		return nil, nil
	case "mtk-sla":
		if f.hwCode == "" {
			return nil, fmt.Errorf("mtk-sla requires --hw-code")
		}
		return &auth.MtkSLA{HwCode: f.hwCode, Keys: keys}, nil
	case "oneplus":
		recipe, err := parseOnePlusRecipe(f.recipe)
		if err != nil {
			return nil, err
		}
		var ts []byte
		if f.timestamp != "" {
			ts = []byte(f.timestamp)
		}
		return &auth.OnePlus{
			Recipe:    recipe,
			Serial:    f.serial,
			ProjID:    f.projID,
			ProdKey:   f.prodKey,
			Postfix:   f.postfix,
			Timestamp: ts,
			Keys:      keys,
		}, nil
	case "oplus-vip":
		digest, err := os.ReadFile(f.digestFile)
		if err != nil {
			return nil, fmt.Errorf("reading --digest-file: %w", err)
		}
		sig, err := os.ReadFile(f.signatureFile)
		if err != nil {
			return nil, fmt.Errorf("reading --signature-file: %w", err)
		}
		return &auth.OplusVIP{Digest: digest, Signature: sig}, nil
	case "xiaomi":
		return &auth.Xiaomi{}, nil
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", f.strategy)
	}
}

func parseOnePlusRecipe(s string) (auth.OnePlusRecipe, error) {
	switch s {
	case "", "v1":
		return auth.RecipeV1, nil
	case "v2", "demacia":
		return auth.RecipeV2Demacia, nil
	case "v3", "setswprojmodel":
		return auth.RecipeV3SetSwProjModel, nil
	default:
		return 0, fmt.Errorf("unknown --recipe %q (want v1|v2|v3)", s)
	}
}
