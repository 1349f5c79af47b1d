package providers

import (
	"github.com/samber/do/v2"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/config"
	"github.com/quillpress/quill-server/internal/logger"
)

// AuthKey wraps the token signing key bytes.
type AuthKey []byte

// ProvideAuthKey resolves the signing key from the configured secret, or loads
// (and on first start generates) the key file.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.ResolveKey(cfg.Auth.Secret, cfg.Auth.KeyPath)
	if err != nil {
		return nil, err
	}

	source := "key file"
	if cfg.Auth.Secret != "" {
		source = "secret"
	}
	log.Info("Authentication key loaded",
		"source", source,
		"token_format", cfg.Auth.TokenFormat,
		"token_ttl", cfg.Auth.TokenTTL,
	)

	return AuthKey(key), nil
}

// ProvideSigner provides the token signer for the configured format.
func ProvideSigner(i do.Injector) (auth.Signer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewSigner(cfg.Auth.TokenFormat, key, cfg.Auth.TokenTTL)
}

// ProvideHasher provides the password hasher.
func ProvideHasher(i do.Injector) (auth.Hasher, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return auth.NewHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
}
