package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
)

// masterKeyEnv holds master key material when no key file is configured.
const masterKeyEnv = "GATEWAY_MASTER_KEY"

// InitSigningKeys creates the KeyManager that signs gateway credentials.
//
// Storage modes:
//   - "ephemeral": keys live in memory only and every credential becomes
//     invalid on restart.
//   - "persistent": keys are sealed with the master key and stored in the
//     database, so credentials survive restarts and replicas sharing the
//     database verify each other's tokens.
func InitSigningKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, error) {
	switch cfg.KeyStorageMode {
	case "persistent":
		sealer, ephemeral, err := cryptox.LoadKeySealer(cfg.MasterKeyPath, masterKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("failed to load master key: %w", err)
		}
		if ephemeral {
			logger.Warn("no master key configured, persisted signing keys will be unreadable after restart",
				"hint", "set GATEWAY_MASTER_KEY_PATH or "+masterKeyEnv)
		}

		logger.Info("initializing persistent key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
			"grace_period", cfg.KeyGracePeriod,
		)

		km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:       store.NewKeyStoreAdapter(db, time.Now),
			Sealer:      sealer,
			Algorithm:   cfg.Algorithm,
			Issuer:      cfg.Issuer,
			NumKeys:     cfg.NumKeys,
			GracePeriod: cfg.KeyGracePeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

		logger.Info("persistent signing keys loaded",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"issuer", cfg.Issuer,
		)
		return km, nil

	case "ephemeral", "":
		km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
			Algorithm: cfg.Algorithm,
			Issuer:    cfg.Issuer,
			NumKeys:   cfg.NumKeys,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}

		logger.Info("generated ephemeral signing keys",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"issuer", cfg.Issuer,
		)
		logger.Warn("credentials issued before this start are no longer valid")
		return km, nil

	default:
		return nil, fmt.Errorf("unknown key storage mode %q (supported: ephemeral, persistent)", cfg.KeyStorageMode)
	}
}
