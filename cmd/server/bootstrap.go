package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// bootstrapAdmin ensures the configured admin account exists, creating it
// (and a fresh API key) on first boot only. The admin password is hashed
// with bcrypt -- unlike the high-entropy API keys hashed with SHA-256 in
// internal/router/auth.go, an operator-chosen password is low-entropy
// enough that bcrypt's deliberate slow hash is worth paying to defend
// against an offline dictionary attack on a leaked users table.
func bootstrapAdmin(ctx context.Context, db *store.Store, cfg adminConfig, log *zap.Logger) error {
	if cfg.Password == "" {
		log.Warn("startup: ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}

	existing, err := db.GetUserByUsername(ctx, cfg.Username)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("looking up admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	now := time.Now()
	user := store.User{
		ID:           uuid.NewString(),
		Username:     cfg.Username,
		PasswordHash: string(hash),
		Role:         "admin",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	rawKey, err := randomAPIKey()
	if err != nil {
		return fmt.Errorf("generating admin api key: %w", err)
	}
	hashed := hashAPIKeyForStorage(rawKey)
	if err := db.CreateAPIKey(ctx, store.APIKey{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		KeyHash:   hashed,
		KeyPrefix: rawKey[:8],
		Name:      "bootstrap-admin",
		Type:      store.APIKeyTypeAdmin,
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("creating admin api key: %w", err)
	}

	log.Info("startup: bootstrapped admin account",
		zap.String("username", cfg.Username),
		zap.String("api_key_prefix", rawKey[:8]))
	log.Warn("startup: admin API key generated once, not re-shown on restart", zap.String("api_key", rawKey))
	return nil
}

type adminConfig struct {
	Username string
	Password string
}

func randomAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}

// hashAPIKeyForStorage mirrors internal/router/auth.go's hashAPIKey; kept
// as a private copy here rather than exporting the router's internal
// helper, since the admin bootstrap is the only caller outside that
// package's request path.
func hashAPIKeyForStorage(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
