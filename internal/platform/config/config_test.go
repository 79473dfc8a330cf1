package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashKey = "0123456789abcdef0123456789abcdef"

func baseEnv() map[string]string {
	return map[string]string{
		"STOREFRONT_GATEWAY_URL":      "https://gateway.example.com/",
		"STOREFRONT_SESSION_HASH_KEY": testHashKey,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "https://gateway.example.com", cfg.Upstream.GatewayURL)
	assert.Equal(t, "wss://gateway.example.com/api/socket", cfg.Upstream.OrderSocketURL)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Auth.RefreshBuffer)
	assert.Equal(t, "INR", cfg.Checkout.Currency)
	assert.True(t, cfg.Session.Secure)
	assert.False(t, cfg.Events.Enabled())
	assert.Empty(t, cfg.CORS.AllowedOrigins)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"# local overrides\nexport STOREFRONT_PORT=4000\nSTOREFRONT_CORS_ORIGINS=\"http://localhost:5173, http://localhost:3001\"\nSTOREFRONT_CURRENCY=usd\n",
	), 0o600))

	env := baseEnv()
	env["STOREFRONT_CURRENCY"] = "eur"

	cfg, err := Load(context.Background(), WithEnvFile(envFile), WithoutSystemEnv(), WithEnvMap(env))
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3001"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "EUR", cfg.Checkout.Currency)
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_GATEWAY_URL":       "gateway",
		"STOREFRONT_SESSION_HASH_KEY":  "short",
		"STOREFRONT_SESSION_BLOCK_KEY": "odd-length",
	}
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"Upstream.GatewayURL", "Session.HashKey", "Session.BlockKey"}, verr.Fields())
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["STOREFRONT_SESSION_HASH_KEY"] = "sm://session-hash"

	var seen string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = ref
		return testHashKey, nil
	})

	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env), WithSecretResolver(resolver))
	require.NoError(t, err)
	assert.Equal(t, "secret://session-hash", seen)
	assert.Equal(t, testHashKey, cfg.Session.HashKey)
}

func TestLoadSecretFailures(t *testing.T) {
	env := baseEnv()
	env["STOREFRONT_SESSION_HASH_KEY"] = "secret://session-hash"

	t.Run("no resolver", func(t *testing.T) {
		_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
		var serr *SecretError
		require.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, errSecretResolverNotConfigured)
	})

	t.Run("resolver error", func(t *testing.T) {
		boom := errors.New("permission denied")
		resolver := SecretResolverFunc(func(context.Context, string) (string, error) { return "", boom })
		_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env), WithSecretResolver(resolver))
		assert.ErrorIs(t, err, boom)
	})
}

func TestLoadRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(baseEnv()),
		WithRequiredSecrets("Session.HashKey", "Session.BlockKey"))

	var missing *MissingSecretsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Session.BlockKey"}, missing.Names())
	assert.NotContains(t, missing.Error(), "Session.BlockKey")
}
