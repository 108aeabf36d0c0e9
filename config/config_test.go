package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox-api.iyzipay.com", cfg.Iyzico.BaseURL)
	assert.Equal(t, 3, cfg.Iyzico.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Iyzico.BaseBackoff)
	assert.Equal(t, 2*time.Second, cfg.Iyzico.MaxBackoff)
	assert.Equal(t, 10*time.Second, cfg.Iyzico.Timeout)
	assert.Equal(t, "order_events", cfg.Kafka.Topic)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerEndpoint)
}

func TestLoad_JaegerEndpointFromEnvironment(t *testing.T) {
	t.Setenv("JAEGER_ENDPOINT", "http://jaeger:14268/api/traces")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://jaeger:14268/api/traces", cfg.JaegerEndpoint)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("IYZICO_API_KEY", "sandbox-api")
	t.Setenv("IYZICO_SECRET_KEY", "sandbox-secret")
	t.Setenv("IYZICO_MAX_ATTEMPTS", "5")
	t.Setenv("IYZICO_TIMEOUT", "3s")
	t.Setenv("DB_HOST", "postgres")
	t.Setenv("KAFKA_BROKER", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("ADMIN_EMAIL", "admin@pastirma.example")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sandbox-api", cfg.Gateway().APIKey)
	assert.Equal(t, 5, cfg.Gateway().MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Gateway().Timeout)
	assert.Equal(t, "postgres", cfg.Database().Host)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Messaging().Brokers)
	assert.Equal(t, "redis:6379", cfg.Cache().Addr)
	assert.Equal(t, "admin@pastirma.example", cfg.AdminEmail)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
public_site_url: https://pastirma.example
iyzico:
  api_key: file-key
  secret_key: file-secret
  base_backoff: 100ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://pastirma.example", cfg.PublicSiteURL)
	assert.Equal(t, "file-key", cfg.Iyzico.APIKey)
	assert.Equal(t, 100*time.Millisecond, cfg.Iyzico.BaseBackoff)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	assert.ErrorIs(t, err, gateway.ErrSignature)

	cfg.Iyzico.APIKey = "k"
	cfg.Iyzico.SecretKey = "s"
	cfg.Iyzico.MaxAttempts = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrSignature)
}
