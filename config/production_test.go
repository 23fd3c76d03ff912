package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "medipay", User: "postgres", Password: "secret"},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		JWT:      JWTConfig{SecretKey: strings.Repeat("k", 32)},
		Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		Payment:  PaymentConfig{OrderTTL: 2 * time.Hour, GatewayTimeout: 10 * time.Second},
		Alipay:   AlipayConfig{SignType: "RSA2"},
		WechatPay: WechatPayConfig{
			SignType: "MD5",
		},
	}
}

func TestValidateProductionConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, ValidateProductionConfig(validConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Password = ""
		cfg.JWT.SecretKey = "short"
		cfg.Logging.Level = "verbose"

		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_PASSWORD is required")
		assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
		assert.Contains(t, err.Error(), "LOG_LEVEL")
	})

	t.Run("encryption key must be 32 bytes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Payment.ConfigEncryptionKey = base64.StdEncoding.EncodeToString([]byte("too-short"))
		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PAYMENT_CONFIG_ENCRYPTION_KEY")

		cfg.Payment.ConfigEncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))
		assert.NoError(t, ValidateProductionConfig(cfg))
	})

	t.Run("rejects unknown sign types", func(t *testing.T) {
		cfg := validConfig()
		cfg.Alipay.SignType = "RSA"
		cfg.WechatPay.SignType = "SHA1"
		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ALIPAY_SIGN_TYPE")
		assert.Contains(t, err.Error(), "WECHAT_PAY_SIGN_TYPE")
	})

	t.Run("rsa mode needs public key", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWT.UseRSAKeys = true
		cfg.JWT.SecretKey = ""
		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_PUBLIC_KEY")
	})
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("MEDIPAY_TEST_INT", "42")
	t.Setenv("MEDIPAY_TEST_BAD_INT", "x")
	t.Setenv("MEDIPAY_TEST_DURATION", "90s")
	t.Setenv("MEDIPAY_TEST_SLICE", " a, ,b ")
	t.Setenv("MEDIPAY_TEST_FLOAT", "2.5")

	assert.Equal(t, 42, getEnvInt("MEDIPAY_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("MEDIPAY_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("MEDIPAY_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b"}, getEnvStringSlice("MEDIPAY_TEST_SLICE", nil))
	assert.Equal(t, 2.5, getEnvFloat("MEDIPAY_TEST_FLOAT", 1))
	assert.Equal(t, "fallback", getEnvString("MEDIPAY_TEST_MISSING", "fallback"))
}
