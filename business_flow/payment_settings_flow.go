package businessflow

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maskedConfigValue = "******"

// PriceResolver resolves the price of a service type in effect today
type PriceResolver interface {
	CurrentPrice(ctx context.Context, serviceType string) (*models.PriceConfig, error)
}

// CredentialSource returns the merged merchant credentials of a gateway
type CredentialSource interface {
	Credentials(ctx context.Context, method models.PaymentMethod) (services.GatewayCredentials, error)
}

// PaymentSettingsFlow exposes prices and gateway credentials
type PaymentSettingsFlow interface {
	PriceResolver
	CredentialSource
	ListPrices(ctx context.Context) (*dto.ListPriceConfigsResponse, error)
	GetPrice(ctx context.Context, serviceType string) (*dto.PriceConfigResponse, error)
	GetGatewayConfig(ctx context.Context, caller Caller, method string) (*dto.GatewayConfigResponse, error)
	UpdateGatewayConfig(ctx context.Context, caller Caller, method string, req *dto.UpdateGatewayConfigRequest, metadata *ClientMetadata) (*dto.GatewayConfigResponse, error)
}

// PaymentSettingsFlowImpl implements PaymentSettingsFlow
type PaymentSettingsFlowImpl struct {
	priceRepo  repository.PriceConfigRepository
	configRepo repository.PaymentConfigRepository
	auditRepo  repository.AuditLogRepository
	cipher     services.ConfigCipher
	defaults   map[models.PaymentMethod]map[string]string
	cache      *redis.Client
	prefix     string
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewPaymentSettingsFlow creates a new settings flow. defaults holds the env level
// credentials per gateway; their keys are the only keys an admin may write.
func NewPaymentSettingsFlow(
	priceRepo repository.PriceConfigRepository,
	configRepo repository.PaymentConfigRepository,
	auditRepo repository.AuditLogRepository,
	cipher services.ConfigCipher,
	defaults map[models.PaymentMethod]map[string]string,
	cache *redis.Client,
	prefix string,
	cacheTTL time.Duration,
	logger *zap.Logger,
) PaymentSettingsFlow {
	return &PaymentSettingsFlowImpl{
		priceRepo:  priceRepo,
		configRepo: configRepo,
		auditRepo:  auditRepo,
		cipher:     cipher,
		defaults:   defaults,
		cache:      cache,
		prefix:     prefix,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

func (s *PaymentSettingsFlowImpl) priceCacheKey(serviceType string, day time.Time) string {
	return fmt.Sprintf("%sprice:%s:%s", s.prefix, serviceType, day.Format(utils.DateLayout))
}

// CurrentPrice returns the active price of serviceType, served from redis when cached
func (s *PaymentSettingsFlowImpl) CurrentPrice(ctx context.Context, serviceType string) (*models.PriceConfig, error) {
	today := utils.StartOfDay(utils.UTCNow())
	key := s.priceCacheKey(serviceType, today)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var cached models.PriceConfig
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	price, err := s.priceRepo.Current(ctx, serviceType, today)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, fmt.Errorf("%w: %s", ErrPriceConfigNotFound, serviceType)
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(price); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return price, nil
}

// ListPrices returns every price active today
func (s *PaymentSettingsFlowImpl) ListPrices(ctx context.Context) (*dto.ListPriceConfigsResponse, error) {
	today := utils.StartOfDay(utils.UTCNow())
	rows, err := s.priceRepo.ByFilter(ctx, models.PriceConfigFilter{
		IsActive: utils.ToPtr(true),
		ActiveOn: &today,
	}, "service_type ASC, created_at DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_PRICES_FAILED", "Failed to list prices", err)
	}

	// one entry per service type, matching what CurrentPrice resolves
	seen := make(map[string]bool, len(rows))
	items := make([]dto.PriceConfigResponse, 0, len(rows))
	for _, row := range rows {
		if seen[row.ServiceType] {
			continue
		}
		seen[row.ServiceType] = true
		items = append(items, ToPriceConfigResponse(row))
	}
	return &dto.ListPriceConfigsResponse{Items: items}, nil
}

func (s *PaymentSettingsFlowImpl) GetPrice(ctx context.Context, serviceType string) (*dto.PriceConfigResponse, error) {
	price, err := s.CurrentPrice(ctx, serviceType)
	if err != nil {
		return nil, NewBusinessError("GET_PRICE_FAILED", "Failed to load price", err)
	}
	resp := ToPriceConfigResponse(price)
	return &resp, nil
}

func gatewayMethod(method string) (models.PaymentMethod, error) {
	m := models.PaymentMethod(method)
	if !m.IsGateway() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, method)
	}
	return m, nil
}

// Credentials overlays stored payment_configs rows on the env defaults, decrypting sealed values
func (s *PaymentSettingsFlowImpl) Credentials(ctx context.Context, method models.PaymentMethod) (services.GatewayCredentials, error) {
	if !method.IsGateway() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, method)
	}
	rows, err := s.configRepo.ByMethod(ctx, method)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]string, len(rows))
	for _, row := range rows {
		value := row.ConfigValue
		if row.IsEncrypted {
			value, err = s.cipher.Decrypt(row.ConfigValue)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrGatewayNotConfigured, method, row.ConfigKey, err)
			}
		}
		stored[row.ConfigKey] = value
	}

	return services.GatewayCredentials(s.defaults[method]).Merge(stored), nil
}

func (s *PaymentSettingsFlowImpl) GetGatewayConfig(ctx context.Context, caller Caller, method string) (*dto.GatewayConfigResponse, error) {
	if !caller.IsAdmin() {
		return nil, NewBusinessError("GET_GATEWAY_CONFIG_FAILED", "Only admins may read gateway config", ErrForbidden)
	}
	m, err := gatewayMethod(method)
	if err != nil {
		return nil, NewBusinessError("GET_GATEWAY_CONFIG_FAILED", "Invalid payment method", err)
	}
	rows, err := s.configRepo.ByMethod(ctx, m)
	if err != nil {
		return nil, NewBusinessError("GET_GATEWAY_CONFIG_FAILED", "Failed to load gateway config", err)
	}
	return toGatewayConfigResponse(m, rows), nil
}

// UpdateGatewayConfig upserts credential keys, sealing those flagged for encryption
func (s *PaymentSettingsFlowImpl) UpdateGatewayConfig(ctx context.Context, caller Caller, method string, req *dto.UpdateGatewayConfigRequest, metadata *ClientMetadata) (*dto.GatewayConfigResponse, error) {
	if !caller.IsAdmin() {
		return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Only admins may change gateway config", ErrForbidden)
	}
	m, err := gatewayMethod(method)
	if err != nil {
		return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Invalid payment method", err)
	}

	entries := make([]*models.PaymentConfig, 0, len(req.Entries))
	keys := make([]string, 0, len(req.Entries))
	for _, e := range req.Entries {
		if _, known := s.defaults[m][e.ConfigKey]; !known {
			return nil, NewBusinessErrorf("UPDATE_GATEWAY_CONFIG_FAILED", "Unknown config key %s", fmt.Errorf("%w: %s (allowed: %s)", ErrInvalidConfigKey, e.ConfigKey, strings.Join(s.knownConfigKeys(m), ", ")), e.ConfigKey)
		}
		value := e.ConfigValue
		if e.Encrypt {
			if !s.cipher.Enabled() {
				return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Encryption is not available", ErrEncryptionUnavailable)
			}
			value, err = s.cipher.Encrypt(e.ConfigValue)
			if err != nil {
				return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Failed to encrypt config value", err)
			}
		}
		entries = append(entries, &models.PaymentConfig{
			PaymentMethod: m,
			ConfigKey:     e.ConfigKey,
			ConfigValue:   value,
			IsEncrypted:   e.Encrypt,
			Description:   e.Description,
		})
		keys = append(keys, e.ConfigKey)
	}

	if err := s.configRepo.Upsert(ctx, entries); err != nil {
		errMsg := fmt.Sprintf("Gateway config update for %s failed: %s", m, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &caller.UserID, models.AuditActionGatewayConfigUpdated, errMsg, false, &errMsg, metadata, map[string]any{"payment_method": m, "keys": keys})
		return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Failed to update gateway config", err)
	}

	msg := fmt.Sprintf("Updated %d config keys of %s", len(keys), m)
	_ = createAuditLog(ctx, s.auditRepo, &caller.UserID, models.AuditActionGatewayConfigUpdated, msg, true, nil, metadata, map[string]any{"payment_method": m, "keys": keys})

	rows, err := s.configRepo.ByMethod(ctx, m)
	if err != nil {
		return nil, NewBusinessError("UPDATE_GATEWAY_CONFIG_FAILED", "Failed to reload gateway config", err)
	}
	return toGatewayConfigResponse(m, rows), nil
}

func toGatewayConfigResponse(method models.PaymentMethod, rows []*models.PaymentConfig) *dto.GatewayConfigResponse {
	entries := make([]dto.GatewayConfigEntry, 0, len(rows))
	for _, row := range rows {
		value := row.ConfigValue
		if row.IsEncrypted {
			value = maskedConfigValue
		}
		entries = append(entries, dto.GatewayConfigEntry{
			ConfigKey:   row.ConfigKey,
			ConfigValue: value,
			IsEncrypted: row.IsEncrypted,
			Description: row.Description,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ConfigKey < entries[j].ConfigKey })
	return &dto.GatewayConfigResponse{PaymentMethod: method.String(), Entries: entries}
}

// knownConfigKeys lists the writable keys of method in stable order
func (s *PaymentSettingsFlowImpl) knownConfigKeys(method models.PaymentMethod) []string {
	keys := make([]string, 0, len(s.defaults[method]))
	for k := range s.defaults[method] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
