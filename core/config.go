package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Secret       string       `koanf:"secret" mapstructure:"secret"`
	Topic        string       `koanf:"topic" mapstructure:"topic"`
	ProductIDs   []int64      `koanf:"product_ids" mapstructure:"product_ids"`
	NameFallback NameFallback `koanf:"name_fallback" mapstructure:"name_fallback"`
}

type ProvisioningConfig struct {
	Policy     ProvisionPolicy `koanf:"policy" mapstructure:"policy"`
	KeyBy      ProfileKeyMode  `koanf:"key_by" mapstructure:"key_by"`
	RedirectTo string          `koanf:"redirect_to" mapstructure:"redirect_to"`
}

type IdentityConfig struct {
	BaseURL    string        `koanf:"base_url" mapstructure:"base_url"`
	ServiceKey string        `koanf:"service_key" mapstructure:"service_key"`
	Timeout    time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type ServerConfig struct {
	Address string `koanf:"address" mapstructure:"address"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	Webhook      WebhookConfig      `koanf:"webhook" mapstructure:"webhook"`
	Provisioning ProvisioningConfig `koanf:"provisioning" mapstructure:"provisioning"`
	Identity     IdentityConfig     `koanf:"identity" mapstructure:"identity"`
	Server       ServerConfig       `koanf:"server" mapstructure:"server"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "provision",
		Webhook: WebhookConfig{
			Topic:        "orders/create",
			NameFallback: NameFallbackBilling,
		},
		Provisioning: ProvisioningConfig{
			Policy: PolicyDirectCreate,
			KeyBy:  KeyByEmail,
		},
		Identity: IdentityConfig{
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Address: ":8080",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("core: webhook.secret is required")
	}
	if strings.TrimSpace(c.Webhook.Topic) == "" {
		return fmt.Errorf("core: webhook.topic is required")
	}
	switch c.Webhook.NameFallback {
	case NameFallbackBilling, NameFallbackShipping:
	default:
		return fmt.Errorf("core: unsupported webhook.name_fallback %q", c.Webhook.NameFallback)
	}
	switch c.Provisioning.Policy {
	case PolicyDirectCreate, PolicyMagicLink:
	default:
		return fmt.Errorf("core: unsupported provisioning.policy %q", c.Provisioning.Policy)
	}
	switch c.Provisioning.KeyBy {
	case KeyByEmail, KeyByProviderID:
	default:
		return fmt.Errorf("core: unsupported provisioning.key_by %q", c.Provisioning.KeyBy)
	}
	return nil
}
