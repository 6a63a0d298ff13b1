package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader supplies untyped key/value material (env vars, files) that
// the cfgx provider shapes into a Config.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded < runtime with deterministic
// layer precedence before rebuilding the typed config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Webhook.Secret) != "" {
		webhook["secret"] = cfg.Webhook.Secret
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.Topic) != "" {
		webhook["topic"] = cfg.Webhook.Topic
	}
	if includeZero || len(cfg.Webhook.ProductIDs) > 0 {
		webhook["product_ids"] = append([]int64(nil), cfg.Webhook.ProductIDs...)
	}
	if includeZero || strings.TrimSpace(string(cfg.Webhook.NameFallback)) != "" {
		webhook["name_fallback"] = string(cfg.Webhook.NameFallback)
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	provisioning := map[string]any{}
	if includeZero || strings.TrimSpace(string(cfg.Provisioning.Policy)) != "" {
		provisioning["policy"] = string(cfg.Provisioning.Policy)
	}
	if includeZero || strings.TrimSpace(string(cfg.Provisioning.KeyBy)) != "" {
		provisioning["key_by"] = string(cfg.Provisioning.KeyBy)
	}
	if includeZero || strings.TrimSpace(cfg.Provisioning.RedirectTo) != "" {
		provisioning["redirect_to"] = cfg.Provisioning.RedirectTo
	}
	if len(provisioning) > 0 {
		layer["provisioning"] = provisioning
	}

	identity := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Identity.BaseURL) != "" {
		identity["base_url"] = cfg.Identity.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Identity.ServiceKey) != "" {
		identity["service_key"] = cfg.Identity.ServiceKey
	}
	if includeZero || cfg.Identity.Timeout > time.Duration(0) {
		identity["timeout"] = cfg.Identity.Timeout
	}
	if len(identity) > 0 {
		layer["identity"] = identity
	}

	server := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Server.Address) != "" {
		server["address"] = cfg.Server.Address
	}
	if len(server) > 0 {
		layer["server"] = server
	}

	return layer
}
