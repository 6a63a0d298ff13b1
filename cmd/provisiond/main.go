package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	provision "github.com/goliatone/go-provision"
	provisioncommand "github.com/goliatone/go-provision/command"
	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/identity"
	provisionmigrations "github.com/goliatone/go-provision/migrations"
	"github.com/goliatone/go-provision/providers/shopify"
	"github.com/goliatone/go-provision/server"
	sqlstore "github.com/goliatone/go-provision/store/sql"
	"github.com/goliatone/go-provision/webhooks"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func main() {
	_, logger := glog.Resolve("provisiond", nil, nil)
	logger = glog.Ensure(logger)

	if err := run(logger); err != nil {
		logger.Error("provisiond exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, envRawConfigLoader{prefix: "PROVISION_"}, runtimeOverrides())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := openPersistence(ctx)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	provisioner, err := identity.NewAdminClient(identity.AdminClientConfig{
		BaseURL:    cfg.Identity.BaseURL,
		ServiceKey: cfg.Identity.ServiceKey,
		Timeout:    cfg.Identity.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("build identity client: %w", err)
	}

	pipeline := webhooks.NewPipeline(
		cfg,
		shopify.NewWebhookVerifier(cfg.Webhook.Secret),
		shopify.NewNormalizer(cfg.Webhook.NameFallback),
		provisioner,
		factory.ProfileStore(),
	)
	pipeline.ExtractTopic = shopify.TopicExtractor
	pipeline.Ledger = factory.DeliveryStore()
	pipeline.ExtractID = shopify.DeliveryIDExtractor
	pipeline.Logger = logger

	facade, err := provision.NewFacade(pipeline,
		provision.WithDeliveryPurger(factory.DeliveryStore()),
	)
	if err != nil {
		return fmt.Errorf("build facade: %w", err)
	}

	processor := commandProcessor{command: facade.Commands().ProcessDelivery}
	handler := server.NewWebhookHandler(shopify.ProviderID, processor, logger)
	handler.Annotate = shopify.RequestMetadata
	srv := server.New(cfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig layers defaults under the environment-shaped config, then lets
// runtime overrides (command-line flags) win through the options resolver.
func loadConfig(ctx context.Context, loader core.RawConfigLoader, runtime core.Config) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(loader)
	loaded, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), loaded, runtime)
}

func runtimeOverrides() core.Config {
	var cfg core.Config
	var policy string
	flag.StringVar(&cfg.Server.Address, "address", "", "listen address override")
	flag.StringVar(&policy, "policy", "", "provisioning policy override (direct_create or magic_link)")
	flag.StringVar(&cfg.Provisioning.RedirectTo, "redirect-to", "", "magic link redirect override")
	flag.Parse()
	cfg.Provisioning.Policy = core.ProvisionPolicy(strings.TrimSpace(policy))
	return cfg
}

// envRawConfigLoader shapes PROVISION_* environment variables into the
// nested raw map the cfgx provider expects.
type envRawConfigLoader struct {
	prefix string
}

func (l envRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}

	setString := func(target map[string]any, key string, env string) {
		if value := strings.TrimSpace(os.Getenv(l.prefix + env)); value != "" {
			target[key] = value
		}
	}

	setString(raw, "service_name", "SERVICE_NAME")

	webhook := map[string]any{}
	setString(webhook, "secret", "WEBHOOK_SECRET")
	setString(webhook, "topic", "WEBHOOK_TOPIC")
	setString(webhook, "name_fallback", "WEBHOOK_NAME_FALLBACK")
	if ids, err := parseProductIDs(os.Getenv(l.prefix + "WEBHOOK_PRODUCT_IDS")); err != nil {
		return nil, err
	} else if len(ids) > 0 {
		webhook["product_ids"] = ids
	}
	if len(webhook) > 0 {
		raw["webhook"] = webhook
	}

	provisioning := map[string]any{}
	setString(provisioning, "policy", "POLICY")
	setString(provisioning, "key_by", "KEY_BY")
	setString(provisioning, "redirect_to", "REDIRECT_TO")
	if len(provisioning) > 0 {
		raw["provisioning"] = provisioning
	}

	identityCfg := map[string]any{}
	setString(identityCfg, "base_url", "IDENTITY_BASE_URL")
	setString(identityCfg, "service_key", "IDENTITY_SERVICE_KEY")
	setString(identityCfg, "timeout", "IDENTITY_TIMEOUT")
	if len(identityCfg) > 0 {
		raw["identity"] = identityCfg
	}

	serverCfg := map[string]any{}
	setString(serverCfg, "address", "SERVER_ADDRESS")
	if len(serverCfg) > 0 {
		raw["server"] = serverCfg
	}

	return raw, nil
}

func parseProductIDs(value string) ([]int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse product id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type persistenceConfig struct {
	debug  bool
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-provision" }

func openPersistence(ctx context.Context) (*persistence.Client, error) {
	driver := strings.TrimSpace(os.Getenv("PROVISION_DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := strings.TrimSpace(os.Getenv("PROVISION_DB_DSN"))
	if dsn == "" {
		dsn = "file:provision.db?cache=shared&_foreign_keys=on"
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	var dialect schema.Dialect
	migrationDialect := provisionmigrations.DialectSQLite
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = provisionmigrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		sqlDB.SetMaxOpenConns(1)
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	client, err := persistence.New(persistenceConfig{
		debug:  false,
		driver: driver,
		server: dsn,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	err = provisionmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrationDialect)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// commandProcessor runs deliveries through the command layer so the HTTP
// surface and any future transports share one execution path.
type commandProcessor struct {
	command *provisioncommand.ProcessDeliveryCommand
}

func (p commandProcessor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	collector := gocmd.NewResult[core.InboundResult]()
	ctx = gocmd.ContextWithResult(ctx, collector)

	err := p.command.Execute(ctx, provisioncommand.ProcessDeliveryMessage{Request: req})
	result, ok := collector.Load()
	if !ok {
		return core.InboundResult{}, err
	}
	return result, err
}
