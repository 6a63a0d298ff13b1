package webhooks_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/providers/shopify"
	"github.com/goliatone/go-provision/webhooks"
)

type stubProvisioner struct {
	createCalls    int
	magicLinkCalls int
	createInput    core.CreateUserInput
	magicLinkInput core.MagicLinkInput
	createErr      error
	magicLinkErr   error
	createdID      string
}

func (s *stubProvisioner) CreateUser(_ context.Context, in core.CreateUserInput) (core.CreatedUser, error) {
	s.createCalls++
	s.createInput = in
	if s.createErr != nil {
		return core.CreatedUser{}, s.createErr
	}
	id := s.createdID
	if id == "" {
		id = "user-1"
	}
	return core.CreatedUser{ID: id, Email: in.Email}, nil
}

func (s *stubProvisioner) SendMagicLink(_ context.Context, in core.MagicLinkInput) error {
	s.magicLinkCalls++
	s.magicLinkInput = in
	return s.magicLinkErr
}

type stubProfileStore struct {
	upsertCalls int
	lastInput   core.UpsertProfileInput
	upsertErr   error
	profiles    map[string]core.Profile
}

func (s *stubProfileStore) Upsert(_ context.Context, in core.UpsertProfileInput) (core.Profile, error) {
	s.upsertCalls++
	s.lastInput = in
	if s.upsertErr != nil {
		return core.Profile{}, s.upsertErr
	}
	profile := core.Profile{
		Key:           in.Key,
		UserID:        in.UserID,
		Email:         in.Email,
		FirstName:     in.FirstName,
		FullName:      in.FullName,
		SourceOrderID: in.SourceOrderID,
	}
	if s.profiles == nil {
		s.profiles = map[string]core.Profile{}
	}
	s.profiles[in.Key] = profile
	return profile, nil
}

func (s *stubProfileStore) GetByKey(_ context.Context, key string) (core.Profile, error) {
	profile, ok := s.profiles[key]
	if !ok {
		return core.Profile{}, errors.New("profile not found")
	}
	return profile, nil
}

func shopifySign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestPipeline(cfg core.Config, provisioner *stubProvisioner, profiles *stubProfileStore) *webhooks.Pipeline {
	pipeline := webhooks.NewPipeline(
		cfg,
		shopify.NewWebhookVerifier(cfg.Webhook.Secret),
		shopify.NewNormalizer(cfg.Webhook.NameFallback),
		provisioner,
		profiles,
	)
	pipeline.ExtractTopic = shopify.TopicExtractor
	return pipeline
}

func signedRequest(secret string, topic string, body []byte) core.InboundRequest {
	return core.InboundRequest{
		ProviderID: shopify.ProviderID,
		Headers: map[string]string{
			shopify.HeaderHMAC:  shopifySign(secret, body),
			shopify.HeaderTopic: topic,
		},
		Body: body,
	}
}

func TestPipelineRejectsBadSignatureBeforeCollaborators(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	req := signedRequest("wrong-secret", "orders/create", body)

	result, err := pipeline.Process(context.Background(), req)
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", result.StatusCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
	if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 0 || profiles.upsertCalls != 0 {
		t.Fatal("rejected delivery must not touch collaborators")
	}
}

func TestPipelineRequiresVerifier(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := webhooks.NewPipeline(
		cfg,
		nil,
		shopify.NewNormalizer(cfg.Webhook.NameFallback),
		provisioner,
		profiles,
	)
	pipeline.ExtractTopic = shopify.TopicExtractor

	req := core.InboundRequest{
		ProviderID: shopify.ProviderID,
		Headers:    map[string]string{shopify.HeaderTopic: "orders/create"},
		Body:       []byte(`{"id":1,"email":"buyer@example.com"}`),
	}
	_, err := pipeline.Process(context.Background(), req)
	if err == nil {
		t.Fatal("pipeline without a verifier must fail closed")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("unexpected error: %v", err)
	}
	if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 0 || profiles.upsertCalls != 0 {
		t.Fatal("unverified delivery must not touch collaborators")
	}
}

func TestPipelineRequiresTopicExtractor(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)
	pipeline.ExtractTopic = nil

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	_, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
	if err == nil {
		t.Fatal("configured topic without an extractor must fail closed")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("unexpected error: %v", err)
	}
	if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 0 || profiles.upsertCalls != 0 {
		t.Fatal("unfiltered delivery must not touch collaborators")
	}
}

func TestPipelineIgnoresOtherTopics(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	req := signedRequest("secret", "orders/updated", body)

	result, err := pipeline.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("result = %+v, want accepted 200", result)
	}
	if result.Metadata["ignored"] != true {
		t.Fatalf("metadata = %+v, want ignored", result.Metadata)
	}
	if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 0 || profiles.upsertCalls != 0 {
		t.Fatal("ignored delivery must not touch collaborators")
	}
}

func TestPipelineMissingEmailSkipsCollaborators(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":9,"customer":{"first_name":"Jane"}}`)
	req := signedRequest("secret", "orders/create", body)

	result, err := pipeline.Process(context.Background(), req)
	if err == nil {
		t.Fatal("expected missing email rejection")
	}
	if result.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", result.StatusCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorMissingEmail {
		t.Fatalf("unexpected error: %v", err)
	}
	if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 0 || profiles.upsertCalls != 0 {
		t.Fatal("missing email must leave identity and persistence untouched")
	}
}

func TestPipelinePolicyExclusivity(t *testing.T) {
	body := []byte(`{"id":1,"email":"buyer@example.com","customer":{"first_name":"Jane","last_name":"Doe"}}`)

	t.Run("direct create", func(t *testing.T) {
		cfg := core.DefaultConfig()
		cfg.Webhook.Secret = "secret"
		cfg.Provisioning.Policy = core.PolicyDirectCreate
		provisioner := &stubProvisioner{}
		pipeline := newTestPipeline(cfg, provisioner, &stubProfileStore{})

		if _, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body)); err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if provisioner.createCalls != 1 || provisioner.magicLinkCalls != 0 {
			t.Fatalf("calls = create %d, magic %d; want 1, 0", provisioner.createCalls, provisioner.magicLinkCalls)
		}
		if !provisioner.createInput.Confirmed {
			t.Fatal("direct create must confirm the email")
		}
	})

	t.Run("magic link", func(t *testing.T) {
		cfg := core.DefaultConfig()
		cfg.Webhook.Secret = "secret"
		cfg.Provisioning.Policy = core.PolicyMagicLink
		cfg.Provisioning.RedirectTo = "https://shop.example.com/welcome"
		provisioner := &stubProvisioner{}
		pipeline := newTestPipeline(cfg, provisioner, &stubProfileStore{})

		if _, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body)); err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if provisioner.createCalls != 0 || provisioner.magicLinkCalls != 1 {
			t.Fatalf("calls = create %d, magic %d; want 0, 1", provisioner.createCalls, provisioner.magicLinkCalls)
		}
		if !provisioner.magicLinkInput.CreateUser {
			t.Fatal("magic link must create missing users")
		}
		if provisioner.magicLinkInput.RedirectTo != "https://shop.example.com/welcome" {
			t.Fatalf("redirect = %q", provisioner.magicLinkInput.RedirectTo)
		}
	})
}

func TestPipelineAlreadyExistsStillPersists(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{
		createErr: &core.UserExistsError{UserID: "existing-user"},
	}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("result = %+v", result)
	}
	if result.Metadata["already_exists"] != true {
		t.Fatalf("metadata = %+v, want already_exists", result.Metadata)
	}
	if profiles.upsertCalls != 1 {
		t.Fatalf("upsert calls = %d, want 1", profiles.upsertCalls)
	}
	if profiles.lastInput.UserID != "existing-user" {
		t.Fatalf("user id = %q", profiles.lastInput.UserID)
	}
}

func TestPipelineIdentityFailure(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{createErr: errors.New("gateway timeout")}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
	if err == nil {
		t.Fatal("expected identity failure")
	}
	if result.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", result.StatusCode)
	}
	if profiles.upsertCalls != 0 {
		t.Fatal("persistence must not run after identity failure")
	}
}

func TestPipelinePersistenceFailure(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{upsertErr: errors.New("db down")}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
	if err == nil {
		t.Fatal("expected persistence failure")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", result.StatusCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorPersistenceFailed {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPipelineProductFilter(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	cfg.Webhook.ProductIDs = []int64{42}

	t.Run("no listed product", func(t *testing.T) {
		provisioner := &stubProvisioner{}
		pipeline := newTestPipeline(cfg, provisioner, &stubProfileStore{})
		body := []byte(`{"id":1,"email":"buyer@example.com","line_items":[{"product_id":7}]}`)

		result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if result.Metadata["ignored"] != true {
			t.Fatalf("result = %+v, want ignored", result)
		}
		if provisioner.createCalls != 0 {
			t.Fatal("filtered order must not provision")
		}
	})

	t.Run("listed product", func(t *testing.T) {
		provisioner := &stubProvisioner{}
		pipeline := newTestPipeline(cfg, provisioner, &stubProfileStore{})
		body := []byte(`{"id":1,"email":"buyer@example.com","line_items":[{"product_id":7},{"product_id":42}]}`)

		result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if result.Metadata["ignored"] == true {
			t.Fatal("listed product must pass the filter")
		}
		if provisioner.createCalls != 1 {
			t.Fatalf("create calls = %d, want 1", provisioner.createCalls)
		}
	})
}

func TestPipelineDedupesRedelivery(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)
	pipeline.Ledger = webhooks.NewInMemoryDeliveryLedger()
	pipeline.ExtractID = shopify.DeliveryIDExtractor

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	req := signedRequest("secret", "orders/create", body)
	req.Headers[shopify.HeaderWebhookID] = "delivery-1"

	first, err := pipeline.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if first.Metadata["ignored"] == true {
		t.Fatal("first delivery must be processed")
	}

	second, err := pipeline.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if second.StatusCode != http.StatusOK || second.Metadata["reason"] != "deduped" {
		t.Fatalf("second = %+v, want deduped 200", second)
	}
	if provisioner.createCalls != 1 || profiles.upsertCalls != 1 {
		t.Fatalf("calls = create %d, upsert %d; want 1 each", provisioner.createCalls, profiles.upsertCalls)
	}
}

func TestPipelineCarriesRequestMetadata(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{"id":1,"email":"buyer@example.com"}`)
	req := signedRequest("secret", "orders/create", body)
	req.Metadata = map[string]any{"shop_domain": "store.myshopify.com"}

	result, err := pipeline.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if result.Metadata["shop_domain"] != "store.myshopify.com" {
		t.Fatalf("metadata = %+v, want shop_domain carried through", result.Metadata)
	}
	if result.Metadata["provider_id"] != shopify.ProviderID {
		t.Fatalf("metadata = %+v, pipeline keys must survive the merge", result.Metadata)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "secret"
	provisioner := &stubProvisioner{createdID: "user-jane"}
	profiles := &stubProfileStore{}
	pipeline := newTestPipeline(cfg, provisioner, profiles)

	body := []byte(`{
		"id": 555,
		"email": "",
		"customer": {"email": "jane@x.com", "first_name": "Jane", "last_name": "Doe"},
		"line_items": [{"product_id": 42}]
	}`)
	result, err := pipeline.Process(context.Background(), signedRequest("secret", "orders/create", body))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("result = %+v", result)
	}

	if provisioner.createInput.Email != "jane@x.com" {
		t.Fatalf("create email = %q", provisioner.createInput.Email)
	}
	if provisioner.createInput.FullName != "Jane Doe" {
		t.Fatalf("full name = %q", provisioner.createInput.FullName)
	}
	if profiles.lastInput.Key != "jane@x.com" {
		t.Fatalf("profile key = %q", profiles.lastInput.Key)
	}
	if profiles.lastInput.UserID != "user-jane" {
		t.Fatalf("user id = %q", profiles.lastInput.UserID)
	}
	if profiles.lastInput.SourceOrderID != 555 {
		t.Fatalf("source order = %d", profiles.lastInput.SourceOrderID)
	}
}
