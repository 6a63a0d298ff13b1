package webhooks

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
)

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type TopicExtractor func(req core.InboundRequest) string

// Pipeline is the webhook admission pipeline. Stages run in fixed order:
// verify, topic filter, claim (when a ledger is configured), normalize,
// product filter, provision, persist, acknowledge. A rejection at any stage
// leaves the later collaborators untouched.
type Pipeline struct {
	Verifier    Verifier
	Normalizer  core.OrderNormalizer
	Provisioner core.IdentityProvisioner
	Profiles    core.ProfileStore

	Topic        string
	ExtractTopic TopicExtractor
	ProductIDs   []int64
	Policy       core.ProvisionPolicy
	KeyBy        core.ProfileKeyMode
	RedirectTo   string

	Ledger      DeliveryLedger
	ExtractID   DeliveryIDExtractor
	ClaimLease  time.Duration
	MaxAttempts int

	Logger core.Logger
	Now    func() time.Time
}

func NewPipeline(
	cfg core.Config,
	verifier Verifier,
	normalizer core.OrderNormalizer,
	provisioner core.IdentityProvisioner,
	profiles core.ProfileStore,
) *Pipeline {
	return &Pipeline{
		Verifier:    verifier,
		Normalizer:  normalizer,
		Provisioner: provisioner,
		Profiles:    profiles,
		Topic:       strings.TrimSpace(cfg.Webhook.Topic),
		ProductIDs:  append([]int64(nil), cfg.Webhook.ProductIDs...),
		Policy:      cfg.Provisioning.Policy,
		KeyBy:       cfg.Provisioning.KeyBy,
		RedirectTo:  strings.TrimSpace(cfg.Provisioning.RedirectTo),
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Pipeline) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Verifier == nil || p.Normalizer == nil || p.Provisioner == nil || p.Profiles == nil {
		return core.InboundResult{}, pipelineInternal("webhooks: pipeline requires verifier, normalizer, provisioner, and profile store")
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return core.InboundResult{}, pipelineBadInput("webhooks: provider id is required")
	}
	req.ProviderID = providerID

	if err := p.Verifier.Verify(ctx, req); err != nil {
		result := rejected(http.StatusUnauthorized, providerID)
		wrapped := goerrors.Wrap(err, goerrors.CategoryAuth, "webhooks: request verification failed").
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ErrorUnauthorized).
			WithMetadata(map[string]any{"provider_id": providerID})
		p.logError(ctx, "webhook rejected", "provider_id", providerID, "reason", "signature")
		return result, wrapped
	}

	if p.Topic != "" {
		if p.ExtractTopic == nil {
			return core.InboundResult{}, pipelineInternal("webhooks: topic filter requires a topic extractor")
		}
		topic := strings.TrimSpace(p.ExtractTopic(req))
		if !strings.EqualFold(topic, p.Topic) {
			p.logInfo(ctx, "webhook ignored", "provider_id", providerID, "topic", topic)
			return ignored(providerID, "topic", map[string]any{"topic": topic}), nil
		}
	}

	claimID := ""
	deliveryID := ""
	if p.Ledger != nil {
		extractor := p.ExtractID
		if extractor == nil {
			return core.InboundResult{}, pipelineInternal("webhooks: ledger requires a delivery id extractor")
		}
		id, err := extractor(req)
		if err != nil {
			return core.InboundResult{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "webhooks: resolve delivery id").
				WithCode(http.StatusBadRequest).
				WithTextCode(core.ErrorBadInput)
		}
		deliveryID = id
		record, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, req.Body, p.claimLease())
		if err != nil {
			return core.InboundResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "webhooks: claim delivery").
				WithCode(http.StatusInternalServerError).
				WithTextCode(core.ErrorInternal)
		}
		if !claimed {
			p.logInfo(ctx, "webhook deduped", "provider_id", providerID, "delivery_id", deliveryID, "status", record.Status)
			return ignored(providerID, "deduped", map[string]any{
				"delivery_id": deliveryID,
				"status":      record.Status,
			}), nil
		}
		claimID = record.ClaimID
	}

	order, err := p.Normalizer.Normalize(req.Body)
	if err != nil {
		result := rejected(core.HTTPStatus(err), providerID)
		p.failClaim(ctx, claimID, err)
		p.logError(ctx, "webhook rejected", "provider_id", providerID, "reason", "payload", "error", err.Error())
		return result, err
	}

	if len(p.ProductIDs) > 0 && !intersects(order.ProductIDs, p.ProductIDs) {
		p.completeClaim(ctx, claimID)
		p.logInfo(ctx, "webhook ignored", "provider_id", providerID, "reason", "product_filter")
		return ignored(providerID, "product_filter", nil), nil
	}

	outcome, err := p.provision(ctx, order.Customer)
	if err != nil {
		result := rejected(http.StatusBadGateway, providerID)
		p.failClaim(ctx, claimID, err)
		wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "webhooks: identity provisioning failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorIdentityFailed).
			WithMetadata(map[string]any{"provider_id": providerID, "email": order.Customer.Email})
		p.logError(ctx, "provisioning failed", "provider_id", providerID, "email", order.Customer.Email, "error", err.Error())
		return result, wrapped
	}

	key := core.ProfileKey(p.KeyBy, outcome, order.Customer)
	profile, err := p.Profiles.Upsert(ctx, core.UpsertProfileInput{
		Key:           key,
		UserID:        outcome.UserID,
		Email:         order.Customer.Email,
		FirstName:     order.Customer.FirstName,
		FullName:      order.Customer.FullName,
		SourceOrderID: order.Customer.SourceOrderID,
	})
	if err != nil {
		result := rejected(http.StatusInternalServerError, providerID)
		p.failClaim(ctx, claimID, err)
		wrapped := goerrors.Wrap(err, goerrors.CategoryInternal, "webhooks: profile persistence failed").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ErrorPersistenceFailed).
			WithMetadata(map[string]any{"provider_id": providerID, "profile_key": key})
		p.logError(ctx, "persistence failed", "provider_id", providerID, "profile_key", key, "error", err.Error())
		return result, wrapped
	}

	p.completeClaim(ctx, claimID)
	p.logInfo(ctx, "webhook processed",
		"provider_id", providerID,
		"email", order.Customer.Email,
		"profile_key", key,
		"already_exists", outcome.AlreadyExists,
	)

	metadata := map[string]any{
		"provider_id":    providerID,
		"email":          order.Customer.Email,
		"profile_key":    profile.Key,
		"policy":         string(outcome.Policy),
		"already_exists": outcome.AlreadyExists,
	}
	for key, value := range req.Metadata {
		if _, taken := metadata[key]; !taken {
			metadata[key] = value
		}
	}
	if deliveryID != "" {
		metadata["delivery_id"] = deliveryID
	}
	if outcome.UserID != "" {
		metadata["user_id"] = outcome.UserID
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

// provision fires exactly one policy. Already-exists responses from direct
// creation are downgraded to a successful outcome.
func (p *Pipeline) provision(ctx context.Context, customer core.Customer) (core.ProvisioningOutcome, error) {
	policy := p.Policy
	if policy == "" {
		policy = core.PolicyDirectCreate
	}
	switch policy {
	case core.PolicyMagicLink:
		err := p.Provisioner.SendMagicLink(ctx, core.MagicLinkInput{
			Email:      customer.Email,
			RedirectTo: p.RedirectTo,
			CreateUser: true,
		})
		if err != nil {
			return core.ProvisioningOutcome{}, err
		}
		return core.ProvisioningOutcome{Policy: policy}, nil
	default:
		created, err := p.Provisioner.CreateUser(ctx, core.CreateUserInput{
			Email:     customer.Email,
			FirstName: customer.FirstName,
			FullName:  customer.FullName,
			Confirmed: true,
		})
		if err != nil {
			if existsErr, ok := core.AsUserExists(err); ok {
				return core.ProvisioningOutcome{
					UserID:        existsErr.UserID,
					AlreadyExists: true,
					Policy:        policy,
				}, nil
			}
			return core.ProvisioningOutcome{}, err
		}
		return core.ProvisioningOutcome{UserID: created.ID, Policy: policy}, nil
	}
}

func (p *Pipeline) completeClaim(ctx context.Context, claimID string) {
	if p.Ledger == nil || claimID == "" {
		return
	}
	if err := p.Ledger.Complete(ctx, claimID); err != nil {
		p.logError(ctx, "complete delivery claim failed", "claim_id", claimID, "error", err.Error())
	}
}

func (p *Pipeline) failClaim(ctx context.Context, claimID string, cause error) {
	if p.Ledger == nil || claimID == "" {
		return
	}
	if err := p.Ledger.Fail(ctx, claimID, cause, p.maxAttempts()); err != nil {
		p.logError(ctx, "fail delivery claim failed", "claim_id", claimID, "error", err.Error())
	}
}

func (p *Pipeline) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Pipeline) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func (p *Pipeline) logInfo(ctx context.Context, message string, args ...any) {
	if p == nil || p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info(message, args...)
}

func (p *Pipeline) logError(ctx context.Context, message string, args ...any) {
	if p == nil || p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(message, args...)
}

func ignored(providerID string, reason string, extra map[string]any) core.InboundResult {
	metadata := map[string]any{
		"provider_id": providerID,
		"ignored":     true,
		"reason":      reason,
	}
	for key, value := range extra {
		metadata[key] = value
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}
}

func rejected(statusCode int, providerID string) core.InboundResult {
	return core.InboundResult{
		Accepted:   false,
		StatusCode: statusCode,
		Metadata: map[string]any{
			"provider_id": providerID,
			"rejected":    true,
		},
	}
}

func intersects(ordered []int64, allowed []int64) bool {
	for _, id := range ordered {
		if slices.Contains(allowed, id) {
			return true
		}
	}
	return false
}

func pipelineInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func pipelineBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}
