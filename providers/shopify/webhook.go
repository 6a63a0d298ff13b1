package shopify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/webhooks"
)

const (
	ProviderID = "shopify"

	// HeaderHMAC carries the base64 digest Shopify computes over the exact
	// raw request body.
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderShopDomain = "X-Shopify-Shop-Domain"

	TopicOrdersCreate = "orders/create"
)

// NewWebhookVerifier builds the HMAC verifier for Shopify deliveries. Shopify
// signs the raw body with the app's shared secret and base64-encodes the
// digest.
func NewWebhookVerifier(secret string) webhooks.HeaderHMACVerifier {
	return webhooks.HeaderHMACVerifier{
		Header:   HeaderHMAC,
		Secret:   secret,
		Encoding: "base64",
	}
}

// TopicExtractor reads the event topic header.
func TopicExtractor(req core.InboundRequest) string {
	return req.Header(HeaderTopic)
}

// DeliveryIDExtractor resolves the dedupe key for a delivery. The webhook id
// header is preferred; deliveries without one fall back to a digest of the
// payload so replays of the same bytes still collapse.
func DeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if id := req.Header(HeaderWebhookID); id != "" {
		return id, nil
	}
	sum := sha256.Sum256(req.Body)
	return "body:" + hex.EncodeToString(sum[:]), nil
}

// ShopDomain reports the originating shop, normalized to lower case.
func ShopDomain(req core.InboundRequest) string {
	return strings.ToLower(req.Header(HeaderShopDomain))
}

// RequestMetadata annotates a delivery with the originating shop so the
// domain travels through the pipeline into results and logs.
func RequestMetadata(req core.InboundRequest) map[string]any {
	domain := ShopDomain(req)
	if domain == "" {
		return nil
	}
	return map[string]any{"shop_domain": domain}
}
