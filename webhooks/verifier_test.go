package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-provision/core"
)

func hexSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func base64Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHeaderHMACVerifierHex(t *testing.T) {
	body := []byte(`{"payload":true}`)
	verifier := HeaderHMACVerifier{
		Header:   "X-Signature",
		Secret:   "topsecret",
		Encoding: "hex",
	}

	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": hexSignature("topsecret", body)},
		Body:    body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	req.Headers["X-Signature"] = hexSignature("wrong", body)
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected failure with wrong secret")
	}
}

func TestHeaderHMACVerifierBase64(t *testing.T) {
	body := []byte(`{"payload":true}`)
	verifier := HeaderHMACVerifier{
		Header:   "X-Signature",
		Secret:   "topsecret",
		Encoding: "base64",
	}

	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": base64Signature("topsecret", body)},
		Body:    body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	req.Headers["X-Signature"] = "!!!not-base64!!!"
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected failure for undecodable signature")
	}
}

func TestHeaderHMACVerifierPrefix(t *testing.T) {
	body := []byte(`payload`)
	verifier := HeaderHMACVerifier{
		Header:   "X-Signature",
		Prefix:   "sha256=",
		Secret:   "topsecret",
		Encoding: "hex",
	}
	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": "sha256=" + hexSignature("topsecret", body)},
		Body:    body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
}

func TestHeaderHMACVerifierRequiresHeaderAndSecret(t *testing.T) {
	verifier := HeaderHMACVerifier{Header: "X-Signature", Secret: "s", Encoding: "hex"}
	if err := verifier.Verify(context.Background(), core.InboundRequest{Body: []byte(`x`)}); err == nil {
		t.Fatal("expected missing header error")
	}

	verifier.Secret = ""
	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": "deadbeef"},
		Body:    []byte(`x`),
	}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestHeaderHMACVerifierSignsExactBytes(t *testing.T) {
	// Whitespace-different but JSON-equivalent bodies must not verify.
	signed := []byte(`{"a":1}`)
	reserialized := []byte(`{"a": 1}`)

	verifier := HeaderHMACVerifier{Header: "X-Signature", Secret: "topsecret", Encoding: "hex"}
	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": hexSignature("topsecret", signed)},
		Body:    reserialized,
	}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected failure for re-serialized body")
	}
}
