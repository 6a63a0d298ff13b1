package core

import "testing"

func TestProfileKey_EmailMode(t *testing.T) {
	key := ProfileKey(KeyByEmail, ProvisioningOutcome{UserID: "usr_1"}, Customer{Email: " Jane@X.com "})
	if key != "jane@x.com" {
		t.Fatalf("expected normalized email key, got %q", key)
	}
}

func TestProfileKey_ProviderIDMode(t *testing.T) {
	key := ProfileKey(KeyByProviderID, ProvisioningOutcome{UserID: "usr_1"}, Customer{Email: "jane@x.com"})
	if key != "usr_1" {
		t.Fatalf("expected provider id key, got %q", key)
	}
}

func TestProfileKey_ProviderIDModeFallsBackToEmail(t *testing.T) {
	key := ProfileKey(KeyByProviderID, ProvisioningOutcome{AlreadyExists: true}, Customer{Email: "jane@x.com"})
	if key != "jane@x.com" {
		t.Fatalf("expected email fallback when no provider id, got %q", key)
	}
}

func TestCustomerValid(t *testing.T) {
	if (Customer{Email: "   "}).Valid() {
		t.Fatalf("expected blank email to be invalid")
	}
	if !(Customer{Email: "a@b.com"}).Valid() {
		t.Fatalf("expected non-empty email to be valid")
	}
}
