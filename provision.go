package provision

import "github.com/goliatone/go-provision/core"

type Config = core.Config

type Customer = core.Customer
type NormalizedOrder = core.NormalizedOrder
type Profile = core.Profile
type ProvisioningOutcome = core.ProvisioningOutcome

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult

type IdentityProvisioner = core.IdentityProvisioner
type ProfileStore = core.ProfileStore
type OrderNormalizer = core.OrderNormalizer

type ProvisionPolicy = core.ProvisionPolicy
type ProfileKeyMode = core.ProfileKeyMode
type NameFallback = core.NameFallback

const (
	PolicyDirectCreate = core.PolicyDirectCreate
	PolicyMagicLink    = core.PolicyMagicLink

	KeyByEmail      = core.KeyByEmail
	KeyByProviderID = core.KeyByProviderID

	NameFallbackBilling  = core.NameFallbackBilling
	NameFallbackShipping = core.NameFallbackShipping
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
