// Package shopify adapts Shopify webhook deliveries to the generic admission
// pipeline: payload parsing, customer normalization with the documented email
// and name fallbacks, and the provider's signature and header conventions.
package shopify
