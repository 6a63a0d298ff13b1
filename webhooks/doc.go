// Package webhooks implements the webhook admission pipeline: signature
// verification, topic filtering, payload normalization, and the ordered
// provisioning/persistence calls.
//
// The pipeline is stateless per request and never retries internally;
// redelivery by the sender converges through the profile upsert, and the
// optional delivery ledger uses claim/complete/fail semantics so transient
// failures remain retryable.
package webhooks
