// Package identity talks to a GoTrue-compatible auth service using the
// service-role key: direct admin user creation and passwordless magic-link
// dispatch. Already-registered responses are classified, not surfaced as
// failures.
package identity
