// Package core holds the domain model, collaborator contracts, configuration,
// and error taxonomy shared by the provisioning pipeline.
//
// Nothing in this package performs I/O; the identity provider and the profile
// store are consumed through narrow interfaces so deployments can swap the
// hosted adapters for fixtures.
package core
