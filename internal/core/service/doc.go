// Package service provides domain services for DirMesh.
//
// Domain services hold the directory rules and orchestrate operations on
// domain models. They define interfaces for their storage and transport
// dependencies so that servers can inject them.
//
// This package contains:
//
//   - ResourceService: PUBLISH, REMOVE, SHARE, QUERY and FETCH rules
//   - SubscriptionService: subscribers and ordered delivery of published resources
//   - SecretVerifier: Argon2id check of the SHARE secret
//
// Services are safe for concurrent use.
package service
