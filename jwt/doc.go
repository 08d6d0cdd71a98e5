// Package jwt mints and verifies the two signed token kinds: short-lived
// stateless access tokens and long-lived rotatable refresh tokens. Both
// carry the subject id, a role snapshot, a JTI, and a type discriminator;
// a refresh token is never accepted where an access token is expected and
// vice versa.
//
// # Architecture boundaries
//
// This package owns claim shape and signature validation. It does NOT touch
// the refresh-token ledger; whether a structurally valid refresh token is
// still live is the Engine's decision.
package jwt
