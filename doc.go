// Package credentials provides the credential lifecycle for an e-commerce
// backend: password login, signed session tokens, rotating refresh tokens,
// single-use action tokens, and federated identity linking.
//
// Sessions:
//   - TokenService signs short-lived HMAC JWTs carrying the user's id,
//     email, and role. SessionIssuer pairs each session with an opaque
//     refresh secret stored only as a keyed hash. Rotation is single-use
//     with a forward chain (replaced_by_token_hash), and presenting a
//     revoked secret cascades into revoking the owner's whole session set.
//
// Action tokens:
//   - ActionTokenManager issues and redeems email verification and password
//     reset tokens. Resending is allowed, stale unconsumed tokens simply
//     expire, a conditional update makes redemption single-use under
//     concurrency, and a consumed reset token kills every active refresh
//     token.
//
// Federated identities:
//   - provider/google verifies Google ID tokens against the live JWK Set;
//     IdentityLinker maps the attested profile onto a user record by
//     provider subject, by email link-up, or by creating a verified
//     account with an unusable password.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther,
//     SessionIssuer, ActionTokenManager, and IdentityLinker. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package credentials
