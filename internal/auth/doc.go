// Package auth provides bearer-token and password primitives for metrosha-gateway.
//
// # Tokens
//
// TokenService issues and validates HMAC-signed JWTs whose "sub" claim is
// the identity's email. Two validation paths exist:
//
//   - ValidateHeader: accepts only the configured algorithm (HS256, HS384 or HS512)
//   - ValidateStream: accepts only HS256, whatever the configuration says
//
// Tokens are never persisted and never revoked; they stay valid until "exp".
//
// # Passwords
//
// PasswordHasher wraps bcrypt. Input is truncated to 72 bytes before hashing
// and verifying. VerifyDummy is used for unknown accounts so that login
// timing does not reveal which emails exist.
//
// # HTTP
//
// HTTPAuthMiddleware reads "Authorization: Bearer <token>", resolves the
// identity through an IdentityResolver and stores an AuthContext:
//
//	mux.Handle("GET /api/user/", auth.HTTPAuthMiddleware(accounts, logger)(handler))
//	authCtx := auth.FromContext(r.Context())
//
// StreamToken reads the token from the "Authorization" query parameter used
// by the chat WebSocket handshake.
package auth
