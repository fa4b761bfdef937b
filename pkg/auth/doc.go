// Package auth guards the proxy's API routes with a bearer-token check.
//
// Authentication uses a chain of authenticators with three-outcome voting:
// each returns Yes (identity found), No (credentials invalid), or Abstain
// (cannot handle the credentials). A configurable default decides when all
// authenticators abstain. The chain runs as HTTP middleware in front of the
// transport adapter, so the engine never sees credentials.
//
// Rejections are written as OpenAI-style JSON errors
// (authentication_error with 401, rate_limit_error with 429).
package auth
