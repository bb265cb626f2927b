// Package account is the authentication gate of metrosha-gateway.
//
// Service registers identities, logs them in, resolves bearer tokens back to
// identities and lets an identity read, update or delete its own record.
// Every failure is an *apperr.Error; credential and token problems are all
// reported as KindInvalidCredentials with the same message.
package account
