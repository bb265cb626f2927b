// Package completion produces assistant replies from a language-model service.
//
// The session layer depends only on the Completer interface. Client is the
// production implementation for GigaChat-compatible APIs: it exchanges the
// configured authorization key for a short-lived access token (cached until
// a minute before expiry) and posts chat requests to {base_url}/chat/completions.
//
// Each identity role maps to a Profile carrying the system prompt,
// temperature and token limit used for that role.
package completion
