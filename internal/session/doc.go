// Package session runs live chat sessions.
//
// An Orchestrator drives one connection at a time per Serve call through
// these states:
//
//	Connecting -> Authenticated -> AwaitingInput -> Completing -> Appending -> AwaitingInput ... -> Closed
//
// The handshake token is validated on the streaming path (HS256 only). On
// every user message the identity is re-read so role changes apply to the
// next turn, the role's profile is sent to the completer, and the user
// message plus the reply are appended to the transcript before the reply is
// written back. A failed completion produces an error frame and appends
// nothing. A completion that finishes after the connection closed is
// discarded.
package session
