// Package transcript manages the conversation history document of each identity.
//
// Every identity has at most one transcript, keyed by the identity's stable
// ID. A transcript starts with the assistant Greeting and grows by whole
// turns: the user's message followed by the assistant's reply. Messages are
// never reordered or deduplicated. Clear is the only operation that removes
// messages, and it keeps the most recent one.
//
// The identity references its transcript through a back-pointer that is set
// once; deleting an identity leaves its transcript in place.
package transcript
