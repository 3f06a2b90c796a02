package types

import "github.com/google/uuid"

// RequestUID identifies one local Acquire call across log lines. It
// travels in the LOCAL_REQUEST envelope and comes back in the TO_APP
// grant, where Acquire matches it; LOCAL_RELEASE envelopes carry none.
// No algorithm handler's protocol decision ever depends on it, so it
// cannot influence the spec.md §8 invariants.
type RequestUID string

// NewRequestUID generates a fresh correlation id.
func NewRequestUID() RequestUID {
	return RequestUID(uuid.NewString())
}
