package api

import (
	"strings"

	"github.com/google/uuid"
)

const completionIDPrefix = "chatcmpl-"

// NewCompletionID generates a new completion ID: "chatcmpl-" followed by a
// random UUID.
func NewCompletionID() string {
	return completionIDPrefix + uuid.NewString()
}

// CompletionIDFor derives a completion ID from a backend request ID so that
// responses can be correlated with backend logs. An empty backend ID yields
// a fresh random ID.
func CompletionIDFor(backendRequestID string) string {
	backendRequestID = strings.TrimSpace(backendRequestID)
	if backendRequestID == "" {
		return NewCompletionID()
	}
	return completionIDPrefix + backendRequestID
}

// ValidateCompletionID reports whether id carries the completion prefix and
// a non-empty suffix.
func ValidateCompletionID(id string) bool {
	return strings.HasPrefix(id, completionIDPrefix) && len(id) > len(completionIDPrefix)
}
