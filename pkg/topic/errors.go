package topic

import "errors"

// Domain-specific errors for topic operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedTopic is returned when a topic string does not match any
	// shape legal for the builder's role, or a concrete segment is invalid.
	ErrMalformedTopic = errors.New("topic: malformed topic")

	// ErrInvalidSubscriptionShape is returned when a filter specifies a
	// segment after an omitted one (e.g. format without name).
	ErrInvalidSubscriptionShape = errors.New("topic: invalid subscription shape")

	// ErrRoleMismatch is returned when a topic shape is not legal for the role.
	ErrRoleMismatch = errors.New("topic: shape not permitted for role")
)
