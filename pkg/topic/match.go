package topic

import (
	"fmt"
	"strings"
)

// Wildcard filters for common subscriptions.
const (
	// AllScopedCommands receives every command sent to a device session.
	AllScopedCommands = "iot-2/cmd/+/fmt/+"

	// AllEvents receives every device event in the organisation.
	AllEvents = "iot-2/type/+/id/+/evt/+/fmt/+"

	// AllCommands receives every device command in the organisation.
	AllCommands = "iot-2/type/+/id/+/cmd/+/fmt/+"

	// AllDeviceStatus receives every device status update.
	AllDeviceStatus = "iot-2/type/+/id/+/mon"

	// AllAppStatus receives every application status update.
	AllAppStatus = "iot-2/app/+/mon"
)

// ValidateFilter checks that wildcards occupy whole segments and that "#"
// appears only as the final segment.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidSubscriptionShape)
	}
	parts := strings.Split(filter, Separator)
	for i, p := range parts {
		switch {
		case p == MultiLevelWildcard && i != len(parts)-1:
			return fmt.Errorf("%w: %q must be the last segment in %q", ErrInvalidSubscriptionShape, MultiLevelWildcard, filter)
		case p == SingleLevelWildcard, p == MultiLevelWildcard:
		case strings.ContainsAny(p, "+#"):
			return fmt.Errorf("%w: wildcard inside segment %q", ErrInvalidSubscriptionShape, p)
		}
	}
	return nil
}

// Match reports whether the concrete topic is matched by filter.
//
// "+" matches exactly one segment and "#" matches one or more trailing
// segments.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, Separator)
	ts := strings.Split(topic, Separator)

	for i, f := range fs {
		if f == MultiLevelWildcard {
			return i == len(fs)-1 && len(ts) > i
		}
		if i >= len(ts) {
			return false
		}
		if f != SingleLevelWildcard && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

// Specificity ranks a filter for dispatch. Lower wildcard counts win, then
// longer literal prefixes.
type Specificity struct {
	Wildcards     int
	LiteralPrefix int
}

// SpecificityOf computes the rank of filter.
func SpecificityOf(filter string) Specificity {
	var s Specificity
	prefix := true
	for _, p := range strings.Split(filter, Separator) {
		if p == SingleLevelWildcard || p == MultiLevelWildcard {
			s.Wildcards++
			prefix = false
			continue
		}
		if prefix {
			s.LiteralPrefix++
		}
	}
	return s
}

// MoreSpecificThan reports whether s strictly outranks o.
func (s Specificity) MoreSpecificThan(o Specificity) bool {
	if s.Wildcards != o.Wildcards {
		return s.Wildcards < o.Wildcards
	}
	return s.LiteralPrefix > o.LiteralPrefix
}
