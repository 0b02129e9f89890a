package topic

import (
	"fmt"
	"strings"
)

// Builder encodes, decodes and filters topics for one role.
//
// A Builder is immutable and safe for concurrent use.
type Builder struct {
	role   Role
	shapes []shape
}

// NewBuilder returns a Builder restricted to the topic shapes legal for role.
// An unknown role yields a Builder that rejects every topic.
func NewBuilder(role Role) Builder {
	return Builder{role: role, shapes: roleShapes[role]}
}

// Role returns the role the builder was created for.
func (b Builder) Role() Role {
	return b.role
}

// Encode returns the concrete topic string for t.
//
// Every variable segment of the selected shape must be set and must not
// contain "/", "+" or "#".
//
// Returns:
//   - string: The wire topic
//   - error: ErrRoleMismatch if no shape for the role fits t,
//     ErrMalformedTopic if a segment is empty or invalid
func (b Builder) Encode(t Topic) (string, error) {
	sh, err := b.shapeFor(t)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(sh.segments))
	for i, seg := range sh.segments {
		if !seg.isVar() {
			parts[i] = seg.literal
			continue
		}
		v := t.get(seg.field)
		if !validSegment(v) {
			return "", fmt.Errorf("%w: %s segment %q in %s topic", ErrMalformedTopic, seg.field, v, sh.name)
		}
		parts[i] = v
	}
	return strings.Join(parts, Separator), nil
}

// Decode parses a concrete topic string.
//
// It is the inverse of Encode: Decode(Encode(t)) == t for every topic t that
// Encode accepts. Topics whose segment count or literal markers do not match
// a shape legal for the role fail with ErrMalformedTopic.
func (b Builder) Decode(s string) (Topic, error) {
	parts := strings.Split(s, Separator)

	for _, sh := range b.shapes {
		if len(parts) != len(sh.segments) {
			continue
		}
		t, ok := sh.parse(parts)
		if ok {
			return t, nil
		}
	}
	return Topic{}, fmt.Errorf("%w: %q is not a %s topic", ErrMalformedTopic, s, b.role)
}

// Filter builds a subscription filter from a partially specified topic.
//
// Omitted (empty) segments become "+". Segments are filled in specificity
// order (type, id, name, format; or app id) and may not have gaps: a
// caller cannot give a format without a name, a name without an id, or an
// id without a type.
//
// Returns:
//   - string: The filter, e.g. "iot-2/type/T/id/+/evt/+/fmt/+"
//   - error: ErrInvalidSubscriptionShape on gaps or invalid segments,
//     ErrRoleMismatch if the direction is not legal for the role
func (b Builder) Filter(t Topic) (string, error) {
	sh, err := b.shapeFor(t)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(sh.segments))
	var omitted field
	for i, seg := range sh.segments {
		if !seg.isVar() {
			parts[i] = seg.literal
			continue
		}
		v := t.get(seg.field)
		switch {
		case v == "":
			parts[i] = SingleLevelWildcard
			if omitted == fieldNone {
				omitted = seg.field
			}
		case omitted != fieldNone:
			return "", fmt.Errorf("%w: %s given without %s", ErrInvalidSubscriptionShape, seg.field, omitted)
		case !validSegment(v):
			return "", fmt.Errorf("%w: %s segment %q", ErrInvalidSubscriptionShape, seg.field, v)
		default:
			parts[i] = v
		}
	}
	return strings.Join(parts, Separator), nil
}

// shapeFor selects the shape legal for the role that fits t.
func (b Builder) shapeFor(t Topic) (shape, error) {
	for _, sh := range b.shapes {
		if sh.direction != t.Direction {
			continue
		}
		if sh.direction == DirectionEvent || sh.direction == DirectionCommand {
			if sh.scoped != (t.DeviceType == "" && t.DeviceID == "" && b.role == RoleDevice) {
				continue
			}
		}
		return sh, nil
	}
	return shape{}, fmt.Errorf("%w: %s topic for %s", ErrRoleMismatch, t.Direction, b.role)
}

// parse matches parts against the shape's literals and extracts fields.
func (sh shape) parse(parts []string) (Topic, bool) {
	t := Topic{Direction: sh.direction}
	for i, seg := range sh.segments {
		if !seg.isVar() {
			if parts[i] != seg.literal {
				return Topic{}, false
			}
			continue
		}
		if !validSegment(parts[i]) {
			return Topic{}, false
		}
		t.set(seg.field, parts[i])
	}
	return t, true
}
