package msg

import (
	"errors"
	"fmt"
)

// MaxGroupSize is the maximum number of bytes in a group name.
const MaxGroupSize = 15

// ErrInvalidGroup is returned when a group name is empty, too long, or
// contains a NUL byte.
var ErrInvalidGroup = errors.New("invalid group")

// Group is a validated channel name used by Radio and Dish sockets to scope
// fan-out delivery. The zero Group means "no group".
type Group struct {
	name string
}

// NewGroup validates name and returns it as a Group.
func NewGroup(name string) (Group, error) {
	if name == "" {
		return Group{}, fmt.Errorf("empty group name: %w", ErrInvalidGroup)
	}
	if len(name) > MaxGroupSize {
		return Group{}, fmt.Errorf("group %q exceeds %d bytes: %w", name, MaxGroupSize, ErrInvalidGroup)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return Group{}, fmt.Errorf("group contains NUL byte: %w", ErrInvalidGroup)
		}
	}
	return Group{name: name}, nil
}

// MustGroup is NewGroup for literals known to be valid; it panics on error.
func MustGroup(name string) Group {
	g, err := NewGroup(name)
	if err != nil {
		panic(err)
	}
	return g
}

// String returns the group name.
func (g Group) String() string { return g.name }

// IsZero reports whether g is the zero "no group" value.
func (g Group) IsZero() bool { return g.name == "" }
