package scheme

import (
	"strings"

	"github.com/pkg/errors"
)

// Group namespaces kinds, e.g. all events of the command center live in one group
type Group string

// Empty returns true if group is empty
func (g Group) Empty() bool {
	return len(g) == 0
}

func (g Group) String() string {
	return string(g)
}

// GroupKind specifies a Group and a Kind. Its string form is the type tag stored next to a serialized payload.
type GroupKind struct {
	Group Group
	Kind  string
}

func (gk GroupKind) Empty() bool {
	return gk.Group.Empty() && len(gk.Kind) == 0
}

func (gk GroupKind) String() string {
	if len(gk.Group) == 0 {
		return gk.Kind
	}
	return gk.Group.String() + "." + gk.Kind
}

// ParseGroupKind is the inverse of GroupKind.String. The kind is everything after the last dot.
func ParseGroupKind(tag string) (GroupKind, error) {
	idx := strings.LastIndex(tag, ".")
	if idx <= 0 || idx == len(tag)-1 {
		return GroupKind{}, errors.Errorf("malformed type tag %q, expected group.Kind", tag)
	}

	return GroupKind{Group: Group(tag[:idx]), Kind: tag[idx+1:]}, nil
}
