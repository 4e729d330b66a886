package store

import (
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// DiffProps computes the property deltas between two user property maps.
// Keys beginning with "_" (temporal metadata) are skipped; values compare
// with deep structural equality. A missing side represents add/remove.
func DiffProps(oldProps, newProps map[string]interface{}) []PropertyChange {
	keys := make(map[string]bool)
	for k := range oldProps {
		if !strings.HasPrefix(k, "_") {
			keys[k] = true
		}
	}
	for k := range newProps {
		if !strings.HasPrefix(k, "_") {
			keys[k] = true
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []PropertyChange
	for _, k := range sorted {
		oldVal, hasOld := oldProps[k]
		newVal, hasNew := newProps[k]
		switch {
		case hasOld && !hasNew:
			changes = append(changes, PropertyChange{Property: k, Old: oldVal})
		case !hasOld && hasNew:
			changes = append(changes, PropertyChange{Property: k, New: newVal})
		case !cmp.Equal(oldVal, newVal):
			changes = append(changes, PropertyChange{Property: k, Old: oldVal, New: newVal})
		}
	}
	return changes
}

// PropsEqual reports deep structural equality of two user property maps,
// ignoring "_"-prefixed keys.
func PropsEqual(a, b map[string]interface{}) bool {
	return len(DiffProps(a, b)) == 0
}
