package annotation

import (
	"errors"
	"fmt"
)

// TaskKind identifies the marking tool or question a task annotation came from.
// The numeric order is the declared evaluation order.
type TaskKind int

const (
	KindChoice TaskKind = iota
	KindCount
	KindPoint
	KindCircle
	KindRect
)

// ErrUnknownTaskKind is returned when a task kind name or value is not recognised.
var ErrUnknownTaskKind = errors.New("unknown task kind")

var kindNames = [...]string{
	KindChoice: "choice",
	KindCount:  "count",
	KindPoint:  "point-mark",
	KindCircle: "circle-mark",
	KindRect:   "rect-mark",
}

// AllKinds returns every task kind in declared order.
func AllKinds() []TaskKind {
	return []TaskKind{KindChoice, KindCount, KindPoint, KindCircle, KindRect}
}

// String returns the wire name of the kind.
func (k TaskKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k TaskKind) Valid() bool {
	return k >= KindChoice && k <= KindRect
}

// Spatial reports whether annotations of this kind are marks that get clustered.
func (k TaskKind) Spatial() bool {
	return k == KindPoint || k == KindCircle || k == KindRect
}

// ParseTaskKind maps a wire name back to its TaskKind.
func ParseTaskKind(name string) (TaskKind, error) {
	for i, n := range kindNames {
		if n == name {
			return TaskKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTaskKind, name)
}

// MarshalText implements encoding.TextMarshaler so kinds serialise by name.
func (k TaskKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTaskKind, int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TaskKind) UnmarshalText(b []byte) error {
	parsed, err := ParseTaskKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
