package annotation

import "fmt"

// SchemaError reports a record that violates the input contract, such as a
// classification without a subject id. It is fatal for a whole run.
type SchemaError struct {
	ClassificationID int64
	Field            string
	Reason           string
}

func (e *SchemaError) Error() string {
	if e.ClassificationID != 0 {
		return fmt.Sprintf("schema error: classification %d: field %s: %s", e.ClassificationID, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema error: field %s: %s", e.Field, e.Reason)
}

// MalformedMarkError reports a spatial mark with a non-finite value. The
// mark is dropped and counted; the subject is still reduced.
type MalformedMarkError struct {
	Kind  TaskKind
	Field string
}

func (e *MalformedMarkError) Error() string {
	return fmt.Sprintf("malformed %s mark: non-finite %s", e.Kind, e.Field)
}
