package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wireClassification is the JSON form of the typed input contract. Ids are
// pointers so a missing field can be told apart from a zero value.
type wireClassification struct {
	ClassificationID *int64           `json:"classification_id"`
	UserID           *int64           `json:"user_id"`
	SubjectID        *int64           `json:"subject_id"`
	Annotations      []wireAnnotation `json:"annotations"`
}

type wireAnnotation struct {
	Kind   string          `json:"kind"`
	Value  json.RawMessage `json:"value,omitempty"`
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	R      *float64        `json:"r,omitempty"`
	Width  *float64        `json:"width,omitempty"`
	Height *float64        `json:"height,omitempty"`
	Angle  *float64        `json:"angle,omitempty"`
}

// MarshalJSON encodes the classification in the typed input format.
func (c Classification) MarshalJSON() ([]byte, error) {
	w := wireClassification{
		ClassificationID: &c.ClassificationID,
		UserID:           &c.UserID,
		SubjectID:        &c.SubjectID,
		Annotations:      make([]wireAnnotation, 0, len(c.Annotations)),
	}
	for _, a := range c.Annotations {
		wa, err := encodeAnnotation(a)
		if err != nil {
			return nil, fmt.Errorf("classification %d: %w", c.ClassificationID, err)
		}
		w.Annotations = append(w.Annotations, wa)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the typed input format. Missing ids, unknown kinds
// and marks without coordinates are reported as *SchemaError.
func (c *Classification) UnmarshalJSON(b []byte) error {
	var w wireClassification
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	var id int64
	if w.ClassificationID != nil {
		id = *w.ClassificationID
	}
	switch {
	case w.ClassificationID == nil:
		return &SchemaError{Field: "classification_id", Reason: "missing"}
	case w.UserID == nil:
		return &SchemaError{ClassificationID: id, Field: "user_id", Reason: "missing"}
	case w.SubjectID == nil:
		return &SchemaError{ClassificationID: id, Field: "subject_id", Reason: "missing"}
	}

	out := Classification{
		ClassificationID: id,
		UserID:           *w.UserID,
		SubjectID:        *w.SubjectID,
		Annotations:      make([]Annotation, 0, len(w.Annotations)),
	}
	for i, wa := range w.Annotations {
		a, err := decodeAnnotation(wa)
		if err != nil {
			return &SchemaError{
				ClassificationID: id,
				Field:            fmt.Sprintf("annotations[%d]", i),
				Reason:           err.Error(),
			}
		}
		out.Annotations = append(out.Annotations, a)
	}
	*c = out
	return nil
}

func encodeAnnotation(a Annotation) (wireAnnotation, error) {
	wa := wireAnnotation{Kind: a.Kind().String()}
	switch v := a.(type) {
	case Choice:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return wa, err
		}
		wa.Value = raw
	case Count:
		if v.Value == nil {
			wa.Value = json.RawMessage("null")
		} else {
			wa.Value = json.RawMessage(strconv.Itoa(*v.Value))
		}
	case PointMark:
		wa.X, wa.Y = &v.X, &v.Y
	case CircleMark:
		wa.X, wa.Y, wa.R, wa.Angle = &v.X, &v.Y, &v.Radius, v.Angle
	case RectMark:
		wa.X, wa.Y, wa.Width, wa.Height = &v.X, &v.Y, &v.Width, &v.Height
	default:
		return wa, fmt.Errorf("%w: %T", ErrUnknownTaskKind, a)
	}
	return wa, nil
}

func decodeAnnotation(wa wireAnnotation) (Annotation, error) {
	kind, err := ParseTaskKind(wa.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindChoice:
		var s string
		if err := json.Unmarshal(wa.Value, &s); err != nil {
			return nil, fmt.Errorf("choice value must be a string")
		}
		return Choice{Value: s}, nil
	case KindCount:
		return Count{Value: parseCount(wa.Value)}, nil
	}

	if wa.X == nil || wa.Y == nil {
		return nil, fmt.Errorf("%s requires x and y", kind)
	}
	switch kind {
	case KindPoint:
		return PointMark{X: *wa.X, Y: *wa.Y}, nil
	case KindCircle:
		if wa.R == nil {
			return nil, fmt.Errorf("%s requires r", kind)
		}
		return CircleMark{X: *wa.X, Y: *wa.Y, Radius: *wa.R, Angle: wa.Angle}, nil
	default:
		if wa.Width == nil || wa.Height == nil {
			return nil, fmt.Errorf("%s requires width and height", kind)
		}
		return RectMark{X: *wa.X, Y: *wa.Y, Width: *wa.Width, Height: *wa.Height}, nil
	}
}

// parseCount reads a count answer. Integers, integral floats and numeric
// strings are accepted; anything else (free text such as "hungry", null,
// fractions) is absent.
func parseCount(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}

	if n, err := strconv.Atoi(text); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}
