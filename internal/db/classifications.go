package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/banshee-data/consensus.report/internal/annotation"
)

// ClassificationStore persists imported classifications and their typed
// annotations.
type ClassificationStore struct {
	db *sql.DB
}

// NewClassificationStore creates a new ClassificationStore.
func NewClassificationStore(db *DB) *ClassificationStore {
	return &ClassificationStore{db: db.DB}
}

// annotationRow is the column form of one annotation.
type annotationRow struct {
	kind      string
	valueText sql.NullString
	valueInt  sql.NullInt64
	x, y      sql.NullFloat64
	r         sql.NullFloat64
	width     sql.NullFloat64
	height    sql.NullFloat64
	angle     sql.NullFloat64
}

// nullFloat stores non-finite values as NULL so they load back as NaN and
// the mark is reported as malformed.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// floatOrNaN is the inverse of nullFloat.
func floatOrNaN(nf sql.NullFloat64) float64 {
	if !nf.Valid {
		return math.NaN()
	}
	return nf.Float64
}

func toRow(a annotation.Annotation) (annotationRow, error) {
	row := annotationRow{kind: a.Kind().String()}
	switch v := a.(type) {
	case annotation.Choice:
		row.valueText = sql.NullString{String: v.Value, Valid: true}
	case annotation.Count:
		if v.Value != nil {
			row.valueInt = sql.NullInt64{Int64: int64(*v.Value), Valid: true}
		}
	case annotation.PointMark:
		row.x, row.y = nullFloat(v.X), nullFloat(v.Y)
	case annotation.CircleMark:
		row.x, row.y, row.r = nullFloat(v.X), nullFloat(v.Y), nullFloat(v.Radius)
		if v.Angle != nil {
			row.angle = nullFloat(*v.Angle)
		}
	case annotation.RectMark:
		row.x, row.y = nullFloat(v.X), nullFloat(v.Y)
		row.width, row.height = nullFloat(v.Width), nullFloat(v.Height)
	default:
		return row, fmt.Errorf("%w: %T", annotation.ErrUnknownTaskKind, a)
	}
	return row, nil
}

func (row annotationRow) toAnnotation() (annotation.Annotation, error) {
	kind, err := annotation.ParseTaskKind(row.kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case annotation.KindChoice:
		return annotation.Choice{Value: row.valueText.String}, nil
	case annotation.KindCount:
		if !row.valueInt.Valid {
			return annotation.Count{}, nil
		}
		return annotation.Count{Value: annotation.IntPtr(int(row.valueInt.Int64))}, nil
	case annotation.KindPoint:
		return annotation.PointMark{X: floatOrNaN(row.x), Y: floatOrNaN(row.y)}, nil
	case annotation.KindCircle:
		c := annotation.CircleMark{X: floatOrNaN(row.x), Y: floatOrNaN(row.y), Radius: floatOrNaN(row.r)}
		if row.angle.Valid {
			c.Angle = annotation.FloatPtr(row.angle.Float64)
		}
		return c, nil
	default:
		return annotation.RectMark{
			X: floatOrNaN(row.x), Y: floatOrNaN(row.y),
			Width: floatOrNaN(row.width), Height: floatOrNaN(row.height),
		}, nil
	}
}

// InsertAll stores rows in a single transaction. Importing a classification
// id that already exists fails the whole batch.
func (s *ClassificationStore) InsertAll(ctx context.Context, rows []annotation.Classification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	insertClassification, err := tx.PrepareContext(ctx,
		`INSERT INTO classifications (classification_id, user_id, subject_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertClassification.Close()

	insertAnnotation, err := tx.PrepareContext(ctx, `
		INSERT INTO task_annotations (
			classification_id, seq, kind, value_text, value_int, x, y, r, width, height, angle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertAnnotation.Close()

	for _, c := range rows {
		if _, err := insertClassification.ExecContext(ctx, c.ClassificationID, c.UserID, c.SubjectID); err != nil {
			return fmt.Errorf("inserting classification %d: %w", c.ClassificationID, err)
		}
		for seq, a := range c.Annotations {
			row, err := toRow(a)
			if err != nil {
				return fmt.Errorf("classification %d annotation %d: %w", c.ClassificationID, seq, err)
			}
			if _, err := insertAnnotation.ExecContext(ctx,
				c.ClassificationID, seq, row.kind, row.valueText, row.valueInt,
				row.x, row.y, row.r, row.width, row.height, row.angle,
			); err != nil {
				return fmt.Errorf("inserting classification %d annotation %d: %w", c.ClassificationID, seq, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// LoadAll returns every stored classification ordered by classification id,
// with annotations in submission order.
func (s *ClassificationStore) LoadAll(ctx context.Context) ([]annotation.Classification, error) {
	return s.load(ctx, `WHERE 1 = 1`)
}

// LoadSubject returns the classifications for one subject.
func (s *ClassificationStore) LoadSubject(ctx context.Context, subjectID int64) ([]annotation.Classification, error) {
	return s.load(ctx, `WHERE c.subject_id = ?`, subjectID)
}

func (s *ClassificationStore) load(ctx context.Context, where string, args ...interface{}) ([]annotation.Classification, error) {
	query := `
		SELECT c.classification_id, c.user_id, c.subject_id,
		       a.seq, a.kind, a.value_text, a.value_int, a.x, a.y, a.r, a.width, a.height, a.angle
		FROM classifications c
		LEFT JOIN task_annotations a ON a.classification_id = c.classification_id
		` + where + `
		ORDER BY c.classification_id, a.seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying classifications: %w", err)
	}
	defer rows.Close()

	var out []annotation.Classification
	for rows.Next() {
		var (
			id, userID, subjectID int64
			seq                   sql.NullInt64
			kind                  sql.NullString
			row                   annotationRow
		)
		if err := rows.Scan(&id, &userID, &subjectID,
			&seq, &kind, &row.valueText, &row.valueInt, &row.x, &row.y, &row.r, &row.width, &row.height, &row.angle,
		); err != nil {
			return nil, fmt.Errorf("scanning classification: %w", err)
		}

		if n := len(out); n == 0 || out[n-1].ClassificationID != id {
			out = append(out, annotation.Classification{ClassificationID: id, UserID: userID, SubjectID: subjectID})
		}
		if !kind.Valid {
			continue // classification without annotations
		}
		row.kind = kind.String
		a, err := row.toAnnotation()
		if err != nil {
			return nil, fmt.Errorf("classification %d annotation %d: %w", id, seq.Int64, err)
		}
		last := &out[len(out)-1]
		last.Annotations = append(last.Annotations, a)
	}
	return out, rows.Err()
}

// Count returns the number of stored classifications.
func (s *ClassificationStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classifications`).Scan(&n)
	return n, err
}
