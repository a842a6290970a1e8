package annotation

import "sort"

// Classification is one annotator's submission for one subject.
type Classification struct {
	ClassificationID int64
	UserID           int64
	SubjectID        int64
	Annotations      []Annotation
}

// OfKind returns the classification's annotations of kind k, in submission order.
func (c Classification) OfKind(k TaskKind) []Annotation {
	var out []Annotation
	for _, a := range c.Annotations {
		if a.Kind() == k {
			out = append(out, a)
		}
	}
	return out
}

// SubjectGroup holds every classification submitted for one subject.
type SubjectGroup struct {
	SubjectID       int64
	Classifications []Classification
}

// NEvaluators returns the number of distinct users in the group.
func (g *SubjectGroup) NEvaluators() int {
	users := make(map[int64]struct{}, len(g.Classifications))
	for _, c := range g.Classifications {
		users[c.UserID] = struct{}{}
	}
	return len(users)
}

// Group partitions rows by subject id. It returns the groups keyed by subject
// id and the subject ids sorted ascending. Row order inside a group follows
// input order. Subject ids are positive on the platform, so a zero or
// negative id is treated as missing.
func Group(rows []Classification) (map[int64]*SubjectGroup, []int64, error) {
	groups := make(map[int64]*SubjectGroup)
	for _, row := range rows {
		if row.SubjectID <= 0 {
			return nil, nil, &SchemaError{
				ClassificationID: row.ClassificationID,
				Field:            "subject_id",
				Reason:           "missing",
			}
		}
		g, ok := groups[row.SubjectID]
		if !ok {
			g = &SubjectGroup{SubjectID: row.SubjectID}
			groups[row.SubjectID] = g
		}
		g.Classifications = append(g.Classifications, row)
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return groups, ids, nil
}
