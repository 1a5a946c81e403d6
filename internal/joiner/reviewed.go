package joiner

import (
	"fmt"
	"strings"

	"github.com/covidschooldata/pipeline/internal/table"
)

// Case-table column names for attached identifiers.
const (
	ColNCESSchoolID   = "NCESSchoolID"
	ColNCESDistrictID = "NCESDistrictID"
	ColSchoolName     = "SchoolName"
	ColDistrictName   = "DistrictName"
)

// ReviewedLookup is the outcome of reading manually reviewed match files:
// a name-to-identifier lookup plus the set of names reviewers marked for
// removal.
type ReviewedLookup struct {
	IDs   map[string]string
	Drops map[string]struct{}
}

// ReadReviewedLookups reads one or more reviewed match CSVs and merges
// them, later files winning on conflicts. Two reviewer conventions exist:
// an "is_match" column (rows marked "drop" are removals, all resolved
// name/ID pairs are matches) or a "drop" column (only rows marked "keep"
// contribute matches). Identifier values are zero-padded to width.
func ReadReviewedLookups(paths []string, nameColumn, idColumn string, width int) (*ReviewedLookup, error) {
	result := &ReviewedLookup{
		IDs:   make(map[string]string),
		Drops: make(map[string]struct{}),
	}
	for _, path := range paths {
		t, err := table.ReadCSV(path, table.ReadOptions{
			Dtypes: map[string]table.Dtype{
				nameColumn: table.DtypeString,
				idColumn:   table.DtypeString,
				"is_match": table.DtypeString,
				"drop":     table.DtypeString,
			},
		})
		if err != nil {
			return nil, err
		}
		switch {
		case t.HasColumn("is_match"):
			collectPairs(result.IDs, t, nameColumn, idColumn, width, nil)
			collectMarked(result.Drops, t, nameColumn, "is_match", "drop")
		case t.HasColumn("drop"):
			keep := func(row int) bool {
				return strings.TrimSpace(t.Value(row, "drop").Format()) == "keep"
			}
			collectPairs(result.IDs, t, nameColumn, idColumn, width, keep)
			collectMarked(result.Drops, t, nameColumn, "drop", "drop")
		default:
			return nil, fmt.Errorf("reviewed lookup %s has neither is_match nor drop column", path)
		}
	}
	return result, nil
}

func collectPairs(into map[string]string, t *table.Table, nameColumn, idColumn string, width int, keep func(int) bool) {
	for row := 0; row < t.NumRows(); row++ {
		if keep != nil && !keep(row) {
			continue
		}
		name := t.Value(row, nameColumn)
		id := t.Value(row, idColumn)
		if name.IsNull() || id.IsNull() {
			continue
		}
		into[name.Format()] = FormatIDList(id.Format(), width)
	}
}

func collectMarked(into map[string]struct{}, t *table.Table, nameColumn, markColumn, mark string) {
	for row := 0; row < t.NumRows(); row++ {
		if strings.TrimSpace(t.Value(row, markColumn).Format()) != mark {
			continue
		}
		if name := t.Value(row, nameColumn); !name.IsNull() {
			into[name.Format()] = struct{}{}
		}
	}
}

// JoinSchoolIDs attaches NCESSchoolID from the reviewed lookup keyed by
// SchoolName, infers NCESDistrictID from the school IDs, and removes rows
// whose school name was marked for removal. Returns the removed-row count.
func JoinSchoolIDs(t *table.Table, reviewed *ReviewedLookup) (int, error) {
	if err := AttachNameLookup(t, ColSchoolName, ColNCESSchoolID, reviewed.IDs); err != nil {
		return 0, err
	}
	sc := t.Column(ColNCESSchoolID)
	districtIDs := make([]table.Value, len(sc.Values))
	for row, v := range sc.Values {
		if v.Format() == "" {
			districtIDs[row] = table.Null()
			continue
		}
		districtIDs[row] = DistrictIDsFromSchoolIDs(v)
	}
	if existing := t.Column(ColNCESDistrictID); existing != nil {
		existing.Values = districtIDs
	} else if err := t.AddColumn(&table.Column{
		Name: ColNCESDistrictID, Dtype: table.DtypeString, Values: districtIDs,
	}); err != nil {
		return 0, err
	}
	return dropMarked(t, ColSchoolName, reviewed.Drops), nil
}

// JoinDistrictIDs attaches NCESDistrictID from the reviewed lookup keyed
// by DistrictName and removes rows whose district name was marked for
// removal. Returns the removed-row count.
func JoinDistrictIDs(t *table.Table, reviewed *ReviewedLookup) (int, error) {
	if err := AttachNameLookup(t, ColDistrictName, ColNCESDistrictID, reviewed.IDs); err != nil {
		return 0, err
	}
	return dropMarked(t, ColDistrictName, reviewed.Drops), nil
}

func dropMarked(t *table.Table, nameColumn string, drops map[string]struct{}) int {
	removed := 0
	t.FilterRows(func(row int) bool {
		if _, hit := drops[t.Value(row, nameColumn).Format()]; hit {
			removed++
			return false
		}
		return true
	})
	return removed
}
