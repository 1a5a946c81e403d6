package matchrun

import (
	"context"
	"errors"
	"testing"

	"github.com/covidschooldata/pipeline/internal/linkage/matcher"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
	apperrors "github.com/covidschooldata/pipeline/pkg/errors"
)

func strCol(name string, values ...string) *table.Column {
	c := &table.Column{Name: name, Dtype: table.DtypeString}
	for _, v := range values {
		c.Values = append(c.Values, table.String(v))
	}
	return c
}

func mkTable(t *testing.T, cols ...*table.Column) *table.Table {
	t.Helper()
	tbl := table.New()
	for _, c := range cols {
		if err := tbl.AddColumn(c); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func TestRunMatchesWithinState(t *testing.T) {
	src := mkTable(t,
		strCol("SchoolName", "Lincoln Elementary", "Lincoln Elementary"),
		strCol("StateAbbrev", "CO", "IA"),
	)
	// Identical names in two states; each must resolve to its own state's
	// registry row.
	registry := mkTable(t,
		strCol(nces.ColState, "CO", "IA"),
		strCol(nces.ColSchoolName, "Lincoln Elementary", "Lincoln Elementary"),
		strCol(nces.ColNCESSch, "co-id", "ia-id"),
	)

	out, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("rows = %d", out.NumRows())
	}
	byState := make(map[string]string)
	for row := 0; row < out.NumRows(); row++ {
		byState[out.Value(row, "StateAbbrev").Format()] = out.Value(row, nces.ColNCESSch).Format()
	}
	if byState["CO"] != "co-id" || byState["IA"] != "ia-id" {
		t.Errorf("cross-state leakage: %v", byState)
	}
}

func TestRunStateNameMismatch(t *testing.T) {
	// A full-name State column that disagrees with the abbreviation is a
	// data defect and must fail the run before any matching.
	src := mkTable(t,
		strCol("SchoolName", "Lincoln Elementary"),
		strCol("StateAbbrev", "CO"),
		strCol("State", "Iowa"),
	)
	registry := mkTable(t,
		strCol(nces.ColState, "CO"),
		strCol(nces.ColSchoolName, "Lincoln Elementary"),
	)
	_, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err == nil {
		t.Fatal("mismatched state name must fail the run")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error class = %v, want validation", err)
	}
}

func TestRunStateNameConsistent(t *testing.T) {
	src := mkTable(t,
		strCol("SchoolName", "Lincoln Elementary"),
		strCol("StateAbbrev", "CO"),
		strCol("State", "Colorado"),
	)
	registry := mkTable(t,
		strCol(nces.ColState, "CO"),
		strCol(nces.ColSchoolName, "Lincoln Elementary"),
		strCol(nces.ColNCESSch, "co-id"),
	)
	out, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Value(0, nces.ColNCESSch).Format(); got != "co-id" {
		t.Errorf("match id = %q, want co-id", got)
	}
}

func TestRunRegistryMissingRefField(t *testing.T) {
	src := mkTable(t,
		strCol("SchoolName", "Lincoln Elementary"),
		strCol("StateAbbrev", "CO"),
	)
	registry := mkTable(t, strCol(nces.ColState, "CO"))
	_, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err == nil {
		t.Fatal("registry without the match field must fail the run")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error class = %v, want validation", err)
	}
}

func TestRunUnknownState(t *testing.T) {
	src := mkTable(t,
		strCol("SchoolName", "Lincoln"),
		strCol("StateAbbrev", "XX"),
	)
	registry := mkTable(t,
		strCol(nces.ColState, "CO"),
		strCol(nces.ColSchoolName, "Lincoln"),
	)
	_, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err == nil {
		t.Fatal("unknown state abbreviation must fail the run")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error class = %v, want validation", err)
	}
}

func TestRunMissingStateColumn(t *testing.T) {
	src := mkTable(t, strCol("SchoolName", "Lincoln"))
	registry := mkTable(t, strCol(nces.ColState, "CO"), strCol(nces.ColSchoolName, "Lincoln"))
	if _, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	}); err == nil {
		t.Error("missing state column must fail")
	}
}

func TestRunKeepsUnmatchedRows(t *testing.T) {
	src := mkTable(t,
		strCol("SchoolName", "Completely Different Name"),
		strCol("StateAbbrev", "CO"),
	)
	registry := mkTable(t,
		strCol(nces.ColState, "CO"),
		strCol(nces.ColSchoolName, "Lincoln Elementary"),
	)
	out, err := Run(context.Background(), src, registry, Options{
		StateColumn: "StateAbbrev",
		QueryColumn: "SchoolName",
		RefField:    nces.ColSchoolName,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("rows = %d, want unmatched row preserved", out.NumRows())
	}
	if !out.Value(0, matcher.MatchScoreColumn).IsNull() {
		t.Error("unmatched row should carry a null score")
	}
}
