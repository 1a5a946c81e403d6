package nces

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/covidschooldata/pipeline/internal/table"
)

func TestNormalizeCharter(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Not applicable", "No"},
		{"yes", "Yes"},
		{"no", "No"},
		{"Yes", "Yes"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCharter(tt.in); got != tt.want {
			t.Errorf("NormalizeCharter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterState(t *testing.T) {
	tbl := table.New()
	_ = tbl.AddColumn(&table.Column{Name: ColState, Dtype: table.DtypeString, Values: []table.Value{
		table.String("CO"), table.String("IA"), table.String(" CO "),
	}})
	_ = tbl.AddColumn(&table.Column{Name: ColSchoolName, Dtype: table.DtypeString, Values: []table.Value{
		table.String("a"), table.String("b"), table.String("c"),
	}})

	got := FilterState(tbl, "CO")
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2 (whitespace-trimmed match)", got.NumRows())
	}
	if v := got.Value(1, ColSchoolName).Format(); v != "c" {
		t.Errorf("second CO row = %q", v)
	}
	// The source table is untouched.
	if tbl.NumRows() != 3 {
		t.Errorf("source mutated: %d rows", tbl.NumRows())
	}
}

func TestReadSchoolDemographics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.csv")
	data := "state_leaid,leaid,charter,school_type,ncessch_num,seasch,extra\n" +
		"CO-1,0123456,Not applicable,Regular,012345678901,S1,ignored\n" +
		"CO-2,0765432,yes,Regular,076543210001,S2,ignored\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadSchoolDemographics(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.HasColumn("extra") {
		t.Error("columns outside the extract were read")
	}
	if got := tbl.Value(0, ColCharter).Format(); got != "No" {
		t.Errorf("charter row 0 = %q, want %q", got, "No")
	}
	if got := tbl.Value(1, ColCharter).Format(); got != "Yes" {
		t.Errorf("charter row 1 = %q, want %q", got, "Yes")
	}
}
