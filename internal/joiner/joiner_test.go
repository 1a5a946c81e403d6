package joiner

import (
	"testing"

	"github.com/covidschooldata/pipeline/internal/table"
)

func TestFormatID(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"123456", 7, "0123456"},
		{"123456.0", 7, "0123456"},
		{"1234567", 7, "1234567"},
		{"12345678", 7, "12345678"},
		{" 42 ", 7, "0000042"},
		{"12345678901", 12, "012345678901"},
	}
	for _, tt := range tests {
		if got := FormatID(tt.in, tt.width); got != tt.want {
			t.Errorf("FormatID(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFormatIDList(t *testing.T) {
	got := FormatIDList("123456.0,7654321", 7)
	if got != "0123456,7654321" {
		t.Errorf("FormatIDList = %q", got)
	}
}

func TestMultiLookup(t *testing.T) {
	lookup := map[string]string{
		"A": "Regular",
		"B": "Charter",
		"C": "Regular",
	}
	tests := []struct {
		name string
		key  table.Value
		want table.Value
	}{
		{"scalar", table.String("A"), table.String("Regular")},
		{"distinct pair", table.String("A,B"), table.String("Regular,Charter")},
		{"duplicates collapse", table.String("A,C"), table.String("Regular")},
		{"unresolvable", table.String("Z"), table.String("")},
		{"partial", table.String("A,Z"), table.String("Regular")},
		{"null key", table.Null(), table.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MultiLookup(lookup, tt.key)
			if !got.Equal(tt.want) {
				t.Errorf("MultiLookup = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDistrictIDsFromSchoolIDs(t *testing.T) {
	tests := []struct {
		name string
		in   table.Value
		want table.Value
	}{
		{"single", table.String("012345678901"), table.String("0123456")},
		{"same district collapses", table.String("012345678901,012345678902"), table.String("0123456")},
		{"two districts", table.String("012345678901,076543210001"), table.String("0123456,0765432")},
		{"null", table.Null(), table.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistrictIDsFromSchoolIDs(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func strCol(name string, values ...string) *table.Column {
	c := &table.Column{Name: name, Dtype: table.DtypeString}
	for _, v := range values {
		if v == "" {
			c.Values = append(c.Values, table.Null())
		} else {
			c.Values = append(c.Values, table.String(v))
		}
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

func TestAttachLookup(t *testing.T) {
	tbl := mkTable(t, strCol("NCESDistrictID", "0123456", ""))
	lookup := map[string]string{"0123456": "Regular"}
	if err := AttachLookup(tbl, "NCESDistrictID", "DistrictType", lookup); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Value(0, "DistrictType").Format(); got != "Regular" {
		t.Errorf("DistrictType = %q", got)
	}
	if !tbl.Value(1, "DistrictType").IsNull() {
		t.Error("null key should yield null")
	}
}

func TestAttachNameLookup(t *testing.T) {
	// Names are whole keys; a comma inside one is part of the name, not a
	// list separator.
	tbl := mkTable(t, strCol(ColSchoolName, "Lincoln Academy, Annex", "Unknown School", ""))
	lookup := map[string]string{"Lincoln Academy, Annex": "000000012345"}
	if err := AttachNameLookup(tbl, ColSchoolName, ColNCESSchoolID, lookup); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Value(0, ColNCESSchoolID).Format(); got != "000000012345" {
		t.Errorf("comma-bearing name resolved to %q, want 000000012345", got)
	}
	if got := tbl.Value(1, ColNCESSchoolID).Format(); got != "" {
		t.Errorf("unresolved name = %q, want empty", got)
	}
	if !tbl.Value(2, ColNCESSchoolID).IsNull() {
		t.Error("null key should yield null")
	}
}

func TestBackfillLookup(t *testing.T) {
	tbl := mkTable(t,
		strCol("NCESDistrictID", "0123456", "0765432"),
		strCol("DistrictName", "Existing Name", ""),
	)
	lookup := map[string]string{
		"0123456": "Replacement",
		"0765432": "Backfilled",
	}
	if err := BackfillLookup(tbl, "NCESDistrictID", "DistrictName", lookup); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Value(0, "DistrictName").Format(); got != "Existing Name" {
		t.Errorf("existing value overwritten: %q", got)
	}
	if got := tbl.Value(1, "DistrictName").Format(); got != "Backfilled" {
		t.Errorf("null not backfilled: %q", got)
	}
}

func TestFuzzyLeftJoin(t *testing.T) {
	left := mkTable(t,
		strCol("SchoolName", "Lincoln Elementary!", "Unknown School"),
		strCol("State", "CO", "CO"),
	)
	right := mkTable(t,
		strCol("sch_name", "lincoln elementary"),
		strCol("ncessch", "012345678901"),
	)

	out, err := FuzzyLeftJoin(left, right, nil, []ColumnPair{{Left: "SchoolName", Right: "sch_name"}})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("rows = %d, want every left row preserved", out.NumRows())
	}
	if got := out.Value(0, "ncessch").Format(); got != "012345678901" {
		t.Errorf("matched id = %q", got)
	}
	if !out.Value(1, "ncessch").IsNull() {
		t.Error("unmatched left row should carry nulls")
	}
	// Derived join keys never appear in the output.
	for _, name := range out.Names() {
		if name == "__key" || name == "key" {
			t.Errorf("synthetic key column leaked: %v", out.Names())
		}
	}
}

func TestFuzzyLeftJoinDuplicateRightKey(t *testing.T) {
	left := mkTable(t, strCol("SchoolName", "Lincoln"))
	right := mkTable(t,
		strCol("sch_name", "Lincoln", "LINCOLN!"),
		strCol("ncessch", "a", "b"),
	)
	if _, err := FuzzyLeftJoin(left, right, nil, []ColumnPair{{Left: "SchoolName", Right: "sch_name"}}); err == nil {
		t.Error("duplicate normalized right keys must be an error")
	}
}

func TestFuzzyLeftJoinNameClash(t *testing.T) {
	left := mkTable(t, strCol("name", "lincoln"))
	right := mkTable(t, strCol("name", "lincoln"))
	out, err := FuzzyLeftJoin(left, right, nil, []ColumnPair{{Left: "name", Right: "name"}})
	if err != nil {
		t.Fatal(err)
	}
	if !out.HasColumn("name_ref") {
		t.Errorf("clashing right column not suffixed: %v", out.Names())
	}
}

func TestFilterJoin(t *testing.T) {
	tbl := mkTable(t, strCol("SchoolName", "Lincoln", "Washington", "Jefferson"))
	filter := mkTable(t, strCol("name", "washington!"))
	removed, err := FilterJoin(tbl, filter, nil, []ColumnPair{{Left: "SchoolName", Right: "name"}})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 || tbl.NumRows() != 2 {
		t.Errorf("removed = %d rows = %d", removed, tbl.NumRows())
	}
}

func TestJoinSchoolIDs(t *testing.T) {
	tbl := mkTable(t,
		strCol(ColSchoolName, "Lincoln", "Dropped School", "Unknown"),
	)
	reviewed := &ReviewedLookup{
		IDs:   map[string]string{"Lincoln": "012345678901"},
		Drops: map[string]struct{}{"Dropped School": {}},
	}
	removed, err := JoinSchoolIDs(tbl, reviewed)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	if got := tbl.Value(0, ColNCESSchoolID).Format(); got != "012345678901" {
		t.Errorf("school id = %q", got)
	}
	if got := tbl.Value(0, ColNCESDistrictID).Format(); got != "0123456" {
		t.Errorf("inferred district id = %q", got)
	}
	if !tbl.Value(1, ColNCESDistrictID).IsNull() {
		t.Error("unresolved school should carry a null district id")
	}
}

func TestJoinSchoolIDsCommaName(t *testing.T) {
	tbl := mkTable(t, strCol(ColSchoolName, "Lincoln Academy, Annex"))
	reviewed := &ReviewedLookup{
		IDs:   map[string]string{"Lincoln Academy, Annex": "012345678901"},
		Drops: map[string]struct{}{},
	}
	if _, err := JoinSchoolIDs(tbl, reviewed); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Value(0, ColNCESSchoolID).Format(); got != "012345678901" {
		t.Errorf("school id = %q, want 012345678901", got)
	}
	if got := tbl.Value(0, ColNCESDistrictID).Format(); got != "0123456" {
		t.Errorf("inferred district id = %q", got)
	}
}
