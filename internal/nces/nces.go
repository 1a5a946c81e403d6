// Package nces loads the NCES reference registry tables (schools and
// districts) and their demographic companions, normalizing charter flags
// at ingestion.
package nces

import (
	"strings"
	"unicode"

	"github.com/covidschooldata/pipeline/internal/table"
)

// Registry column names, as published by NCES.
const (
	ColState        = "state"
	ColDistrictName = "district_name"
	ColStateLEAID   = "state_leaid"
	ColLEAID        = "leaid"
	ColSchoolName   = "sch_name"
	ColNCESSch      = "ncessch"
	ColStateSchID   = "state_schid"
	ColNCESSchNum   = "ncessch_num"
	ColSEASch       = "seasch"
	ColLEAName      = "lea_name"
	ColAgencyType   = "agency_type"
	ColCharter      = "charter"
	ColSchoolType   = "school_type"
)

// StateNames maps state abbreviations to full state names for the states
// covered by the dataset.
var StateNames = map[string]string{
	"CO": "Colorado",
	"CT": "Connecticut",
	"IA": "Iowa",
	"ID": "Idaho",
	"IL": "Illinois",
	"IN": "Indiana",
	"KS": "Kansas",
	"KY": "Kentucky",
	"MD": "Maryland",
	"ME": "Maine",
	"MN": "Minnesota",
	"MO": "Missouri",
	"MS": "Mississippi",
	"MT": "Montana",
	"NC": "North Carolina",
	"NH": "New Hampshire",
	"OR": "Oregon",
	"RI": "Rhode Island",
	"VA": "Virginia",
	"VT": "Vermont",
	"WV": "West Virginia",
}

func stringDtypes(names ...string) map[string]table.Dtype {
	m := make(map[string]table.Dtype, len(names))
	for _, n := range names {
		m[n] = table.DtypeString
	}
	return m
}

// ReadSchools loads the school-level registry.
func ReadSchools(path string) (*table.Table, error) {
	return table.ReadCSV(path, table.ReadOptions{
		Dtypes: stringDtypes(ColState, ColDistrictName, ColStateLEAID,
			ColLEAID, ColSchoolName, ColNCESSch, ColStateSchID),
	})
}

// ReadDistricts loads the district-level registry.
func ReadDistricts(path string) (*table.Table, error) {
	return table.ReadCSV(path, table.ReadOptions{
		Dtypes: stringDtypes(ColState, ColDistrictName, ColStateLEAID, ColLEAID),
	})
}

// NormalizeCharter canonicalizes a charter flag: "Not applicable" becomes
// "No", anything else gets first-letter capitalization.
func NormalizeCharter(v string) string {
	if v == "" {
		return v
	}
	if v == "Not applicable" {
		return "No"
	}
	runes := []rune(v)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func normalizeCharterColumn(t *table.Table) {
	c := t.Column(ColCharter)
	if c == nil {
		return
	}
	for i, v := range c.Values {
		if v.IsNull() {
			continue
		}
		c.Values[i] = table.String(NormalizeCharter(v.Format()))
	}
}

// ReadSchoolDemographics loads the NCES school demographics extract with
// charter flags normalized.
func ReadSchoolDemographics(path string) (*table.Table, error) {
	cols := []string{ColStateLEAID, ColLEAID, ColCharter, ColSchoolType,
		ColNCESSchNum, ColSEASch}
	t, err := table.ReadCSV(path, table.ReadOptions{
		Columns: cols,
		Dtypes:  stringDtypes(cols...),
	})
	if err != nil {
		return nil, err
	}
	normalizeCharterColumn(t)
	return t, nil
}

// ReadDistrictDemographics loads the NCES district demographics extract
// with charter flags normalized.
func ReadDistrictDemographics(path string) (*table.Table, error) {
	cols := []string{ColLEAName, ColStateLEAID, ColLEAID, ColAgencyType, ColCharter}
	t, err := table.ReadCSV(path, table.ReadOptions{
		Columns: cols,
		Dtypes:  stringDtypes(cols...),
	})
	if err != nil {
		return nil, err
	}
	normalizeCharterColumn(t)
	return t, nil
}

// FilterState returns a fresh table holding only the rows whose state
// column equals the given abbreviation. Matching is exact after trimming.
func FilterState(t *table.Table, abbrev string) *table.Table {
	out := table.New()
	sc := t.Column(ColState)
	for _, c := range t.Columns() {
		_ = out.AddColumn(&table.Column{Name: c.Name, Dtype: c.Dtype})
	}
	if sc == nil {
		return out
	}
	for row, v := range sc.Values {
		if strings.TrimSpace(v.Format()) != abbrev {
			continue
		}
		for _, c := range t.Columns() {
			oc := out.Column(c.Name)
			oc.Values = append(oc.Values, c.Values[row])
		}
	}
	return out
}
