package joiner

import (
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
)

// Case-table column names for attached demographic attributes.
const (
	ColDistrictType = "DistrictType"
	ColCharter      = "Charter"
	ColSchoolType   = "SchoolType"
)

// JoinSchoolMetadata attaches district type, charter status, and school
// type onto a school-level case table. District attributes come from the
// district demographics (the school extract does not carry agency type);
// DistrictName is only backfilled, never overwritten.
func JoinSchoolMetadata(caseTable, schoolDemo, districtDemo *table.Table) error {
	agencyType, err := BuildIDLookup(districtDemo, nces.ColLEAID, nces.ColAgencyType, DistrictIDWidth)
	if err != nil {
		return err
	}
	if err := AttachLookup(caseTable, ColNCESDistrictID, ColDistrictType, agencyType); err != nil {
		return err
	}

	leaName, err := BuildIDLookup(districtDemo, nces.ColLEAID, nces.ColLEAName, DistrictIDWidth)
	if err != nil {
		return err
	}
	if err := BackfillLookup(caseTable, ColNCESDistrictID, ColDistrictName, leaName); err != nil {
		return err
	}

	charter, err := BuildIDLookup(schoolDemo, nces.ColNCESSchNum, nces.ColCharter, SchoolIDWidth)
	if err != nil {
		return err
	}
	if err := AttachLookup(caseTable, ColNCESSchoolID, ColCharter, charter); err != nil {
		return err
	}

	schoolType, err := BuildIDLookup(schoolDemo, nces.ColNCESSchNum, nces.ColSchoolType, SchoolIDWidth)
	if err != nil {
		return err
	}
	return AttachLookup(caseTable, ColNCESSchoolID, ColSchoolType, schoolType)
}

// JoinDistrictMetadata attaches district type and charter status onto a
// district-level case table.
func JoinDistrictMetadata(caseTable, districtDemo *table.Table) error {
	agencyType, err := BuildIDLookup(districtDemo, nces.ColLEAID, nces.ColAgencyType, DistrictIDWidth)
	if err != nil {
		return err
	}
	if err := AttachLookup(caseTable, ColNCESDistrictID, ColDistrictType, agencyType); err != nil {
		return err
	}

	charter, err := BuildIDLookup(districtDemo, nces.ColLEAID, nces.ColCharter, DistrictIDWidth)
	if err != nil {
		return err
	}
	return AttachLookup(caseTable, ColNCESDistrictID, ColCharter, charter)
}
