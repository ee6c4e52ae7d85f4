package nhschooldata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	enrollmentHeaderColumn00 = "SAU"
	enrollmentHeaderColumn01 = "SAU Name"
	enrollmentHeaderColumn02 = "District ID"
	enrollmentHeaderColumn03 = "District Name"
	enrollmentHeaderColumn04 = "School ID"
	enrollmentHeaderColumn05 = "School Name"
	enrollmentHeaderTotal    = "Total"
	enrollmentIdentityFields = 6
	enrollmentStateTotalName = "State Total"
	enrollmentSuppressed     = "*"
)

// GradeLevels lists the grade levels reported in an enrollment export,
// in the order the export's columns appear.
var GradeLevels = []string{"PK", "K", "01", "02", "03", "04", "05", "06", "07", "08", "09", "10", "11", "12", "PG"}

// gradeHeaders are the export's column titles for GradeLevels.
var gradeHeaders = []string{"PreK", "K", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "PG"}

var enrollmentRecordFieldCount = enrollmentIdentityFields + len(gradeHeaders) + 1

// EntityType identifies the level an enrollment row is reported at.
type EntityType string

const (
	EntityState    EntityType = "State"
	EntityDistrict EntityType = "District"
	EntitySchool   EntityType = "School"
)

// EnrollmentRecord is one row of a fall enrollment export in its
// original (wide) shape.
type EnrollmentRecord struct {
	EndYear      int        `json:"end_year" yaml:"end_year"`
	Type         EntityType `json:"type" yaml:"type"`
	SAU          string     `json:"sau" yaml:"sau"`
	SAUName      string     `json:"sau_name" yaml:"sau_name"`
	DistrictID   string     `json:"district_id" yaml:"district_id"`
	DistrictName string     `json:"district_name" yaml:"district_name"`
	SchoolID     string     `json:"school_id" yaml:"school_id"`
	SchoolName   string     `json:"school_name" yaml:"school_name"`
	// Grades maps each of GradeLevels to its head count.
	Grades map[string]int `json:"grades" yaml:"grades"`
	Total  int            `json:"total" yaml:"total"`
	// Suppressed is set when at least one count was withheld for
	// privacy in the export (reported as "*") and read as zero.
	Suppressed bool `json:"suppressed" yaml:"suppressed"`
}

// ParseEnrollment reads a fall enrollment export.  A header row that does
// not match the expected layout is an error; data rows that cannot be
// parsed are logged and skipped.
func ParseEnrollment(r io.Reader, endYear int) ([]EnrollmentRecord, error) {
	rdr := csv.NewReader(r)
	// the header is read with any width so validateHeaders can report
	// missing and extra columns
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	rdr.TrimLeadingSpace = true

	recs := []EnrollmentRecord{}
	skipped := 0
	for first := true; true; first = false {
		row, err := rdr.Read()
		if err == io.EOF {
			if first {
				return nil, fmt.Errorf("%w: empty export", ErrNoData)
			}
			break
		}
		if first {
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnexpectedHeader, err)
			}
			if errs := validateHeaders(row); len(errs) > 0 {
				return nil, fmt.Errorf("%w: %v", ErrUnexpectedHeader, errors.Join(errs...))
			}
			rdr.FieldsPerRecord = enrollmentRecordFieldCount
			continue
		}
		if err != nil {
			log.Warn("Skipping enrollment row: ", err)
			skipped++
			continue
		}
		rec, errs := newEnrollmentRecord(row, endYear)
		if len(errs) > 0 {
			log.Warn("Skipping enrollment row: ", errors.Join(errs...))
			skipped++
			continue
		}
		log.Debug("Enrollment record: ", rec)
		recs = append(recs, rec)
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("%w for %s (%d rows skipped)", ErrNoData, SchoolYear(endYear), skipped)
	}
	return recs, nil
}

func validateHeaders(record []string) []error {
	errs := []error{}
	exp := expectedHeaders()
	for idx, hdr := range record {
		if idx >= len(exp) {
			errs = append(errs, fmt.Errorf("column %d - unexpected: %q", idx, hdr))
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(hdr), exp[idx]) {
			errs = append(errs, fmt.Errorf("column %d - expected: %q, actual: %q", idx, exp[idx], hdr))
		}
	}
	for idx := len(record); idx < len(exp); idx++ {
		errs = append(errs, fmt.Errorf("column %d - missing: %q", idx, exp[idx]))
	}
	return errs
}

func expectedHeaders() []string {
	hdrs := []string{
		enrollmentHeaderColumn00,
		enrollmentHeaderColumn01,
		enrollmentHeaderColumn02,
		enrollmentHeaderColumn03,
		enrollmentHeaderColumn04,
		enrollmentHeaderColumn05,
	}
	hdrs = append(hdrs, gradeHeaders...)
	return append(hdrs, enrollmentHeaderTotal)
}

func newEnrollmentRecord(row []string, endYear int) (EnrollmentRecord, []error) {
	errs := []error{}
	rec := EnrollmentRecord{
		EndYear:      endYear,
		SAU:          strings.TrimSpace(row[0]),
		SAUName:      strings.TrimSpace(row[1]),
		DistrictID:   strings.TrimSpace(row[2]),
		DistrictName: strings.TrimSpace(row[3]),
		SchoolID:     strings.TrimSpace(row[4]),
		SchoolName:   strings.TrimSpace(row[5]),
		Grades:       make(map[string]int, len(GradeLevels)),
	}
	rec.Type = classify(rec)

	var suppressed bool
	for i, grade := range GradeLevels {
		rec.Grades[grade], suppressed, errs = parseCount(row[enrollmentIdentityFields+i], errs)
		rec.Suppressed = rec.Suppressed || suppressed
	}
	rec.Total, suppressed, errs = parseCount(row[len(row)-1], errs)
	rec.Suppressed = rec.Suppressed || suppressed
	return rec, errs
}

func classify(rec EnrollmentRecord) EntityType {
	switch {
	case rec.DistrictID == "" || strings.EqualFold(rec.DistrictName, enrollmentStateTotalName):
		return EntityState
	case rec.SchoolID == "":
		return EntityDistrict
	default:
		return EntitySchool
	}
}

func parseCount(value string, errs []error) (int, bool, []error) {
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return 0, false, errs
	case enrollmentSuppressed:
		return 0, true, errs
	}
	i, err := strconv.Atoi(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return 0, false, append(errs, err)
	}
	if i < 0 {
		return 0, false, append(errs, fmt.Errorf("negative count: %d", i))
	}
	return i, false, errs
}
