package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/selesy/nhschooldata/pkg/nhschooldata"
)

const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	tidyColumns     = []string{"end_year", "type", "district_id", "district_name", "school_id", "school_name", "grade_level", "subgroup", "n_students", "pct"}
	wideIDColumns   = []string{"end_year", "type", "sau", "sau_name", "district_id", "district_name", "school_id", "school_name"}
	wideTailColumns = []string{"total", "suppressed"}
)

type formatter struct {
	name    string
	printer *message.Printer
}

func newFormatter(name string) (*formatter, error) {
	switch name {
	case formatTable, formatCSV, formatJSON, formatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
	return &formatter{name: name, printer: message.NewPrinter(language.English)}, nil
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func (f *formatter) tidy(w io.Writer, enrs []*nhschooldata.Enrollment) error {
	recs := []nhschooldata.TidyRecord{}
	for _, e := range enrs {
		recs = append(recs, e.Tidy...)
	}
	switch f.name {
	case formatJSON:
		return encodeJSON(w, recs)
	case formatYAML:
		return yaml.NewEncoder(w).Encode(recs)
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			strconv.Itoa(r.EndYear),
			string(r.Type),
			r.DistrictID,
			r.DistrictName,
			r.SchoolID,
			r.SchoolName,
			r.GradeLevel,
			r.Subgroup,
			f.count(r.NStudents),
			f.pct(r.Pct),
		})
	}
	return f.rows(w, tidyColumns, rows)
}

func (f *formatter) wide(w io.Writer, enrs []*nhschooldata.Enrollment) error {
	recs := []nhschooldata.EnrollmentRecord{}
	for _, e := range enrs {
		recs = append(recs, e.Records...)
	}
	switch f.name {
	case formatJSON:
		return encodeJSON(w, recs)
	case formatYAML:
		return yaml.NewEncoder(w).Encode(recs)
	}

	hdr := append([]string{}, wideIDColumns...)
	for _, g := range nhschooldata.GradeLevels {
		hdr = append(hdr, "grade_"+g)
	}
	hdr = append(hdr, wideTailColumns...)

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		row := []string{
			strconv.Itoa(r.EndYear),
			string(r.Type),
			r.SAU,
			r.SAUName,
			r.DistrictID,
			r.DistrictName,
			r.SchoolID,
			r.SchoolName,
		}
		for _, g := range nhschooldata.GradeLevels {
			row = append(row, f.count(r.Grades[g]))
		}
		row = append(row, f.count(r.Total), strconv.FormatBool(r.Suppressed))
		rows = append(rows, row)
	}
	return f.rows(w, hdr, rows)
}

func (f *formatter) rows(w io.Writer, hdr []string, rows [][]string) error {
	if f.name == formatCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write(hdr); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	}

	tw := newTabWriter(w)
	writeTabRow(tw, hdr)
	for _, row := range rows {
		writeTabRow(tw, row)
	}
	return tw.Flush()
}

func writeTabRow(w io.Writer, row []string) {
	for i, col := range row {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
}

// count groups thousands in table output only; CSV stays numeric.
func (f *formatter) count(n int) string {
	if f.name == formatTable {
		return f.printer.Sprintf("%d", n)
	}
	return strconv.Itoa(n)
}

func (f *formatter) pct(p float64) string {
	if f.name == formatTable {
		return f.printer.Sprintf("%.1f%%", p*100)
	}
	return strconv.FormatFloat(p, 'f', 6, 64)
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
