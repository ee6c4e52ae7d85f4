package nhschooldata

const (
	// GradeTotal is the grade level of the all-grades row in tidy output.
	GradeTotal = "TOTAL"
	// SubgroupTotal is the only subgroup the fall enrollment export
	// reports.
	SubgroupTotal = "total_enrollment"
)

// TidyRecord is one (entity, grade level, subgroup) count in long form.
type TidyRecord struct {
	EndYear      int        `json:"end_year" yaml:"end_year"`
	Type         EntityType `json:"type" yaml:"type"`
	DistrictID   string     `json:"district_id" yaml:"district_id"`
	DistrictName string     `json:"district_name" yaml:"district_name"`
	SchoolID     string     `json:"school_id" yaml:"school_id"`
	SchoolName   string     `json:"school_name" yaml:"school_name"`
	GradeLevel   string     `json:"grade_level" yaml:"grade_level"`
	Subgroup     string     `json:"subgroup" yaml:"subgroup"`
	NStudents    int        `json:"n_students" yaml:"n_students"`
	// Pct is NStudents as a share of the entity's total enrollment.
	Pct        float64 `json:"pct" yaml:"pct"`
	IsState    bool    `json:"is_state" yaml:"is_state"`
	IsDistrict bool    `json:"is_district" yaml:"is_district"`
	IsSchool   bool    `json:"is_school" yaml:"is_school"`
}

// Tidy converts wide records into long form: one TidyRecord per grade
// level plus a GradeTotal record per entity, in input order.
func Tidy(recs []EnrollmentRecord) []TidyRecord {
	out := make([]TidyRecord, 0, len(recs)*(len(GradeLevels)+1))
	for _, rec := range recs {
		for _, grade := range GradeLevels {
			out = append(out, tidyRecord(rec, grade, rec.Grades[grade]))
		}
		out = append(out, tidyRecord(rec, GradeTotal, rec.Total))
	}
	return out
}

func tidyRecord(rec EnrollmentRecord, grade string, n int) TidyRecord {
	pct := 0.0
	if rec.Total > 0 {
		pct = float64(n) / float64(rec.Total)
	}
	return TidyRecord{
		EndYear:      rec.EndYear,
		Type:         rec.Type,
		DistrictID:   rec.DistrictID,
		DistrictName: rec.DistrictName,
		SchoolID:     rec.SchoolID,
		SchoolName:   rec.SchoolName,
		GradeLevel:   grade,
		Subgroup:     SubgroupTotal,
		NStudents:    n,
		Pct:          pct,
		IsState:      rec.Type == EntityState,
		IsDistrict:   rec.Type == EntityDistrict,
		IsSchool:     rec.Type == EntitySchool,
	}
}
