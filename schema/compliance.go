package schema

import (
	"fmt"
	"sort"
	"strings"

	"cqlmigrate/internal"
)

// Report is the outcome of comparing a source and a target table.
type Report struct {
	Compliant      bool
	Mismatches     int
	Missing        []string
	TypeMismatches []string
}

// ComplianceError is returned when a migration is gated on a
// non-compliant pair of tables.
type ComplianceError struct {
	Source string
	Target string
	Report Report
}

func (e *ComplianceError) Error() string {
	msg := fmt.Sprintf("schema of %s is not compliant with %s: %d mismatch(es)",
		e.Source, e.Target, e.Report.Mismatches)
	if len(e.Report.Missing) > 0 {
		msg += fmt.Sprintf(", missing columns [%s]", strings.Join(e.Report.Missing, ", "))
	}
	if len(e.Report.TypeMismatches) > 0 {
		msg += fmt.Sprintf(", type mismatches [%s]", strings.Join(e.Report.TypeMismatches, ", "))
	}
	return msg
}

// CheckCompliance compares two tables by column name and logical type.
// Column order does not matter and each name is counted once per side.
func CheckCompliance(source, target Table) Report {
	if len(source.Columns) != len(target.Columns) {
		report := Report{Mismatches: abs(len(source.Columns) - len(target.Columns))}
		internal.Logger.Warn("Column count mismatch",
			"source", source.QualifiedName(),
			"target", target.QualifiedName(),
			"sourceColumns", len(source.Columns),
			"targetColumns", len(target.Columns),
			"mismatches", report.Mismatches)
		return report
	}

	src := typeMap(source)
	dst := typeMap(target)

	var report Report
	for name, typ := range src {
		other, ok := dst[name]
		switch {
		case !ok:
			report.Missing = append(report.Missing, name)
		case other != typ:
			report.TypeMismatches = append(report.TypeMismatches,
				fmt.Sprintf("%s (%s != %s)", name, typ, other))
		}
	}
	for name := range dst {
		if _, ok := src[name]; !ok {
			report.Missing = append(report.Missing, name)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.TypeMismatches)

	report.Mismatches = len(report.Missing) + len(report.TypeMismatches)
	report.Compliant = report.Mismatches == 0
	if !report.Compliant {
		internal.Logger.Warn("Schema mismatch",
			"source", source.QualifiedName(),
			"target", target.QualifiedName(),
			"mismatches", report.Mismatches)
	}
	return report
}

// Err returns a ComplianceError when the report is not compliant.
func (r Report) Err(source, target Table) error {
	if r.Compliant {
		return nil
	}
	return &ComplianceError{
		Source: source.QualifiedName(),
		Target: target.QualifiedName(),
		Report: r,
	}
}

func typeMap(t Table) map[string]LogicalType {
	m := make(map[string]LogicalType, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Name] = c.Type
	}
	return m
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
