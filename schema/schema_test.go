package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(name string, cols ...Column) Table {
	return Table{Keyspace: "ks", Name: name, Columns: cols}
}

func TestCheckCompliance(t *testing.T) {
	a64 := Column{Name: "a", Type: TypeInt64}
	aText := Column{Name: "a", Type: TypeText}
	bText := Column{Name: "b", Type: TypeText}

	tests := []struct {
		name       string
		source     Table
		target     Table
		compliant  bool
		mismatches int
	}{
		{"reordered", table("s", a64, bText), table("t", bText, a64), true, 0},
		{"identical", table("s", a64, bText), table("t", a64, bText), true, 0},
		{"count mismatch", table("s", a64, bText), table("t", a64), false, 1},
		{"type mismatch", table("s", a64), table("t", aText), false, 1},
		{"renamed column", table("s", a64, bText), table("t", a64, Column{Name: "c", Type: TypeText}), false, 2},
		{"duplicate names do not inflate", table("s", a64, a64), table("t", a64, bText), false, 1},
		{"empty", table("s"), table("t"), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := CheckCompliance(tt.source, tt.target)
			assert.Equal(t, tt.compliant, report.Compliant)
			assert.Equal(t, tt.mismatches, report.Mismatches)

			err := report.Err(tt.source, tt.target)
			if tt.compliant {
				assert.NoError(t, err)
				return
			}
			var ce *ComplianceError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "ks.s", ce.Source)
			assert.Equal(t, "ks.t", ce.Target)
		})
	}
}

func TestComplianceReportDetails(t *testing.T) {
	source := table("s", Column{Name: "a", Type: TypeInt64}, Column{Name: "b", Type: TypeBool})
	target := table("t", Column{Name: "a", Type: TypeInt32}, Column{Name: "c", Type: TypeBool})

	report := CheckCompliance(source, target)
	assert.Equal(t, []string{"b", "c"}, report.Missing)
	assert.Equal(t, []string{"a (int64 != int32)"}, report.TypeMismatches)
	assert.Contains(t, report.Err(source, target).Error(), "3 mismatch(es)")
}

func TestParseLogicalType(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseLogicalType(name)
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	got, err := ParseLogicalType("INT64")
	require.NoError(t, err)
	assert.Equal(t, TypeInt64, got)

	_, err = ParseLogicalType("decimal")
	assert.Error(t, err)
}

func TestNewColumnRejectsUnsupportedTypes(t *testing.T) {
	_, err := NewColumn("x", LogicalType(42))
	assert.Error(t, err)

	_, err = NewColumn("", TypeText)
	assert.Error(t, err)

	col, err := NewColumn("x", TypeBool)
	require.NoError(t, err)
	assert.Equal(t, "x:bool", col.String())
}

func TestValueForms(t *testing.T) {
	ts := time.Date(2023, 11, 14, 22, 13, 20, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		v    Value
		text string
		arg  any
	}{
		{"int64", Int64(1 << 40), "1099511627776", int64(1 << 40)},
		{"int32", Int32(-7), "-7", int32(-7)},
		{"int16", Int16(12), "12", int16(12)},
		{"bool", Bool(true), "true", true},
		{"timestamp", Timestamp(ts), "1699996400000", ts.UTC()},
		{"text", Text("hello"), "hello", "hello"},
		{"opaque text", Opaque("1.25", nil), "1.25", "1.25"},
		{"opaque native", Opaque("0x01", []byte{1}), "0x01", []byte{1}},
		{"null", Null(TypeInt32), "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.v.String())
			assert.Equal(t, tt.arg, tt.v.Arg())
		})
	}
}

func TestTableHelpers(t *testing.T) {
	tbl := table("users", Column{Name: "id", Type: TypeInt64}, Column{Name: "name", Type: TypeText})
	assert.Equal(t, "ks.users", tbl.QualifiedName())
	assert.Equal(t, []string{"id", "name"}, tbl.ColumnNames())
	assert.True(t, TypeInt16.Integer())
	assert.False(t, TypeTimestamp.Integer())
}
