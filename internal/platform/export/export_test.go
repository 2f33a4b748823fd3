package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/population"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

func generate(t *testing.T, size int) []*visit.Record {
	t.Helper()
	tables, err := dictionary.Default()
	require.NoError(t, err)
	cfg := dataset.DefaultConfig()
	cfg.Size = size
	records, _, err := dataset.Generate(context.Background(), cfg, tables)
	require.NoError(t, err)
	return records
}

func sampleRecord() *visit.Record {
	loc := temporal.Zone(180)
	visitAt := time.Date(2025, 3, 4, 10, 15, 0, 0, loc)
	return &visit.Record{
		Seq: 1,
		Client: &population.Client{
			ID:                1,
			Surname:           "Иванова",
			GivenName:         "Мария",
			Patronymic:        "Петровна",
			Gender:            dictionary.Female,
			Country:           dictionary.CountryRU,
			Passport:          "4510 123456",
			NationalID:        identifier.NationalID{Scheme: dictionary.SchemeSNILS, Value: "112-233-445 95"},
			PassportIssueDate: time.Date(2010, 5, 20, 0, 0, 0, 0, time.UTC),
			DepartmentCode:    "770-001",
		},
		Specialization: "терапевт",
		Symptoms:       []string{"кашель", "насморк"},
		VisitAt:        visitAt,
		LabTests:       []string{"общий анализ крови"},
		ResultAt:       visitAt.Add(36 * time.Hour),
		Cost:           decimal.NewFromInt(450),
		Card:           identifier.Card{Number: "2202201234567895", Bank: "sberbank", System: "mir"},
		CardUse:        1,
	}
}

func TestColumns(t *testing.T) {
	assert.Len(t, Columns(false), 10)
	ext := Columns(true)
	require.Len(t, ext, 13)
	assert.Equal(t, ColFullName, ext[0])
	assert.Equal(t, ColCard, ext[9])
	assert.Equal(t, ColDepartmentCode, ext[12])

	ext[0] = "changed"
	assert.Equal(t, ColFullName, Columns(false)[0])
}

func TestRow(t *testing.T) {
	row := Row(sampleRecord(), true)
	assert.Equal(t, []string{
		"Иванова Мария Петровна",
		"4510 123456",
		"112-233-445 95",
		"кашель, насморк",
		"терапевт",
		"2025-03-04T10:15+03:00",
		"общий анализ крови",
		"2025-03-05T22:15+03:00",
		"450 руб.",
		"2202 2012 3456 7895",
		"ru",
		"2010-05-20",
		"770-001",
	}, row)
	assert.Len(t, Row(sampleRecord(), false), 10)
}

func TestWriteAndVerify_CSV(t *testing.T) {
	records := generate(t, 200)
	path := filepath.Join(t.TempDir(), "dataset.csv")

	written, err := Write(path, records, true, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, path, written)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), utf8BOM))

	header, rows, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Columns(true), header)
	require.Len(t, rows, 200)

	sum, err := Verify(header, rows, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 200, sum.ValidRows, "%v", sum.Issues)
	assert.Equal(t, 1.0, sum.ValidRatio())
}

func TestWriteAndVerify_XLSX(t *testing.T) {
	records := generate(t, 50)
	path := filepath.Join(t.TempDir(), "dataset.xlsx")

	written, err := Write(path, records, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, path, written)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.LessOrEqual(t, width, float64(maxColumnWidth))
	assert.Greater(t, width, float64(len("ФИО")))
	require.NoError(t, f.Close())

	header, rows, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Columns(false), header)
	require.Len(t, rows, 50)
	assert.Equal(t, Row(records[0], false), rows[0])

	sum, err := Verify(header, rows, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 50, sum.ValidRows, "%v", sum.Issues)
}

func TestWrite_FallsBackToCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.xlsx")
	// a directory in the way makes the workbook unwritable
	require.NoError(t, os.Mkdir(path, 0o755))

	written, err := Write(path, generate(t, 5), false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dataset.csv"), written)

	_, rows, err := ReadFile(written)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestWrite_UnsupportedExtension(t *testing.T) {
	_, err := Write(filepath.Join(t.TempDir(), "dataset.json"), nil, false, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = ReadFile("dataset.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestVerify_FlagsBrokenCells(t *testing.T) {
	header := Columns(false)
	good := Row(sampleRecord(), false)

	tests := []struct {
		name   string
		column int
		value  string
		want   string
	}{
		{"name parts", 0, "Иванова Мария", ColFullName},
		{"passport", 1, "45101 23456", ColPassport},
		{"snils checksum", 2, "112-233-445 96", ColNationalID},
		{"no symptoms", 3, "", ColSymptoms},
		{"visit format", 5, "2025-03-04 10:15", ColVisitAt},
		{"result too late", 7, "2025-03-09T10:15+03:00", ColResultAt},
		{"cost suffix", 8, "450", ColCost},
		{"cost zero", 8, "0 руб.", ColCost},
		{"card luhn", 9, "2202 2012 3456 7891", ColCard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := append([]string(nil), good...)
			row[tt.column] = tt.value
			sum, err := Verify(header, [][]string{good, row}, DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, 1, sum.ValidRows)
			require.NotEmpty(t, sum.Issues)
			assert.Equal(t, 2, sum.Issues[0].Row)
			assert.Equal(t, tt.want, sum.Issues[0].Column)
		})
	}
}

func TestVerify_PassportCountryColumn(t *testing.T) {
	header := Columns(true)
	row := Row(sampleRecord(), true)
	row[10] = dictionary.CountryBY

	sum, err := Verify(header, [][]string{row}, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, sum.Issues, 1)
	assert.Equal(t, ColPassport, sum.Issues[0].Column)
}

func TestVerify_MissingColumn(t *testing.T) {
	_, err := Verify([]string{ColFullName}, nil, DefaultLimits())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestVerify_Empty(t *testing.T) {
	sum, err := Verify(Columns(false), nil, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum.ValidRatio())
}
