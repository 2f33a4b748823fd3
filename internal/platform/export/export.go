// Package export writes generated visit records as a spreadsheet and reads
// exported files back for verification.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

// SheetName is the worksheet holding the dataset.
const SheetName = "Датасет поликлиники"

// Column headers in export order.
const (
	ColFullName       = "ФИО"
	ColPassport       = "Паспортные данные"
	ColNationalID     = "СНИЛС"
	ColSymptoms       = "Симптомы"
	ColSpecialization = "Выбор врача"
	ColVisitAt        = "Дата посещения врача"
	ColLabTests       = "Анализы"
	ColResultAt       = "Дата получения анализов"
	ColCost           = "Стоимость анализов"
	ColCard           = "Карта оплаты"

	ColCountry        = "Страна паспорта"
	ColIssueDate      = "Дата выдачи паспорта"
	ColDepartmentCode = "Код подразделения"
)

// ListSeparator joins symptoms and lab tests within one cell.
const ListSeparator = ", "

// CostSuffix follows every cost amount.
const CostSuffix = " руб."

const maxColumnWidth = 50

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoSheet           = errors.New("workbook has no sheets")
)

var (
	baseColumns = []string{
		ColFullName, ColPassport, ColNationalID, ColSymptoms, ColSpecialization,
		ColVisitAt, ColLabTests, ColResultAt, ColCost, ColCard,
	}
	extendedColumns = []string{ColCountry, ColIssueDate, ColDepartmentCode}
)

// Columns returns the header row. Extended mode appends the passport detail
// columns.
func Columns(extended bool) []string {
	cols := append([]string(nil), baseColumns...)
	if extended {
		cols = append(cols, extendedColumns...)
	}
	return cols
}

// FormatCost renders a whole amount as "N руб.".
func FormatCost(r *visit.Record) string {
	return r.Cost.StringFixed(0) + CostSuffix
}

// Row renders one record in column order.
func Row(r *visit.Record, extended bool) []string {
	c := r.Client
	row := []string{
		c.FullName(),
		c.Passport,
		c.NationalID.Value,
		strings.Join(r.Symptoms, ListSeparator),
		r.Specialization,
		temporal.Format(r.VisitAt),
		strings.Join(r.LabTests, ListSeparator),
		temporal.Format(r.ResultAt),
		FormatCost(r),
		r.Card.Formatted(),
	}
	if extended {
		issued := ""
		if !c.PassportIssueDate.IsZero() {
			issued = c.PassportIssueDate.Format(time.DateOnly)
		}
		row = append(row, c.Country, issued, c.DepartmentCode)
	}
	return row
}

// Rows renders every record.
func Rows(records []*visit.Record, extended bool) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = Row(r, extended)
	}
	return rows
}

// ----------------------------------------------------------------------------
// Writers
// ----------------------------------------------------------------------------

// WriteXLSX writes header and rows to a single-sheet workbook with column
// widths fitted to content.
func WriteXLSX(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	widths := make([]int, len(header))
	write := func(line int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		for i, v := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(v))
			}
		}
		return f.SetSheetRow(SheetName, cell, &cells)
	}

	if err := write(1, header); err != nil {
		return fmt.Errorf("xlsx: write header: %w", err)
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return fmt.Errorf("xlsx: write row %d: %w", i+1, err)
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("xlsx: column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(w+2, maxColumnWidth))); err != nil {
			return fmt.Errorf("xlsx: column width: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}

// utf8BOM lets spreadsheet applications detect the encoding of CSV files.
const utf8BOM = "\uFEFF"

// WriteCSV writes header and rows as UTF-8 CSV with a byte order mark.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("csv: write bom: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write rows: %w", err)
	}
	return f.Close()
}

// Write exports records to path, choosing the format by extension. When the
// workbook cannot be written the dataset falls back to CSV next to path.
// It returns the file actually written.
func Write(path string, records []*visit.Record, extended bool, logger zerolog.Logger) (string, error) {
	header := Columns(extended)
	rows := Rows(records, extended)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		if err := WriteCSV(path, header, rows); err != nil {
			return "", err
		}
		logger.Info().Str("path", path).Int("rows", len(rows)).Msg("dataset saved")
		return path, nil
	case ".xlsx":
		err := WriteXLSX(path, header, rows)
		if err == nil {
			logger.Info().Str("path", path).Int("rows", len(rows)).Msg("dataset saved")
			return path, nil
		}
		fallback := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
		logger.Error().Err(err).Str("fallback", fallback).Msg("xlsx export failed, writing csv")
		if cerr := WriteCSV(fallback, header, rows); cerr != nil {
			return "", errors.Join(err, cerr)
		}
		logger.Info().Str("path", fallback).Int("rows", len(rows)).Msg("dataset saved")
		return fallback, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ----------------------------------------------------------------------------
// Readers
// ----------------------------------------------------------------------------

// ReadFile loads an exported CSV or xlsx file and returns its header and data
// rows.
func ReadFile(path string) ([]string, [][]string, error) {
	var (
		all [][]string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		all, err = readCSV(path)
	case ".xlsx":
		all, err = readXLSX(path)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("read %s: no header row", path)
	}
	return all[0], all[1:], nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read %s: %w", path, err)
	}
	if len(all) > 0 && len(all[0]) > 0 {
		all[0][0] = strings.TrimPrefix(all[0][0], utf8BOM)
	}
	return all, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoSheet
		}
		sheet = sheets[0]
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read %s: %w", path, err)
	}
	return all, nil
}
