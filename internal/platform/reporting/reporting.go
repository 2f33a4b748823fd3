// Package reporting renders the summary of a generation run as a Russian text
// report and as JSON.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

// Parameters echoes the run configuration.
type Parameters struct {
	Size              int     `json:"size"`
	Seed              int64   `json:"seed"`
	RepeatProbability float64 `json:"repeat_probability"`
	BatchSize         int     `json:"batch_size"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	OpenHour          int     `json:"open_hour"`
	CloseHour         int     `json:"close_hour"`
	MinResultHours    float64 `json:"min_result_hours"`
	MaxResultHours    float64 `json:"max_result_hours"`
	MaxSymptoms       int     `json:"max_symptoms"`
	MaxLabTests       int     `json:"max_lab_tests"`
	CardReuseLimit    int     `json:"card_reuse_limit"`
}

// Clients summarises the population.
type Clients struct {
	NewClients        int `json:"new_clients"`
	RepeatVisits      int `json:"repeat_visits"`
	UniqueClients     int `json:"unique_clients"`
	UniquePassports   int `json:"unique_passports"`
	UniqueNationalIDs int `json:"unique_national_ids"`
	IdentifierRetries int `json:"identifier_retries"`
}

// Payments summarises card usage.
type Payments struct {
	UniqueCards     int     `json:"unique_cards"`
	CardUses        int     `json:"card_uses"`
	AverageCardUses float64 `json:"average_card_uses"`
}

// CategoryCount is the number of warnings of one category.
type CategoryCount struct {
	Category visit.Category `json:"category"`
	Count    int            `json:"count"`
}

// Quality summarises validation.
type Quality struct {
	Warnings            int             `json:"warnings"`
	RecordsWithWarnings int             `json:"records_with_warnings"`
	ByCategory          []CategoryCount `json:"by_category"`
	ValidRatio          float64         `json:"valid_ratio"`
	MinValidRatio       float64         `json:"min_valid_ratio"`
	MeetsThreshold      bool            `json:"meets_threshold"`
}

// Performance summarises timing.
type Performance struct {
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	RecordsPerSecond float64 `json:"records_per_second"`
	MillisPerRecord  float64 `json:"millis_per_record"`
	Batches          int     `json:"batches"`
}

// Catalog records the size of the reference tables the run drew from.
type Catalog struct {
	Symptoms        int `json:"symptoms"`
	Specializations int `json:"specializations"`
	LabTests        int `json:"lab_tests"`
	Banks           int `json:"banks"`
}

// Report is the complete run summary.
type Report struct {
	RunID       uuid.UUID   `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Parameters  Parameters  `json:"parameters"`
	Clients     Clients     `json:"clients"`
	Payments    Payments    `json:"payments"`
	Quality     Quality     `json:"quality"`
	Performance Performance `json:"performance"`
	Catalog     Catalog     `json:"catalog"`
	Files       []string    `json:"files,omitempty"`
}

// Build assembles a report from finalized run statistics. files lists the
// artefacts written by the run.
func Build(stats *dataset.Stats, cfg dataset.Config, tables *dictionary.Tables, files ...string) *Report {
	r := &Report{
		RunID:       stats.RunID,
		GeneratedAt: stats.StartedAt.Add(stats.Elapsed),
		Parameters: Parameters{
			Size:              cfg.Size,
			Seed:              cfg.Seed,
			RepeatProbability: cfg.RepeatProbability,
			BatchSize:         cfg.BatchSize,
			StartDate:         cfg.StartDate.Format(time.DateOnly),
			EndDate:           cfg.EndDate.Format(time.DateOnly),
			OpenHour:          cfg.OpenHour,
			CloseHour:         cfg.CloseHour,
			MinResultHours:    cfg.MinResultOffset.Hours(),
			MaxResultHours:    cfg.MaxResultOffset.Hours(),
			MaxSymptoms:       cfg.MaxSymptoms,
			MaxLabTests:       cfg.MaxLabTests,
			CardReuseLimit:    cfg.CardReuseLimit,
		},
		Clients: Clients{
			NewClients:        stats.NewClients,
			RepeatVisits:      stats.RepeatVisits,
			UniqueClients:     stats.UniqueClients,
			UniquePassports:   stats.UniquePassports,
			UniqueNationalIDs: stats.UniqueNationalIDs,
			IdentifierRetries: stats.IdentifierRetries,
		},
		Payments: Payments{
			UniqueCards:     stats.UniqueCards,
			CardUses:        stats.CardUses,
			AverageCardUses: stats.AverageCardUses(),
		},
		Quality: Quality{
			Warnings:            stats.Warnings,
			RecordsWithWarnings: stats.RecordsWithWarnings,
			ValidRatio:          stats.ValidRatio(),
			MinValidRatio:       cfg.MinValidRatio,
			MeetsThreshold:      stats.MeetsThreshold(cfg.MinValidRatio),
		},
		Performance: Performance{
			ElapsedSeconds:   stats.Elapsed.Seconds(),
			RecordsPerSecond: stats.Throughput(),
			Batches:          stats.Batches,
		},
		Files: files,
	}
	if stats.Produced > 0 {
		r.Performance.MillisPerRecord = float64(stats.Elapsed.Milliseconds()) / float64(stats.Produced)
	}
	for _, c := range visit.Categories() {
		if n := stats.WarningsByCategory[c]; n > 0 {
			r.Quality.ByCategory = append(r.Quality.ByCategory, CategoryCount{Category: c, Count: n})
		}
	}
	if tables != nil {
		r.Catalog = Catalog{
			Symptoms:        len(tables.Symptoms),
			Specializations: len(tables.Specializations),
			LabTests:        len(tables.LabTests),
			Banks:           len(tables.Banks),
		}
	}
	return r
}

// WriteText renders the human-readable report.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	p := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	p("ОТЧЕТ О ГЕНЕРАЦИИ ДАТАСЕТА ПЛАТНОЙ ПОЛИКЛИНИКИ")
	p("==============================================")
	p("")
	p("Параметры генерации:")
	p("- Идентификатор запуска: %s", r.RunID)
	p("- Размер датасета: %d записей", r.Parameters.Size)
	p("- Seed: %d", r.Parameters.Seed)
	p("- Вероятность повторного визита: %.2f", r.Parameters.RepeatProbability)
	p("- Период визитов: %s – %s", r.Parameters.StartDate, r.Parameters.EndDate)
	p("- Время генерации: %.2f секунд", r.Performance.ElapsedSeconds)
	p("")
	p("Статистика клиентов:")
	p("- Новые клиенты: %d", r.Clients.NewClients)
	p("- Повторные визиты: %d", r.Clients.RepeatVisits)
	p("- Уникальные паспорта: %d", r.Clients.UniquePassports)
	p("- Уникальные национальные идентификаторы (СНИЛС/ИИН): %d", r.Clients.UniqueNationalIDs)
	p("- Уникальные клиенты: %d", r.Clients.UniqueClients)
	p("- Повторы при генерации идентификаторов: %d", r.Clients.IdentifierRetries)
	p("")
	p("Статистика платежей:")
	p("- Уникальные карты: %d", r.Payments.UniqueCards)
	p("- Общее использование карт: %d", r.Payments.CardUses)
	p("- Средняя кратность использования: %.2f", r.Payments.AverageCardUses)
	p("")
	p("Качество данных:")
	p("- Предупреждения валидации: %d", r.Quality.Warnings)
	p("- Записи с предупреждениями: %d", r.Quality.RecordsWithWarnings)
	for _, c := range r.Quality.ByCategory {
		p("  - %s: %d", c.Category, c.Count)
	}
	p("- Процент корректных записей: %.2f%%", r.Quality.ValidRatio*100)
	verdict := "соответствует"
	if !r.Quality.MeetsThreshold {
		verdict = "НЕ соответствует"
	}
	p("- Порог корректности %.2f%%: %s", r.Quality.MinValidRatio*100, verdict)
	p("")
	p("Производительность:")
	p("- Записей в секунду: %.2f", r.Performance.RecordsPerSecond)
	p("- Время на запись: %.2f мс", r.Performance.MillisPerRecord)
	p("- Пакетов: %d", r.Performance.Batches)
	p("")
	p("Структура данных:")
	p("1. ФИО - славянские имена")
	p("2. Паспортные данные - RU/BY/KZ форматы")
	p("3. СНИЛС/ИИН - с корректной контрольной суммой")
	p("4. Симптомы - 1-%d из %d возможных", r.Parameters.MaxSymptoms, r.Catalog.Symptoms)
	p("5. Выбор врача - %d специализаций", r.Catalog.Specializations)
	p("6. Дата визита - рабочие дни %d:00-%d:00", r.Parameters.OpenHour, r.Parameters.CloseHour)
	p("7. Анализы - 1-%d из %d возможных", r.Parameters.MaxLabTests, r.Catalog.LabTests)
	p("8. Дата анализов - через %g-%g часов", r.Parameters.MinResultHours, r.Parameters.MaxResultHours)
	p("9. Стоимость - в рублях, зависит от анализов")
	p("10. Карта оплаты - с алгоритмом Луна, макс. %d использований", r.Parameters.CardReuseLimit)
	if len(r.Files) > 0 {
		p("")
		p("Созданные файлы:")
		for _, f := range r.Files {
			p("- %s", f)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Save writes the text report to textPath and, when jsonPath is not empty,
// the JSON report to jsonPath.
func (r *Report) Save(textPath, jsonPath string) error {
	if err := writeFile(textPath, r.WriteText); err != nil {
		return err
	}
	if jsonPath == "" {
		return nil
	}
	return writeFile(jsonPath, r.WriteJSON)
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return f.Close()
}
