// export.go: выгрузка регистраций в XLSX и CSV.
package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/repository"
)

// Форматы выгрузки.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

const exportSheet = "Registrations"

// exportHeader: колонки выгрузки.
var exportHeader = []string{
	"QID",
	"Full Name",
	"Email",
	"Age Group",
	"Gender",
	"Nationality",
	"Access Code",
	"Status",
	"Registered At",
	"Checked In At",
}

// exportWidths: ширина колонок XLSX.
var exportWidths = []float64{16, 30, 30, 12, 10, 20, 14, 14, 20, 20}

// ExportRequest: параметры выгрузки.
type ExportRequest struct {
	Format   string `json:"format" validate:"omitempty,oneof=xlsx csv"`
	Status   string `json:"status" validate:"omitempty,oneof=REGISTERED CHECKED_IN CANCELLED ALL"`
	AgeGroup string `json:"ageGroup" validate:"omitempty,oneof=KIDS YOUTH ADULT SENIOR ALL"`
}

// ExportFile: готовый файл выгрузки.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Count       int
}

// ExportService: выгрузка регистраций с записью EXPORT в журнал аудита.
type ExportService struct {
	regs     repository.RegistrationRepository
	audit    repository.AuditLogRepository
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewExportService создаёт сервис выгрузки.
func NewExportService(regs repository.RegistrationRepository, audit repository.AuditLogRepository, loc *time.Location, logger *slog.Logger) *ExportService {
	return &ExportService{
		regs:     regs,
		audit:    audit,
		validate: newValidator(),
		loc:      loc,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "export_service")),
	}
}

// Export формирует файл по фильтрам и пишет запись аудита без entityId.
func (s *ExportService) Export(ctx context.Context, req ExportRequest, actor *model.User) (*ExportFile, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Format == "" {
		req.Format = FormatXLSX
	}

	var filter repository.RegistrationFilter
	if req.Status != "" && req.Status != filterAll {
		st := model.Status(req.Status)
		filter.Status = &st
	}
	if req.AgeGroup != "" && req.AgeGroup != filterAll {
		ag := model.AgeGroup(req.AgeGroup)
		filter.AgeGroup = &ag
	}

	var rows [][]string
	err := s.regs.ForEach(ctx, filter, func(r *model.Registration) error {
		rows = append(rows, s.exportRow(r))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("выборка регистраций для выгрузки: %w", err)
	}

	file := &ExportFile{
		Filename: fmt.Sprintf("registrations-%s.%s", s.now().In(s.loc).Format("2006-01-02-150405"), req.Format),
		Count:    len(rows),
	}
	switch req.Format {
	case FormatCSV:
		file.ContentType = "text/csv; charset=utf-8"
		file.Data, err = buildCSV(rows)
	default:
		file.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		file.Data, err = buildXLSX(rows)
	}
	if err != nil {
		return nil, err
	}

	entry := &model.AuditLogEntry{
		UserID: actor.ID,
		Action: model.AuditExport,
		Entity: model.EntityRegistration,
		Metadata: map[string]any{
			"format":   req.Format,
			"count":    file.Count,
			"status":   orAll(req.Status),
			"ageGroup": orAll(req.AgeGroup),
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("запись аудита выгрузки: %w", err)
	}

	s.logger.Info("Выгрузка регистраций",
		slog.String("format", req.Format),
		slog.Int("count", file.Count),
		slog.String("user_id", actor.ID),
	)
	return file, nil
}

func (s *ExportService) exportRow(r *model.Registration) []string {
	checkedIn := ""
	if r.CheckedInAt != nil {
		checkedIn = r.CheckedInAt.In(s.loc).Format(time.DateTime)
	}
	return []string{
		r.QID,
		r.FullName,
		r.Email,
		string(r.AgeGroup),
		string(r.Gender),
		r.Nationality,
		r.AccessToken,
		string(r.Status),
		r.CreatedAt.In(s.loc).Format(time.DateTime),
		checkedIn,
	}
}

func orAll(v string) string {
	if v == "" {
		return filterAll
	}
	return v
}

// csvSafe экранирует значение, которое табличный редактор принял бы за
// формулу: имя, email и гражданство вводит сам регистрант.
func csvSafe(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func buildCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("запись заголовка CSV: %w", err)
	}
	safe := make([]string, len(exportHeader))
	for i, row := range rows {
		safe = safe[:0]
		for _, v := range row {
			safe = append(safe, csvSafe(v))
		}
		if err := w.Write(safe); err != nil {
			return nil, fmt.Errorf("запись строки CSV %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("запись строк CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func buildXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("создание листа: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("создание стиля заголовка: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("создание потоковой записи: %w", err)
	}
	for i, w := range exportWidths {
		if err := sw.SetColWidth(i+1, i+1, w); err != nil {
			return nil, fmt.Errorf("ширина колонки %d: %w", i+1, err)
		}
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("запись заголовка: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("координаты строки %d: %w", i+2, err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := sw.SetRow(cell, values); err != nil {
			return nil, fmt.Errorf("запись строки %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("завершение потоковой записи: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("сериализация XLSX: %w", err)
	}
	return buf.Bytes(), nil
}
