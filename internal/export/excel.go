// Package export renders appointment schedules as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"slotbook/internal/models"
	"slotbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	SheetAppointments = "Appointments"
	SheetDays         = "Days"
)

var statusColors = map[models.AppointmentStatus]string{
	models.StatusAvailable: "#FFFFFF",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusBlocked:   "#FFC7CE",
	models.StatusCancelled: "#FFEB9C",
}

var appointmentHeaders = []string{"Date", "Time", "Duration", "Status", "Customer", "Phone", "Email", "Notes"}

var dayHeaders = []string{"Date", "Status", "Available", "Booked", "Blocked", "Total"}

type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// FileName is the workbook name for the range [start, start+days).
func FileName(start time.Time, days int) string {
	end := start.AddDate(0, 0, days-1)
	return fmt.Sprintf("appointments_%s_to_%s.xlsx", models.FormatDate(start), models.FormatDate(end))
}

// Write renders the appointments of [start, start+days) to w.
// details must already be limited to that range.
func (e *Exporter) Write(w io.Writer, start time.Time, days int, details []*models.AppointmentDetail) error {
	f, err := build(start, days, details)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into the export directory and returns its path.
func (e *Exporter) Save(start time.Time, days int, details []*models.AppointmentDetail) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := build(start, days, details)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(start, days))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("rows", len(details)).Msg("Excel file created")
	return path, nil
}

func build(start time.Time, days int, details []*models.AppointmentDetail) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetAppointments)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(SheetDays); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create style: %w", err)
	}
	rowStyles, err := statusStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	writeHeaders(f, SheetAppointments, appointmentHeaders, headerStyle)
	for i, d := range details {
		row := i + 2
		values := []any{
			models.FormatDate(d.Date), d.Time.String(), d.Duration, string(d.Status),
			"", "", "", d.Notes,
		}
		if d.User != nil {
			values[4], values[5], values[6] = d.User.FullName(), d.User.Phone, d.User.Email
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(SheetAppointments, cell, &values)

		if style, ok := rowStyles[d.Status]; ok {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(SheetAppointments, cell, last, style)
		}
	}
	_ = f.SetColWidth(SheetAppointments, "A", "D", 12)
	_ = f.SetColWidth(SheetAppointments, "E", "G", 24)
	_ = f.SetColWidth(SheetAppointments, "H", "H", 30)

	appts := make([]*models.Appointment, 0, len(details))
	for _, d := range details {
		appts = append(appts, &d.Appointment)
	}
	writeHeaders(f, SheetDays, dayHeaders, headerStyle)
	for i, day := range schedule.AggregateRange(start, days, appts) {
		counts := make(map[models.AppointmentStatus]int)
		for _, s := range day.Slots {
			counts[s.Status]++
		}
		values := []any{
			models.FormatDate(day.Date), string(day.Status),
			counts[models.StatusAvailable], counts[models.StatusConfirmed], counts[models.StatusBlocked],
			len(day.Slots),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(SheetDays, cell, &values)
	}
	_ = f.SetColWidth(SheetDays, "A", "B", 16)

	return f, nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func statusStyles(f *excelize.File) (map[models.AppointmentStatus]int, error) {
	styles := make(map[models.AppointmentStatus]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		})
		if err != nil {
			return nil, fmt.Errorf("create %s style: %w", status, err)
		}
		styles[status] = id
	}
	return styles, nil
}
