package menus

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

// menuRow is one day of the rendered week.
type menuRow struct {
	Day    civil.Date
	Lunch  []string
	Dinner []string
}

func buildRows(week storage.WeekEntry, names map[uuid.UUID]string) []menuRow {
	resolve := func(ids []uuid.UUID) []string {
		out := make([]string, len(ids))
		for i, id := range ids {
			if n, ok := names[id]; ok {
				out[i] = n
			} else {
				out[i] = UnknownDish
			}
		}
		return out
	}

	rows := make([]menuRow, 0, 7)
	for _, day := range mealdate.WeekDays(week.WeekStart) {
		rows = append(rows, menuRow{
			Day:    day,
			Lunch:  resolve(week.Dishes(storage.MealLunch, day)),
			Dinner: resolve(week.Dishes(storage.MealDinner, day)),
		})
	}
	return rows
}

// renderCSV writes one line per day and meal.
func renderCSV(rows []menuRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"date", "weekday", "meal", "dishes"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		for _, meal := range storage.MealTypes {
			dishes := r.Lunch
			if meal == storage.MealDinner {
				dishes = r.Dinner
			}
			line := []string{r.Day.String(), r.Day.Weekday().String(), string(meal), strings.Join(dishes, "; ")}
			if err := w.Write(line); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	dayColW  = 40.0
	mealColW = 70.0
	lineH    = 6.0
)

// renderPDF draws the week as a day x meal grid with one dish per line.
// Only the core Arial font is used, so names are translated to cp1252.
func renderPDF(weekStart civil.Date, rows []menuRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Menu "+weekStart.String(), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Menu for the week of "+weekStart.String())
	pdf.Ln(14)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(dayColW, 8, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(mealColW, 8, "Lunch", "1", 0, "C", false, 0, "")
	pdf.CellFormat(mealColW, 8, "Dinner", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, r := range rows {
		lines := max(len(r.Lunch), len(r.Dinner), 1)
		h := float64(lines) * lineH
		x, y := pdf.GetXY()

		label := fmt.Sprintf("%s %s", r.Day.Weekday().String()[:3], r.Day.String())
		pdf.CellFormat(dayColW, h, label, "1", 0, "L", false, 0, "")
		drawList(pdf, tr, x+dayColW, y, h, r.Lunch)
		drawList(pdf, tr, x+dayColW+mealColW, y, h, r.Dinner)
		pdf.SetXY(x, y+h)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func drawList(pdf *gofpdf.Fpdf, tr func(string) string, x, y, h float64, items []string) {
	pdf.Rect(x, y, mealColW, h, "D")
	for i, item := range items {
		pdf.SetXY(x, y+float64(i)*lineH)
		pdf.CellFormat(mealColW, lineH, tr(item), "", 0, "L", false, 0, "")
	}
}
