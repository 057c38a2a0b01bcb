package menus

import (
	"errors"
	"strings"

	"cloud.google.com/go/civil"
)

const (
	FormatPDF = "pdf"
	FormatCSV = "csv"

	// UnknownDish labels ids that no longer resolve to a dish.
	UnknownDish = "Unknown dish"
)

var ErrInvalidFormat = errors.New("format must be pdf or csv")

func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", ErrInvalidFormat
	}
}

func contentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/pdf"
}

// Export is a rendered menu. Data is set when no blob store is configured;
// otherwise the file was uploaded and URL points at it.
type Export struct {
	WeekStart   civil.Date `json:"week_start"`
	Format      string     `json:"format"`
	ContentType string     `json:"content_type"`
	Filename    string     `json:"filename"`
	SizeBytes   int64      `json:"size_bytes"`
	ObjectKey   string     `json:"object_key,omitempty"`
	URL         string     `json:"url,omitempty"`
	ExpiresIn   int        `json:"expires_in,omitempty"`
	Data        []byte     `json:"-"`
}
