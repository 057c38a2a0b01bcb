// Package menus renders a planned week as a printable menu.
package menus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/blob"
	"github.com/fdg312/meal-calendar/internal/logger"
	"github.com/fdg312/meal-calendar/internal/mealdate"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
)

// Service handles menu exports.
type Service struct {
	calendar   storage.CalendarStorage
	dishes     storage.DishesStorage
	blobStore  blob.Store
	presignTTL time.Duration
	log        *logger.Logger
}

// NewService creates a new menus service. A nil blobStore means exports are
// returned inline.
func NewService(calendar storage.CalendarStorage, dishes storage.DishesStorage, blobStore blob.Store, presignTTLSeconds int, log *logger.Logger) *Service {
	if presignTTLSeconds <= 0 {
		presignTTLSeconds = 900
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		calendar:   calendar,
		dishes:     dishes,
		blobStore:  blobStore,
		presignTTL: time.Duration(presignTTLSeconds) * time.Second,
		log:        log.With("component", "menus"),
	}
}

// Export renders the week containing day.
func (s *Service) Export(ctx context.Context, day civil.Date, format string) (*Export, error) {
	weekStart := mealdate.WeekStart(day)
	week, err := s.calendar.GetWeek(ctx, weekStart)
	if errors.Is(err, storage.ErrNotFound) {
		week = storage.NewWeekEntry(weekStart)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load week %s: %w", weekStart, err)
	}

	names, err := s.dishNames(ctx, week)
	if err != nil {
		return nil, err
	}
	rows := buildRows(week, names)

	var data []byte
	switch format {
	case FormatCSV:
		data, err = renderCSV(rows)
	case FormatPDF:
		data, err = renderPDF(weekStart, rows)
	default:
		return nil, ErrInvalidFormat
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render menu: %w", err)
	}

	exp := &Export{
		WeekStart:   weekStart,
		Format:      format,
		ContentType: contentType(format),
		Filename:    fmt.Sprintf("menu-%s.%s", weekStart, format),
		SizeBytes:   int64(len(data)),
	}

	if s.blobStore == nil {
		exp.Data = data
		return exp, nil
	}

	key := fmt.Sprintf("menus/%s/%s.%s", weekStart, uuid.New().String(), format)
	if _, err := s.blobStore.PutObject(ctx, key, data, exp.ContentType); err != nil {
		return nil, fmt.Errorf("failed to upload menu: %w", err)
	}
	url, err := s.blobStore.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign menu: %w", err)
	}
	s.log.Info("menu uploaded", "week_start", weekStart.String(), "format", format, "object_key", key, "size", len(data))

	exp.ObjectKey = key
	exp.URL = url
	exp.ExpiresIn = int(s.presignTTL / time.Second)
	return exp, nil
}

// dishNames resolves every id in the week; deleted dishes are left out of
// the map and rendered as unknown.
func (s *Service) dishNames(ctx context.Context, week storage.WeekEntry) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string)
	for _, meal := range storage.MealTypes {
		for _, ids := range week.Slot(meal) {
			for _, id := range ids {
				if _, seen := names[id]; seen {
					continue
				}
				d, err := s.dishes.GetDish(ctx, id)
				if errors.Is(err, storage.ErrNotFound) {
					s.log.Debug("unknown dish in week", "week_start", week.WeekStart.String(), "dish_id", id)
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("failed to load dish %s: %w", id, err)
				}
				names[id] = d.Name
			}
		}
	}
	return names, nil
}
