package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
)

type calendarStorage struct {
	mu    sync.RWMutex
	weeks map[civil.Date]storage.WeekEntry
}

func newCalendarStorage() *calendarStorage {
	return &calendarStorage{
		weeks: make(map[civil.Date]storage.WeekEntry),
	}
}

func (s *calendarStorage) GetWeek(ctx context.Context, weekStart civil.Date) (storage.WeekEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.weeks[weekStart]
	if !ok {
		return storage.WeekEntry{}, fmt.Errorf("week %s: %w", weekStart, storage.ErrNotFound)
	}
	return w.Clone(), nil
}

func (s *calendarStorage) SaveWeek(ctx context.Context, entry *storage.WeekEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveLocked(entry)
	return nil
}

func (s *calendarStorage) SaveWeeks(ctx context.Context, entries []*storage.WeekEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.saveLocked(e)
	}
	return nil
}

func (s *calendarStorage) saveLocked(entry *storage.WeekEntry) {
	ts := now()
	if existing, ok := s.weeks[entry.WeekStart]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.CreatedAt = ts
	}
	entry.LastUpdated = ts
	s.weeks[entry.WeekStart] = entry.Clone()
}

func (s *calendarStorage) CreateWeekIfMissing(ctx context.Context, weekStart civil.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.weeks[weekStart]; ok {
		return false, nil
	}
	entry := storage.NewWeekEntry(weekStart)
	s.saveLocked(&entry)
	return true, nil
}

func (s *calendarStorage) ListWeeksDescending(ctx context.Context, filter storage.WeekFilter) ([]storage.WeekEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.WeekEntry, 0, len(s.weeks))
	for _, w := range s.weeks {
		if filter.Matches(w) {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WeekStart.After(out[j].WeekStart)
	})
	return out, nil
}

func (s *calendarStorage) all() []storage.WeekEntry {
	out, _ := s.ListWeeksDescending(context.Background(), storage.WeekFilter{})
	return out
}

func (s *calendarStorage) replace(weeks []storage.WeekEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weeks = make(map[civil.Date]storage.WeekEntry, len(weeks))
	for _, w := range weeks {
		s.weeks[w.WeekStart] = w.Clone()
	}
}
