package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// proRemaining is reported as the remaining quota of unlimited groups.
	proRemaining = 999
	dayLayout    = "2006-01-02"
)

type UsageStats struct {
	ActiveGroupsToday int
	TotalMessages     int
	ProGroups         int
}

type usageSnapshot struct {
	Counters map[string]int
	Pro      map[int64]struct{}
}

// usageBackend persists the counter table and the pro set. Each save receives
// the full table and replaces whatever was stored before.
type usageBackend interface {
	Load() (usageSnapshot, error)
	SaveCounters(counters map[string]int) error
	SavePro(pro map[int64]struct{}) error
	Close() error
}

// UsageStore answers quota questions for chats: pro chats are unlimited, the
// rest get a fixed number of messages per UTC day.
type UsageStore struct {
	backend  usageBackend
	limit    int
	counters map[string]int
	pro      map[int64]struct{}
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewUsageStore(backend usageBackend, limit int, logger *slog.Logger) *UsageStore {
	if logger == nil {
		logger = slog.Default()
	}
	store := &UsageStore{
		backend:  backend,
		limit:    limit,
		counters: make(map[string]int),
		pro:      make(map[int64]struct{}),
		now:      time.Now,
		logger:   logger,
	}

	// Load hands back whatever it could read even when it also returns an error.
	snapshot, err := backend.Load()
	if err != nil {
		logger.Warn("usage store partly unreadable, unreadable parts start empty", "err", err)
	}
	if snapshot.Counters != nil {
		store.counters = snapshot.Counters
	}
	if snapshot.Pro != nil {
		store.pro = snapshot.Pro
	}
	logger.Info("usage store loaded", "counters", len(store.counters), "pro_groups", len(store.pro))
	return store
}

func (s *UsageStore) Limit() int {
	return s.limit
}

func (s *UsageStore) today() string {
	return s.now().UTC().Format(dayLayout)
}

func usageKey(chatID int64, day string) string {
	return fmt.Sprintf("%d:%s", chatID, day)
}

// keyDay returns the date suffix of a counter key. Chat ids can be negative,
// so the split happens on the last colon.
func keyDay(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return ""
	}
	return key[i+1:]
}

// CanUse reports whether the chat may send another message today and how many are left.
func (s *UsageStore) CanUse(chatID int64) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canUseLocked(chatID)
}

func (s *UsageStore) canUseLocked(chatID int64) (bool, int) {
	if _, ok := s.pro[chatID]; ok {
		return true, proRemaining
	}
	used := s.counters[usageKey(chatID, s.today())]
	remaining := max(0, s.limit-used)
	return remaining > 0, remaining
}

// Record charges one message to the chat for today and rewrites the counter table.
// On a write error the in-memory count keeps the increment.
func (s *UsageStore) Record(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(chatID)
}

func (s *UsageStore) recordLocked(chatID int64) error {
	s.counters[usageKey(chatID, s.today())]++
	if err := s.backend.SaveCounters(s.counters); err != nil {
		return fmt.Errorf("save usage counters: %w", err)
	}
	return nil
}

// Consume checks the quota and, when allowed, records the message in one step.
// remaining is what is left after this message.
func (s *UsageStore) Consume(chatID int64) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, remaining := s.canUseLocked(chatID)
	if !allowed {
		return false, 0, nil
	}
	err := s.recordLocked(chatID)
	if remaining != proRemaining {
		remaining--
	}
	return true, remaining, err
}

func (s *UsageStore) AddPro(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pro[chatID] = struct{}{}
	if err := s.backend.SavePro(s.pro); err != nil {
		return fmt.Errorf("save pro groups: %w", err)
	}
	return nil
}

func (s *UsageStore) IsPro(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pro[chatID]
	return ok
}

func (s *UsageStore) Stats() UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.today()
	var stats UsageStats
	for key, count := range s.counters {
		if keyDay(key) == today {
			stats.ActiveGroupsToday++
		}
		stats.TotalMessages += count
	}
	stats.ProGroups = len(s.pro)
	return stats
}

// Compact drops counters for days older than retainDays before today.
// Keys whose date cannot be parsed are left alone.
func (s *UsageStore) Compact(retainDays int) (int, error) {
	if retainDays < 0 {
		return 0, fmt.Errorf("retain days must not be negative: %d", retainDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -retainDays)
	removed := 0
	for key := range s.counters {
		day, err := time.Parse(dayLayout, keyDay(key))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			delete(s.counters, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.backend.SaveCounters(s.counters); err != nil {
		return removed, fmt.Errorf("save compacted counters: %w", err)
	}
	return removed, nil
}

func (s *UsageStore) Close() error {
	return s.backend.Close()
}

func parseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, NewUserError(err, fmt.Sprintf("Invalid chat id: %q", raw))
	}
	return id, nil
}
