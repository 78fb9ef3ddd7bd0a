// Package learning keeps the corrections users teach the bot and the
// per-intent usage counters.
package learning

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/lang"
	"github.com/xaenox/lingua-bot/internal/storage"
)

const memoryFile = "learning_memory.json"

// ErrEmptyCorrection is returned by Teach when the message or the correction
// has nothing left after normalisation.
var ErrEmptyCorrection = errors.New("empty correction or message")

// document is the on-disk shape. CorrectionOrder records key insertion order,
// which JSON objects do not preserve.
type document struct {
	PatternFrequency map[string]int      `json:"pattern_frequency"`
	UserCorrections  map[string][]string `json:"user_corrections"`
	CorrectionOrder  []string            `json:"correction_order"`
	SimilarQueries   map[string][]string `json:"similar_queries"`
}

// IntentCount is one row of the popular-intents report.
type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// Store is safe for concurrent use. Every mutation rewrites the backing file.
type Store struct {
	path   string
	logger *zap.Logger

	mu          sync.Mutex
	order       []string
	corrections map[string][]string
	frequency   map[string]int
	similar     map[string][]string
	rnd         *rand.Rand
}

// Open loads the store from dir, starting empty when no file exists yet.
// An empty dir keeps everything in memory.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		logger:      logger.Named("learning"),
		corrections: make(map[string][]string),
		frequency:   make(map[string]int),
		similar:     make(map[string][]string),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if dir == "" {
		return s, nil
	}
	s.path = filepath.Join(dir, memoryFile)

	var doc document
	if _, err := storage.ReadJSONFile(s.path, &doc); err != nil {
		return nil, fmt.Errorf("failed to load learning memory: %w", err)
	}
	s.restore(doc)
	return s, nil
}

func (s *Store) restore(doc document) {
	for intent, count := range doc.PatternFrequency {
		s.frequency[intent] = count
	}
	for key, values := range doc.SimilarQueries {
		s.similar[key] = values
	}

	seen := make(map[string]bool, len(doc.UserCorrections))
	for _, key := range doc.CorrectionOrder {
		if values, ok := doc.UserCorrections[key]; ok && !seen[key] {
			s.order = append(s.order, key)
			s.corrections[key] = values
			seen[key] = true
		}
	}

	// Files written before the order was recorded: sort the rest.
	rest := make([]string, 0)
	for key := range doc.UserCorrections {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		s.order = append(s.order, key)
		s.corrections[key] = doc.UserCorrections[key]
	}
}

// Teach records correction as a reply to prior. Teaching the same pair twice
// has no further effect.
func (s *Store) Teach(prior, correction string) error {
	key := lang.Normalize(prior)
	correction = strings.TrimSpace(correction)
	if key == "" || correction == "" {
		return ErrEmptyCorrection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, exists := s.corrections[key]
	for _, v := range values {
		if v == correction {
			return nil
		}
	}

	order := s.order
	if !exists {
		s.order = append(s.order, key)
	}
	s.corrections[key] = append(values[:len(values):len(values)], correction)

	if err := s.saveLocked(); err != nil {
		s.order = order
		if exists {
			s.corrections[key] = values
		} else {
			delete(s.corrections, key)
		}
		return err
	}

	s.logger.Info("Learned correction",
		zap.String("message", key),
		zap.Int("corrections", len(s.corrections[key])))
	return nil
}

// Lookup returns a random correction of the first stored message (in
// teaching order) that contains normalized or is contained by it.
func (s *Store) Lookup(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.order {
		if key == "" {
			continue
		}
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			values := s.corrections[key]
			if len(values) == 0 {
				continue
			}
			return values[s.rnd.Intn(len(values))], true
		}
	}
	return "", false
}

// Corrections returns the stored corrections for prior, in teaching order.
func (s *Store) Corrections(prior string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.corrections[lang.Normalize(prior)]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// RecordIntent counts one locally answered message for intent.
func (s *Store) RecordIntent(intent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frequency[intent]++
	if err := s.saveLocked(); err != nil {
		s.logger.Error("Failed to save pattern frequency", zap.Error(err), zap.String("intent", intent))
	}
}

// IntentCount returns how many times intent has answered a message.
func (s *Store) IntentCount(intent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency[intent]
}

// Count returns the number of messages with learned corrections.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// PopularIntents returns the n most used intents, most used first.
func (s *Store) PopularIntents(n int) []IntentCount {
	s.mu.Lock()
	out := make([]IntentCount, 0, len(s.frequency))
	for intent, count := range s.frequency {
		out = append(out, IntentCount{Intent: intent, Count: count})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Intent < out[j].Intent
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	return storage.WriteJSONFile(s.path, document{
		PatternFrequency: s.frequency,
		UserCorrections:  s.corrections,
		CorrectionOrder:  s.order,
		SimilarQueries:   s.similar,
	})
}
