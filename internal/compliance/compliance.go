// Package compliance classifies product descriptions against a list of
// forbidden ingredients.
package compliance

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	Compliant    = "Meets WHO requirements"
	NonCompliant = "Does not meet WHO requirements: forbidden elements present"
)

// Terms is an immutable set of normalized forbidden terms.
type Terms struct {
	set map[string]struct{}
}

// NewTerms normalizes raw terms and drops blanks. An empty term would be a
// substring of every description, so it never enters the set.
func NewTerms(raw ...string) Terms {
	set := make(map[string]struct{}, len(raw))
	for _, term := range raw {
		n := Normalize(term)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return Terms{set: set}
}

// Len reports how many terms are in the set.
func (t Terms) Len() int {
	return len(t.set)
}

// List returns the terms in sorted order.
func (t Terms) List() []string {
	out := make([]string, 0, len(t.set))
	for term := range t.set {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Normalize case-folds s, trims it and removes every rune that is neither a
// letter, a digit nor whitespace.
func Normalize(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	folded = strings.TrimSpace(folded)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, folded)
}

// Check returns NonCompliant if any forbidden term occurs in the normalized
// description, Compliant otherwise.
func Check(description string, terms Terms) string {
	if len(terms.set) == 0 {
		return Compliant
	}
	text := Normalize(description)
	for term := range terms.set {
		if strings.Contains(text, term) {
			return NonCompliant
		}
	}
	return Compliant
}

// ReadTerms parses one term per line.
func ReadTerms(r io.Reader) (Terms, error) {
	var raw []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw = append(raw, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Terms{}, err
	}
	return NewTerms(raw...), nil
}

// LoadTerms reads the terms file at path. A missing or unreadable file is
// logged and yields an empty set.
func LoadTerms(path string, logger *zap.Logger) Terms {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("forbidden terms unavailable, every description will be compliant",
			zap.String("path", path), zap.Error(err))
		return NewTerms()
	}
	defer f.Close()

	terms, err := ReadTerms(f)
	if err != nil {
		logger.Warn("failed to read forbidden terms", zap.String("path", path), zap.Error(err))
		return NewTerms()
	}
	return terms
}

// Store holds the current forbidden terms and reloads them on demand.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	terms Terms
}

// NewStore loads the terms at path once.
func NewStore(path string, logger *zap.Logger) *Store {
	s := &Store{path: path, logger: logger.Named("compliance")}
	s.terms = LoadTerms(path, s.logger)
	s.logger.Info("forbidden terms loaded", zap.String("path", path), zap.Int("count", s.terms.Len()))
	return s
}

// Terms returns the current snapshot. Snapshots are never mutated, so a search
// holding one is unaffected by a concurrent Reload.
func (s *Store) Terms() Terms {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms
}

// Reload re-reads the terms file and returns the new snapshot.
func (s *Store) Reload() Terms {
	terms := LoadTerms(s.path, s.logger)
	s.mu.Lock()
	s.terms = terms
	s.mu.Unlock()
	s.logger.Info("forbidden terms reloaded", zap.Int("count", terms.Len()))
	return terms
}

// Checker binds a terms snapshot to Check.
func Checker(terms Terms) func(description string) string {
	return func(description string) string {
		return Check(description, terms)
	}
}
