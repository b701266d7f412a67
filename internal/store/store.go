// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package store is the persistent report cache on BadgerDB.
//
// Layout (one value per key, goccy/go-json encoded):
//
//	index:<substance-key>              -> models.Index
//	report:<substance-key>:<report-id> -> models.Report
//
// SaveReport writes the report record and the index upsert inside a single
// Badger transaction, so the index never references a body that does not
// exist. Read failures (missing keys, corrupt values) degrade to absent
// rather than propagating: the worst consequence is a re-fetch.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/models"
)

const (
	indexKeyPrefix  = "index:"
	reportKeyPrefix = "report:"
)

// ErrNotFound is returned by GetReport when no record exists for the ID.
var ErrNotFound = errors.New("store: not found")

// Store is the persistent per-substance report cache.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the cache database.
func Open(cfg config.CacheConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{})
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(substanceKey string) []byte {
	return []byte(indexKeyPrefix + substanceKey)
}

func reportKey(substanceKey, reportID string) []byte {
	return []byte(reportKeyPrefix + substanceKey + ":" + reportID)
}

// GetIndex returns the cached index for a substance key, or nil when the
// substance has never been scraped (or its index is unreadable).
func (s *Store) GetIndex(substanceKey string) *models.Index {
	var index models.Index
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(substanceKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &index)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Str("substance", substanceKey).Msg("unreadable index, treating as absent")
		}
		return nil
	}
	return &index
}

// CachedIDs returns the set of report IDs already present in the substance's
// index. Empty set when the index is absent.
func (s *Store) CachedIDs(substanceKey string) map[string]struct{} {
	ids := make(map[string]struct{})
	index := s.GetIndex(substanceKey)
	if index == nil {
		return ids
	}
	for _, entry := range index.Reports {
		ids[entry.ID] = struct{}{}
	}
	return ids
}

// IsCached reports whether a specific report record exists, independent of
// any in-memory index snapshot. The pipeline uses this as a late re-check
// right before fetching, to skip reports a concurrent producer just saved.
func (s *Store) IsCached(substanceKey, reportID string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(reportKey(substanceKey, reportID))
		return err
	})
	return err == nil
}

// SaveReport persists the full report and upserts its metadata projection
// into the substance index (replace when the ID is already present, append
// otherwise), stamping a fresh last-scraped time. The report write and the
// index rewrite share one transaction.
func (s *Store) SaveReport(substanceKey, substanceName string, report *models.Report) error {
	reportData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(reportKey(substanceKey, report.ID), reportData); err != nil {
			return fmt.Errorf("set report %s: %w", report.ID, err)
		}

		index := models.Index{SubstanceName: substanceName}
		item, err := txn.Get(indexKey(substanceKey))
		switch {
		case err == nil:
			verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &index)
			})
			if verr != nil {
				// Corrupt index: rebuild from this report onward rather
				// than failing the persist.
				logging.Warn().Err(verr).Str("substance", substanceKey).Msg("corrupt index overwritten")
				index = models.Index{SubstanceName: substanceName}
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First report for this substance.
		default:
			return fmt.Errorf("read index: %w", err)
		}

		entry := report.IndexEntry()
		replaced := false
		for i := range index.Reports {
			if index.Reports[i].ID == entry.ID {
				index.Reports[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			index.Reports = append(index.Reports, entry)
		}
		index.LastScraped = time.Now().UTC().Format(time.RFC3339)

		indexData, err := json.Marshal(&index)
		if err != nil {
			return fmt.Errorf("marshal index: %w", err)
		}
		return txn.Set(indexKey(substanceKey), indexData)
	})
}

// GetReport loads one full report, or ErrNotFound.
func (s *Store) GetReport(substanceKey, reportID string) (*models.Report, error) {
	var report models.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(reportKey(substanceKey, reportID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		logging.Warn().Err(err).Str("report", reportID).Msg("unreadable report, treating as absent")
		return nil, ErrNotFound
	}
	return &report, nil
}

// ListSubstances returns a summary per cached substance, sorted by key.
// Entries whose index fails to decode are skipped, not fatal: one corrupt
// substance must not take down the whole listing.
func (s *Store) ListSubstances() ([]models.SubstanceSummary, error) {
	summaries := make([]models.SubstanceSummary, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), indexKeyPrefix)

			var index models.Index
			verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &index)
			})
			if verr != nil {
				logging.Warn().Err(verr).Str("substance", key).Msg("skipping corrupt index in listing")
				continue
			}

			summaries = append(summaries, models.SubstanceSummary{
				Name:        index.SubstanceName,
				Key:         key,
				ReportCount: len(index.Reports),
				LastScraped: index.LastScraped,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan indexes: %w", err)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Key < summaries[j].Key
	})
	return summaries, nil
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}
