// Package history keeps the results of past runs for regression tracking.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"

	"ahbverify/internal/report"
)

var runsBucket = []byte("Runs")

var ErrNotFound = errors.New("run not found")

// Store is a bolt database of run records keyed by run ID.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	err = db.Update(func(btx *bolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising history %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record stores the result of a run.
func (s *Store) Record(r *report.Result) error {
	rec := r.Record()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(runsBucket).Put([]byte(rec.ID), b)
	})
}

// Get returns the record of one run.
func (s *Store) Get(id string) (report.Record, error) {
	var rec report.Record
	err := s.db.View(func(btx *bolt.Tx) error {
		b := btx.Bucket(runsBucket).Get([]byte(id))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(b, &rec)
	})
	return rec, err
}

// List returns every record, oldest first. A non empty scenario keeps only
// the runs of that scenario.
func (s *Store) List(scenario string) ([]report.Record, error) {
	var out []report.Record
	err := s.db.View(func(btx *bolt.Tx) error {
		return btx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
			var rec report.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("run %s: %w", k, err)
			}
			if scenario == "" || rec.Scenario == scenario {
				out = append(out, rec)
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out, err
}

// Prune deletes all but the newest keep records and returns how many were
// removed.
func (s *Store) Prune(keep int) (int, error) {
	recs, err := s.List("")
	if err != nil {
		return 0, err
	}
	if len(recs) <= keep {
		return 0, nil
	}
	drop := recs[:len(recs)-keep]
	err = s.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(runsBucket)
		for _, rec := range drop {
			if err := b.Delete([]byte(rec.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(drop), nil
}
