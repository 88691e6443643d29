// Package storage provides the persistent prediction audit log.
// It uses BoltDB as the underlying storage engine to store every
// served ensemble result keyed by company and timestamp, so decisions
// can be reviewed and compared against outcomes later.
//
// The package provides thread-safe operations for storing and
// retrieving time-series records with efficient range queries.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"campscore/internal/ensemble"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions" // Bucket name for audit records

// PredictionRecord is one audited prediction: the served result plus
// the request context needed to replay it.
type PredictionRecord struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Profile   string          `json:"profile"`
	Result    ensemble.Result `json:"result"`
	Ts        time.Time       `json:"ts"`
}

// Store provides persistent storage for prediction audit records.
type Store struct {
	db *bbolt.DB
}

// New creates a new storage instance rooted at the data path.
// Returns an error if the database cannot be opened or the bucket
// cannot be created.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "campscore-audit.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction appends an audit record. The key format is
// "companyID_timestamp" for efficient time-range queries.
func (s *Store) StorePrediction(rec PredictionRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}

		key := fmt.Sprintf("%s_%d", rec.CompanyID, rec.Ts.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetPredictions retrieves audit records for a company within a time
// range, inclusive of both ends, ordered by timestamp.
func (s *Store) GetPredictions(companyID string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		prefix := []byte(companyID + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", companyID, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", companyID, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}

		return nil
	})

	return records, err
}
