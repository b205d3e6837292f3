package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-catcher/internal/delivery"
)

const (
	settingsBucketName = "settings"
	deliveryConfigKey  = "emailConfig"
)

// DB defines the interface for persisted settings
type DB interface {
	// LoadDeliveryConfig returns the saved delivery configuration, or the
	// default one when nothing has been saved yet
	LoadDeliveryConfig() (delivery.Config, error)

	// SaveDeliveryConfig replaces the saved delivery configuration
	SaveDeliveryConfig(cfg delivery.Config) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(settingsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// LoadDeliveryConfig reads the configuration stored under the emailConfig key.
// A saved value is returned verbatim, without filling defaults.
func (b *BoltDB) LoadDeliveryConfig() (delivery.Config, error) {
	cfg := delivery.DefaultConfig()
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(settingsBucketName)).Get([]byte(deliveryConfigKey))
		if data == nil {
			return nil
		}
		var saved delivery.Config
		if err := json.Unmarshal(data, &saved); err != nil {
			return fmt.Errorf("unmarshaling delivery config: %w", err)
		}
		cfg = saved
		return nil
	})
	if err != nil {
		return delivery.DefaultConfig(), err
	}
	return cfg, nil
}

// SaveDeliveryConfig writes the configuration as a single JSON value
func (b *BoltDB) SaveDeliveryConfig(cfg delivery.Config) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling delivery config: %w", err)
		}
		return tx.Bucket([]byte(settingsBucketName)).Put([]byte(deliveryConfigKey), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
