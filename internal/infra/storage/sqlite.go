package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage persists credentials, orders and price points in SQLite.
// It implements domain.OrderStore, domain.PriceStore and domain.CredentialStore.
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a SQLite storage instance at the default user path.
func NewStorage() (*Storage, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB path: %w", err)
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	return NewStorageAt(dbPath)
}

// NewStorageAt creates a SQLite storage instance at an explicit path.
func NewStorageAt(dbPath string) (*Storage, error) {
	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.Credential{}, &domain.Order{}, &domain.PricePoint{}, &domain.AssetInfo{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "Prismaview", "data", "prismaview.db"), nil
}

// ======================================================================================
// Credential Operations
// ======================================================================================

// SaveCredential creates or updates a credential. A missing ID gets a
// generated UUID.
func (s *Storage) SaveCredential(c *domain.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return s.db.Save(c).Error
}

// GetCredential retrieves a credential by ID, revoked ones included.
func (s *Storage) GetCredential(id string) (*domain.Credential, error) {
	var cred domain.Credential
	err := s.db.First(&cred, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &cred, err
}

// RevokeCredential soft-deletes a credential by stamping RevokedAt.
// Revoking twice keeps the original timestamp.
func (s *Storage) RevokeCredential(id string) error {
	cred, err := s.GetCredential(id)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("credential not found: %s", id)
	}
	if cred.IsRevoked() {
		return nil
	}
	now := time.Now().UTC()
	cred.RevokedAt = &now
	return s.db.Save(cred).Error
}

// ======================================================================================
// Order Operations
// ======================================================================================

// InsertOrders inserts orders, skipping rows that collide on
// (order_id, exchange). Returns the number of rows actually written.
func (s *Storage) InsertOrders(orders []domain.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&orders)
	return int(res.RowsAffected), res.Error
}

// FindOrders returns orders matching the filter, oldest first.
func (s *Storage) FindOrders(filter domain.OrderFilter) ([]domain.Order, error) {
	q := s.db.Model(&domain.Order{})
	if filter.CredentialID != "" {
		q = q.Where("credential_id = ?", filter.CredentialID)
	}
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Exchange != "" {
		q = q.Where("exchange = ?", filter.Exchange)
	}

	var orders []domain.Order
	err := q.Order("timestamp ASC").Find(&orders).Error
	return orders, err
}

// OldestOrder returns the earliest synced order for a credential, nil when
// none exist.
func (s *Storage) OldestOrder(credentialID string) (*domain.Order, error) {
	return s.extremeOrder(credentialID, "timestamp ASC")
}

// NewestOrder returns the latest synced order for a credential, nil when
// none exist.
func (s *Storage) NewestOrder(credentialID string) (*domain.Order, error) {
	return s.extremeOrder(credentialID, "timestamp DESC")
}

func (s *Storage) extremeOrder(credentialID, order string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.Where("credential_id = ?", credentialID).Order(order).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// DistinctSymbols returns every distinct symbol across all synced orders.
func (s *Storage) DistinctSymbols() ([]string, error) {
	var symbols []string
	err := s.db.Model(&domain.Order{}).Distinct("symbol").Order("symbol ASC").Pluck("symbol", &symbols).Error
	return symbols, err
}

// ======================================================================================
// Price Operations
// ======================================================================================

// InsertPricePoints inserts candles, skipping rows that collide on
// (symbol, exchange, timestamp). Returns the number of rows actually written.
func (s *Storage) InsertPricePoints(points []domain.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&points)
	return int(res.RowsAffected), res.Error
}

// FindPricePoints returns candles matching the filter, oldest first.
func (s *Storage) FindPricePoints(filter domain.PriceFilter) ([]domain.PricePoint, error) {
	q := s.db.Model(&domain.PricePoint{})
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Exchange != "" {
		q = q.Where("exchange = ?", filter.Exchange)
	}
	if filter.Since > 0 {
		q = q.Where("timestamp >= ?", filter.Since)
	}

	var points []domain.PricePoint
	err := q.Order("timestamp ASC").Find(&points).Error
	return points, err
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates or updates cached asset metadata.
func (s *Storage) UpsertAsset(asset *domain.AssetInfo) error {
	return s.db.Save(asset).Error
}

// GetAsset retrieves asset metadata by symbol, nil when missing.
func (s *Storage) GetAsset(symbol string) (*domain.AssetInfo, error) {
	var asset domain.AssetInfo
	err := s.db.First(&asset, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &asset, err
}

// GetAllAssets retrieves all cached assets.
func (s *Storage) GetAllAssets() ([]domain.AssetInfo, error) {
	var assets []domain.AssetInfo
	err := s.db.Find(&assets).Error
	return assets, err
}
