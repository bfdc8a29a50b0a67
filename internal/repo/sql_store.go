package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tingly-dev/nodepack/pkg/fs"
)

// SQLStore persists the content tree in SQLite using GORM.
type SQLStore struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLStore opens or creates the content database at dbPath
func NewSQLStore(dbPath string) (*SQLStore, error) {
	if err := fs.EnsureParentDir(dbPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create content store directory: %w", err)
	}

	logrus.Debugf("Opening SQLite content store: %s", dbPath)
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open content database: %w", err)
	}

	if err := db.AutoMigrate(&NodeRecord{}, &PropertyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate content database: %w", err)
	}

	store := &SQLStore{db: db, dbPath: dbPath}
	if err := store.ensureRoot(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) ensureRoot() error {
	now := time.Now().UTC()
	root := NodeRecord{Path: "/", ParentPath: "", CreatedAt: now, UpdatedAt: now}
	return s.db.Where(NodeRecord{Path: "/"}).FirstOrCreate(&root).Error
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Resolve(ctx context.Context, p string) (*Node, error) {
	p = CleanPath(p)

	var rec NodeRecord
	err := s.db.WithContext(ctx).Where("path = ?", p).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NonExisting(p), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return NewNode(rec.Path), nil
}

func (s *SQLStore) Properties(ctx context.Context, n *Node) (Properties, error) {
	var recs []PropertyRecord
	if err := s.db.WithContext(ctx).
		Select("name", "type", "multiple", "encoded_values", "size").
		Where("node_path = ?", n.Path).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read properties of %s: %w", n.Path, err)
	}

	props := make(Properties, len(recs))
	for _, rec := range recs {
		prop := Property{Type: PropertyType(rec.Type), Multiple: rec.Multiple, Size: rec.Size}
		if prop.Type != TypeBinary && rec.Values != "" {
			var raws []json.RawMessage
			if err := json.Unmarshal([]byte(rec.Values), &raws); err != nil {
				return nil, fmt.Errorf("corrupt property %s@%s: %w", n.Path, rec.Name, err)
			}
			values, err := DecodeValues(prop.Type, raws)
			if err != nil {
				return nil, fmt.Errorf("corrupt property %s@%s: %w", n.Path, rec.Name, err)
			}
			prop.Values = values
		}
		props[rec.Name] = prop
	}
	return props, nil
}

func (s *SQLStore) Children(ctx context.Context, n *Node) ([]*Node, error) {
	var recs []NodeRecord
	if err := s.db.WithContext(ctx).
		Where("parent_path = ?", n.Path).
		Order("ordinal ASC, id ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", n.Path, err)
	}

	children := make([]*Node, 0, len(recs))
	for _, rec := range recs {
		children = append(children, NewNode(rec.Path))
	}
	return children, nil
}

func (s *SQLStore) OpenBinary(ctx context.Context, n *Node, name string) (io.ReadCloser, error) {
	var rec PropertyRecord
	err := s.db.WithContext(ctx).
		Where("node_path = ? AND name = ? AND type = ?", n.Path, name, string(TypeBinary)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s@%s", ErrNoBinary, n.Path, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read binary %s@%s: %w", n.Path, name, err)
	}
	return io.NopCloser(bytes.NewReader(rec.Data)), nil
}

// PutNode adds or replaces the node at p in a single transaction
func (s *SQLStore) PutNode(ctx context.Context, p string, props Properties) error {
	if !IsAbs(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	p = CleanPath(p)

	records := make([]PropertyRecord, 0, len(props))
	for _, name := range props.Keys() {
		rec, err := propertyRecord(p, name, props[name])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p != "/" {
			for _, a := range append(ancestors(p), p) {
				if err := ensureNode(tx, a); err != nil {
					return err
				}
			}
		}
		if err := tx.Where("node_path = ?", p).Delete(&PropertyRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear properties of %s: %w", p, err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to write properties of %s: %w", p, err)
		}
		return nil
	})
}

func ensureNode(tx *gorm.DB, p string) error {
	if p == "/" {
		return nil
	}

	var count int64
	if err := tx.Model(&NodeRecord{}).Where("path = ?", p).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	parent := ParentPath(p)
	var siblings int64
	if err := tx.Model(&NodeRecord{}).Where("parent_path = ?", parent).Count(&siblings).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := NodeRecord{
		Path:       p,
		ParentPath: parent,
		Ordinal:    int(siblings),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create node %s: %w", p, err)
	}
	return nil
}

func propertyRecord(p, name string, prop Property) (PropertyRecord, error) {
	rec := PropertyRecord{
		NodePath: p,
		Name:     name,
		Type:     string(prop.Type),
		Multiple: prop.Multiple,
	}

	if prop.Type == TypeBinary {
		data, ok := prop.Value().([]byte)
		if !ok {
			return rec, fmt.Errorf("%w: binary %s@%s wants []byte", ErrInvalidValue, p, name)
		}
		rec.Data = data
		rec.Size = int64(len(data))
		return rec, nil
	}

	values, err := EncodeValues(prop)
	if err != nil {
		return rec, fmt.Errorf("property %s@%s: %w", p, name, err)
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return rec, fmt.Errorf("property %s@%s: %w", p, name, err)
	}
	rec.Values = string(raw)
	return rec, nil
}

var _ ReadWriteStore = (*SQLStore)(nil)
