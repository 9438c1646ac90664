package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/logger"
	"github.com/auto-dns/dns-record-sync/internal/util"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLStore persists records through gorm.
type SQLStore struct {
	db        *gorm.DB
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

func dialector(cfg *config.SQLConfig) (gorm.Dialector, error) {
	switch cfg.Dialect {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", cfg.Dialect)
	}
}

// OpenSQLStore connects to the configured database and migrates the schema when enabled.
func OpenSQLStore(cfg *config.SQLConfig, log zerolog.Logger) (*SQLStore, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.NewGormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Dialect, err)
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&sqlRecord{}); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return NewSQLStore(db, cfg.BatchSize, log), nil
}

func NewSQLStore(db *gorm.DB, batchSize int, log zerolog.Logger) *SQLStore {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SQLStore{
		db:        db,
		batchSize: batchSize,
		logger:    log.With().Str("component", "sql_store").Logger(),
		now:       time.Now,
	}
}

func (s *SQLStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	out, err := s.CreateMany(ctx, []domain.Record{rec})
	if err != nil {
		return domain.Record{}, err
	}
	return out[0], nil
}

// CreateMany inserts every record inside one transaction.
func (s *SQLStore) CreateMany(ctx context.Context, recs []domain.Record) ([]domain.Record, error) {
	if len(recs) == 0 {
		return []domain.Record{}, nil
	}
	now := s.now()
	prepared := util.Map(recs, func(r domain.Record) domain.Record { return prepare(r, now) })
	rows := util.Map(prepared, toSQLRecord)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := util.Map(prepared, func(r domain.Record) string { return r.ID })
		var existing int64
		if err := tx.Model(&sqlRecord{}).Where("record_id IN ?", ids).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyExists
		}
		return tx.CreateInBatches(&rows, s.batchSize).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return prepared, nil
}

func (s *SQLStore) Get(ctx context.Context, id, owner string) (domain.Record, error) {
	row, err := s.find(s.db.WithContext(ctx), id, owner)
	if err != nil {
		return domain.Record{}, err
	}
	return row.toDomain(), nil
}

func (s *SQLStore) find(tx *gorm.DB, id, owner string) (sqlRecord, error) {
	var row sqlRecord
	err := tx.Where("record_id = ? AND owner = ?", id, owner).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sqlRecord{}, ErrNotFound
	}
	return row, err
}

func (s *SQLStore) Update(ctx context.Context, id, owner string, patch domain.RecordPatch) (domain.Record, error) {
	var updated domain.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, id, owner)
		if err != nil {
			return err
		}
		rec := patch.Apply(row.toDomain())
		rec.Updated = s.now()
		next := toSQLRecord(rec)
		next.Seq = row.Seq
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return updated, nil
}

func (s *SQLStore) Delete(ctx context.Context, id, owner string) error {
	res := s.db.WithContext(ctx).Where("record_id = ? AND owner = ?", id, owner).Delete(&sqlRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, owner string, filter Filter) ([]domain.Record, error) {
	if err := validOrder(filter); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("owner = ?", owner)
	if filter.Domain != "" {
		q = q.Where("LOWER(domain) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(filter.Domain))+"%")
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	column := "seq"
	switch filter.OrderBy {
	case OrderDomain:
		column = "domain"
	case OrderType:
		column = "type"
	case OrderTTL:
		column = "ttl"
	}
	if filter.Desc {
		column += " DESC"
	}
	q = q.Order(column)
	if filter.OrderBy != OrderInsertion {
		q = q.Order("seq")
	}

	var rows []sqlRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return util.Map(rows, sqlRecord.toDomain), nil
}

type fieldCount struct {
	Value string
	Count int
}

func (s *SQLStore) AggregateByField(ctx context.Context, owner, field string) (map[string]int, error) {
	switch field {
	case FieldType, FieldDomain:
		var counts []fieldCount
		err := s.db.WithContext(ctx).Model(&sqlRecord{}).
			Select(field+" AS value, COUNT(*) AS count").
			Where("owner = ?", owner).
			Group(field).
			Scan(&counts).Error
		if err != nil {
			return nil, err
		}
		out := make(map[string]int, len(counts))
		for _, c := range counts {
			out[c.Value] = c.Count
		}
		return out, nil
	case FieldDomainSuffix:
		recs, err := s.List(ctx, owner, Filter{})
		if err != nil {
			return nil, err
		}
		return aggregate(field, recs)
	default:
		return nil, fmt.Errorf("unsupported aggregation field %q", field)
	}
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
