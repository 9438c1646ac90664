package store

import (
	"time"

	"github.com/auto-dns/dns-record-sync/internal/domain"
)

// sqlRecord is the gorm row. Seq is the insertion order.
type sqlRecord struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"column:record_id;size:64;uniqueIndex"`
	Domain    string `gorm:"size:255;index"`
	Type      string `gorm:"size:16;index"`
	Value     string `gorm:"type:text"`
	TTL       int
	Owner     string `gorm:"size:128;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sqlRecord) TableName() string {
	return "dns_records"
}

func toSQLRecord(rec domain.Record) sqlRecord {
	return sqlRecord{
		ID:        rec.ID,
		Domain:    rec.Domain,
		Type:      string(rec.Type),
		Value:     rec.Value,
		TTL:       rec.TTL,
		Owner:     rec.Owner,
		CreatedAt: rec.Created,
		UpdatedAt: rec.Updated,
	}
}

func (r sqlRecord) toDomain() domain.Record {
	return domain.Record{
		ID:      r.ID,
		Domain:  r.Domain,
		Type:    domain.RecordKind(r.Type),
		Value:   r.Value,
		TTL:     r.TTL,
		Owner:   r.Owner,
		Created: r.CreatedAt,
		Updated: r.UpdatedAt,
	}
}
