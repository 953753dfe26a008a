package journal

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/model"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PGOption defines the Postgres connection for the event store.
type PGOption struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
}

// EventRecord is the relational shape of one journal event.
type EventRecord struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Seq     uint64 `gorm:"index"`
	TsNano  int64  `gorm:"index"`
	Type    string `gorm:"size:32;index"`
	Details string
	OrderID string `gorm:"size:64"`
}

func (EventRecord) TableName() string { return "session_events" }

// PGStore mirrors the event stream into Postgres for offline analysis.
// It is best-effort: the file journal stays the source of truth.
type PGStore struct {
	db *gorm.DB
}

// OpenPGStore connects and migrates the events table.
func OpenPGStore(opt PGOption) (*PGStore, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate session_events")
	}
	return &PGStore{db: db}, nil
}

// Append inserts one event.
func (s *PGStore) Append(ctx context.Context, event model.Event) error {
	record := EventRecord{
		Seq:     event.Seq,
		TsNano:  event.TsNano,
		Type:    event.Type.String(),
		Details: event.Details,
		OrderID: event.OrderID,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return errors.Wrap(err, "insert event")
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PGOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}
