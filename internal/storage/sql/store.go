// Package sql 提供 domain.Store 的关系数据库实现（MySQL 和 PostgreSQL）。
package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	driver_mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"postdrop/backend/internal/domain"
)

// Store SQL 数据库存储实现。
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB // 仅用于结构迁移
	driverName string   // "mysql" 或 "postgres"
}

// NewStore 创建 SQL 存储并执行结构迁移。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行结构迁移（GORM AutoMigrate）。
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.User{},
		&domain.Mailbox{},
		&domain.Email{},
		&domain.Setting{},
	)
}

// q 把 "?" 占位符按驱动改写（PostgreSQL 需要 $n）。
func (s *Store) q(query string) string {
	if s.driverName != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation 判定唯一约束冲突（两种驱动的错误类型不同）。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var mysqlErr *driver_mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

var _ domain.Store = (*Store)(nil)
