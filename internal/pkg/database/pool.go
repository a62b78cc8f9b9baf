// Package database 是基于 database/sql 的 MySQL 连接池封装。
// 每次调用获取一个连接，在事务中执行，然后无论成功失败都归还连接。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrAcquireTimeout 表示在 AcquireTimeout 内没有拿到空闲连接。
var ErrAcquireTimeout = errors.New("database: timed out waiting for a pooled connection")

type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	Charset         string        `yaml:"charset"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
}

// DSN 生成 go-sql-driver/mysql 的连接串。
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.Local
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc.Params = map[string]string{"charset": charset}
	return mc.FormatDSN()
}

// Scanner 是 *sql.Row 和 *sql.Rows 共有的读取接口。
type Scanner interface {
	Scan(dest ...any) error
}

// Result 是一次写操作的结果。
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Pool 持有进程级的连接池，启动时创建，关停时释放，通过构造函数注入到 DAO。
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// Open 按配置创建连接池并校验连通性。
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	p := NewPool(db, cfg.AcquireTimeout)
	if err := p.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
		Str("db", cfg.Name).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("mysql pool initialized")
	return p, nil
}

// NewPool 包装一个已有的 *sql.DB。acquireTimeout 为 0 表示只受调用方 ctx 约束。
func NewPool(db *sql.DB, acquireTimeout time.Duration) *Pool {
	return &Pool{db: db, acquireTimeout: acquireTimeout}
}

func (p *Pool) DB() *sql.DB { return p.db }

func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return errors.Wrap(conn.PingContext(ctx), "ping mysql")
}

func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrAcquireTimeout
		}
		return nil, errors.Wrap(err, "acquire connection")
	}
	return conn, nil
}

// WithTx 在一个连接上开启事务执行 fn，fn 返回错误时回滚，否则提交。
// 连接在所有路径上都会归还到池中。
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zerolog.Ctx(ctx).Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// Exec 在事务中执行一条写语句。
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	var res Result
	err := p.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res.RowsAffected, _ = r.RowsAffected()
		res.LastInsertID, _ = r.LastInsertId()
		return nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("sql", query).Msg("exec failed")
		return Result{}, errors.Wrap(err, "exec")
	}
	return res, nil
}

// Query 执行查询并用 scan 把每一行转换成 T。
func Query[T any](ctx context.Context, p *Pool, query string, args []any, scan func(Scanner) (T, error)) ([]T, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("sql", query).Msg("query failed")
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("sql", query).Msg("iterate rows failed")
		return nil, errors.Wrap(err, "iterate rows")
	}
	return out, nil
}

// QueryOne 返回第一行，没有结果时 found 为 false。
func QueryOne[T any](ctx context.Context, p *Pool, query string, args []any, scan func(Scanner) (T, error)) (item T, found bool, err error) {
	items, err := Query(ctx, p, query, args, scan)
	if err != nil || len(items) == 0 {
		return item, false, err
	}
	return items[0], true, nil
}

// Count 执行一条返回单个整数的查询，例如 SELECT COUNT(*)。
func Count(ctx context.Context, p *Pool, query string, args []any) (int64, error) {
	n, _, err := QueryOne(ctx, p, query, args, func(s Scanner) (int64, error) {
		var v int64
		return v, s.Scan(&v)
	})
	return n, err
}
