package repo

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"filedrop.local/internal/app/shortlink"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations 是短链业务的建表脚本，按文件名顺序执行。
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	readTimeout  = 1 * time.Second
	writeTimeout = 3 * time.Second
)

const selectColumns = `SELECT id::text, short_code, long_url, created_at, expires_at, visits FROM shortlinks`

type ShortlinksRepo struct {
	db    *pgxpool.Pool
	codes shortlink.CodeGenerator
}

func NewShortlinksRepo(db *pgxpool.Pool, codes shortlink.CodeGenerator) *ShortlinksRepo {
	if codes == nil {
		codes = shortlink.RandomCode{}
	}
	return &ShortlinksRepo{
		db:    db,
		codes: codes,
	}
}

/*
生成 ID 和短码，插入一条新短链（visits=0）。
数据库不可达时返回 PersistenceError，不在这里重试。
*/
func (s *ShortlinksRepo) Create(ctx context.Context, longURL string, expiresAt *time.Time) (shortlink.ShortLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	link := shortlink.ShortLink{
		ID:        uuid.NewString(),
		Code:      s.codes.NewCode(),
		LongURL:   longURL,
		ExpiresAt: expiresAt,
	}
	if err := s.db.
		QueryRow(dbctx, "INSERT INTO shortlinks (id, short_code, long_url, expires_at) VALUES ($1::uuid, $2, $3, $4) RETURNING created_at", link.ID, link.Code, link.LongURL, link.ExpiresAt).
		Scan(&link.CreatedAt); err != nil {
		slog.Error("shortlink create failed", "err", err)
		return shortlink.ShortLink{}, shortlink.NewPersistenceError("create", err)
	}
	return link, nil
}

// FindByCode 按短码精确查询。短码没有唯一约束，重复时取最早创建的一条，保证结果稳定。
func (s *ShortlinksRepo) FindByCode(ctx context.Context, code string) (shortlink.ShortLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	row := s.db.QueryRow(dbctx, selectColumns+" WHERE short_code=$1 ORDER BY created_at, id LIMIT 1", code)
	return scanOne(row, "find by code")
}

// FindByID 按内部 ID 查询。不是合法 UUID 的输入不可能命中，直接返回 ErrNotFound，省一次查询。
func (s *ShortlinksRepo) FindByID(ctx context.Context, id string) (shortlink.ShortLink, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return shortlink.ShortLink{}, shortlink.ErrNotFound
	}
	dbctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	row := s.db.QueryRow(dbctx, selectColumns+" WHERE id=$1::uuid", parsed.String())
	return scanOne(row, "find by id")
}

// IncrementVisits 用单条 UPDATE 完成自增，并发跳转不会丢计数。
func (s *ShortlinksRepo) IncrementVisits(ctx context.Context, id string) error {
	dbctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	tag, err := s.db.Exec(dbctx, "UPDATE shortlinks SET visits = visits + 1 WHERE id=$1::uuid", id)
	if err != nil {
		return shortlink.NewPersistenceError("increment visits", err)
	}
	if tag.RowsAffected() == 0 {
		return shortlink.ErrNotFound
	}
	return nil
}

// List 按 (created_at, id) 倒序做 keyset 分页，cur 为零值时从最新开始。调试页面用。
func (s *ShortlinksRepo) List(ctx context.Context, limit int, cur shortlink.Cursor) ([]shortlink.ShortLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var (
		at *time.Time
		id *string
	)
	if !cur.IsZero() {
		at, id = &cur.CreatedAt, &cur.ID
	}
	rows, err := s.db.Query(dbctx, selectColumns+
		" WHERE ($2::timestamptz IS NULL OR (created_at, id) < ($2::timestamptz, $3::uuid))"+
		" ORDER BY created_at DESC, id DESC LIMIT $1", limit, at, id)
	if err != nil {
		slog.Error("shortlink list failed", "err", err)
		return nil, shortlink.NewPersistenceError("list", err)
	}
	defer rows.Close()

	var result []shortlink.ShortLink
	for rows.Next() {
		var link shortlink.ShortLink
		if err := rows.Scan(&link.ID, &link.Code, &link.LongURL, &link.CreatedAt, &link.ExpiresAt, &link.Visits); err != nil {
			slog.Error("shortlink list scan failed", "err", err)
			return nil, shortlink.NewPersistenceError("list", err)
		}
		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		slog.Error("shortlink list rows failed", "err", err)
		return nil, shortlink.NewPersistenceError("list", err)
	}
	return result, nil
}

func scanOne(row pgx.Row, op string) (shortlink.ShortLink, error) {
	var link shortlink.ShortLink
	if err := row.Scan(&link.ID, &link.Code, &link.LongURL, &link.CreatedAt, &link.ExpiresAt, &link.Visits); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.ShortLink{}, shortlink.ErrNotFound
		}
		slog.Error("shortlink "+op+" failed", "err", err)
		return shortlink.ShortLink{}, shortlink.NewPersistenceError(op, err)
	}
	return link, nil
}

var (
	_ shortlink.Store  = (*ShortlinksRepo)(nil)
	_ shortlink.Lister = (*ShortlinksRepo)(nil)
)
