package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 多个实例同时启动时只有一个在跑迁移
const lockID int64 = 0x66696c6564726f70 // "filedrop"

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
}

// Up 执行 fsys（通常是 //go:embed 的 migrations 目录）里尚未执行的 .sql。
// 版本号是文件名，按文件名排序；每个文件一个事务。
func Up(ctx context.Context, db *pgxpool.Pool, fsys fs.FS) (*Result, error) {
	files, err := listSQLFiles(fsys)
	if err != nil {
		return nil, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockID)

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version    TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := appliedVersions(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, file := range files {
		version := baseName(file)
		if done[version] {
			res.SkippedFiles = append(res.SkippedFiles, version)
			continue
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return res, fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := pgx.BeginFunc(ctx, conn.Conn(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		}); err != nil {
			return res, fmt.Errorf("apply migration %s: %w", version, err)
		}
		slog.InfoContext(ctx, "migration applied", "version", version)
		res.AppliedFiles = append(res.AppliedFiles, version)
	}
	return res, nil
}

func appliedVersions(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("load schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("load schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

// listSQLFiles 递归找 .sql（不区分大小写），按文件名排序，目录层级不影响顺序
func listSQLFiles(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(path.Ext(p), ".sql") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.SortFunc(files, func(a, b string) int {
		return strings.Compare(baseName(a), baseName(b))
	})
	return files, nil
}

func baseName(p string) string { return path.Base(p) }
