package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

// MySQLStoreConfig 描述 MySQL 任务存储的连接参数。
type MySQLStoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 使用 MySQL 持久化任务记录。steps 与代币描述以 JSON 列
// 存储，任务身份由应用侧生成的 UUID 承担。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(ctx context.Context, cfg MySQLStoreConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS tasks (
        id VARCHAR(36) PRIMARY KEY,
        description TEXT NOT NULL,
        steps JSON NOT NULL,
        from_token JSON NOT NULL,
        to_token JSON NOT NULL,
        from_amount VARCHAR(78) NOT NULL,
        output_amount VARCHAR(78) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 tasks 表失败: %w", err)
	}
	return nil
}

// Create 写入一条新任务并分配 UUID。
func (s *MySQLStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	clone := cloneTask(t)
	clone.ID = uuid.NewString()
	now := time.Now().Unix()
	clone.CreatedAt = now
	clone.UpdatedAt = now

	steps, fromToken, toToken, err := encodeColumns(clone)
	if err != nil {
		return nil, err
	}

	const stmt = `INSERT INTO tasks
        (id, description, steps, from_token, to_token, from_amount, output_amount, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		clone.ID, clone.Description, steps, fromToken, toToken,
		clone.FromAmount, clone.OutputAmount, clone.CreatedAt, clone.UpdatedAt,
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "写入任务失败")
	}
	return clone, nil
}

// Update 原位替换任务内容，保持 ID 与 created_at 不变。
func (s *MySQLStore) Update(ctx context.Context, t *Task) (*Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "更新任务必须提供 ID")
	}

	clone := cloneTask(t)
	clone.UpdatedAt = time.Now().Unix()

	steps, fromToken, toToken, err := encodeColumns(clone)
	if err != nil {
		return nil, err
	}

	const stmt = `UPDATE tasks SET
        description = ?, steps = ?, from_token = ?, to_token = ?,
        from_amount = ?, output_amount = ?, updated_at = ?
        WHERE id = ?`
	result, err := s.db.ExecContext(ctx, stmt,
		clone.Description, steps, fromToken, toToken,
		clone.FromAmount, clone.OutputAmount, clone.UpdatedAt, clone.ID,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "更新任务失败")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// UPDATE 没有命中也可能是内容完全相同，回查确认。
		if _, getErr := s.Get(ctx, clone.ID); getErr != nil {
			return nil, getErr
		}
	}

	stored, err := s.Get(ctx, clone.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Get 返回任务，不存在时返回 ErrTaskNotFound。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	const query = `SELECT id, description, steps, from_token, to_token,
        from_amount, output_amount, created_at, updated_at
        FROM tasks WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	t, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "查询任务失败")
	}
	return t, nil
}

// List 返回全部待执行任务，按创建时间升序。
func (s *MySQLStore) List(ctx context.Context) ([]*Task, error) {
	const query = `SELECT id, description, steps, from_token, to_token,
        from_amount, output_amount, created_at, updated_at
        FROM tasks ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	var results []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "解析任务记录失败")
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStoreFailure, err, "遍历任务记录失败")
	}
	return results, nil
}

// Delete 删除任务，幂等。
func (s *MySQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return xerrors.Wrap(xerrors.CodeStoreFailure, err, "删除任务失败")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t         Task
		steps     []byte
		fromToken []byte
		toToken   []byte
	)
	if err := row.Scan(&t.ID, &t.Description, &steps, &fromToken, &toToken,
		&t.FromAmount, &t.OutputAmount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &t.Steps); err != nil {
		return nil, fmt.Errorf("解析 steps 列失败: %w", err)
	}
	if err := json.Unmarshal(fromToken, &t.FromToken); err != nil {
		return nil, fmt.Errorf("解析 from_token 列失败: %w", err)
	}
	if err := json.Unmarshal(toToken, &t.ToToken); err != nil {
		return nil, fmt.Errorf("解析 to_token 列失败: %w", err)
	}
	return &t, nil
}

func encodeColumns(t *Task) (steps, fromToken, toToken []byte, err error) {
	if steps, err = json.Marshal(t.Steps); err != nil {
		return nil, nil, nil, fmt.Errorf("序列化 steps 失败: %w", err)
	}
	if fromToken, err = json.Marshal(t.FromToken); err != nil {
		return nil, nil, nil, fmt.Errorf("序列化 from_token 失败: %w", err)
	}
	if toToken, err = json.Marshal(t.ToToken); err != nil {
		return nil, nil, nil, fmt.Errorf("序列化 to_token 失败: %w", err)
	}
	return steps, fromToken, toToken, nil
}

var _ Store = (*MySQLStore)(nil)
