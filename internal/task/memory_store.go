package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

// MemoryStore 以内存方式保存任务记录，用于单进程部署与测试。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

// Create 实现 Store 接口，分配新的任务身份。
func (m *MemoryStore) Create(_ context.Context, t *Task) (*Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	clone := cloneTask(t)
	clone.ID = uuid.NewString()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	m.tasks[clone.ID] = clone
	return cloneTask(clone), nil
}

// Update 原位替换任务内容，保持 ID 与 CreatedAt 不变。
func (m *MemoryStore) Update(_ context.Context, t *Task) (*Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "更新任务必须提供 ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[t.ID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := cloneTask(t)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now().Unix()
	m.tasks[clone.ID] = clone
	return cloneTask(clone), nil
}

// Get 返回任务副本，不存在时返回 ErrTaskNotFound。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// List 返回全部待执行任务，按创建时间升序。
func (m *MemoryStore) List(_ context.Context) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		results = append(results, cloneTask(t))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt < results[j].CreatedAt
	})
	return results, nil
}

// Delete 删除任务，幂等。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
