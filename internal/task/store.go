package task

import "context"

// Store 抽象任务记录的持久化接口，是幂等与恢复语义的承载点。
//
//   - Create 分配新身份并写入 CreatedAt；
//   - Update 保持 ID 与 CreatedAt 不变，整体替换其余字段；
//   - Get 对不存在的 id 返回 ErrTaskNotFound；
//   - Delete 幂等，删除不存在的 id 不是错误。
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Update(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
