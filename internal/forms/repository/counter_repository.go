package repository

import (
	"context"

	"gorm.io/gorm"
)

// CounterRepository 周期计数器仓库。序号分配必须走单条原子自增语句，
// 先读最大值再加一的写法在并发下会产生重复序号。
type CounterRepository struct {
	db *gorm.DB
}

// NewCounterRepository 创建计数器仓库
func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// IncrementAndGet 对指定周期的计数器原子加一并返回新值
func (r *CounterRepository) IncrementAndGet(ctx context.Context, period string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO sequence_counters (period, value, updated_at)
		VALUES (?, 1, NOW())
		ON CONFLICT (period)
		DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
		RETURNING value`, period).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
