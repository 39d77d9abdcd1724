package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
)

// 默认分配参数
const (
	DefaultPrefix  = "SUB"
	defaultRetries = 3
	periodLayout   = "200601"
)

// Allocator 按日历周期分配人类可读的提交编号（PREFIX-YYYYMM-00001）。
// 唯一性由计数器仓库的原子自增保证；重试因失败产生的序号空洞可以接受，
// 重复不可接受。编号一经分配不可变更。
type Allocator struct {
	counters *repository.CounterRepository
	prefix   string
	retries  int
}

// NewAllocator 创建序号分配器。prefix 为空使用默认前缀。
func NewAllocator(counters *repository.CounterRepository, prefix string) *Allocator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Allocator{
		counters: counters,
		prefix:   prefix,
		retries:  defaultRetries,
	}
}

// Period 时间所属的分配周期（4位年 + 2位月）
func Period(t time.Time) string {
	return t.Format(periodLayout)
}

// Next 分配当前周期内的下一个编号
func (a *Allocator) Next(ctx context.Context, now time.Time) (string, error) {
	period := Period(now)

	for attempt := 1; attempt <= a.retries; attempt++ {
		value, err := a.counters.IncrementAndGet(ctx, period)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%s-%s-%05d", a.prefix, period, value), nil
	}

	return "", &engine.SequenceAllocationFailure{Period: period, Attempts: a.retries}
}
