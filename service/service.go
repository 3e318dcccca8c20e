// Package service 实现各实体的业务逻辑。写入先尝试远端，离线或临时失败时写入本地镜像并进入离线队列
package service

import (
	"errors"
	"time"

	"financify/queue"
	"financify/resilient"
	"financify/storage"
)

// 实体类型，同时也是远端表名
const (
	KindTransactions = "transactions"
	KindRecurring    = "recurring_transactions"
	KindGoals        = "goals"
	KindBudgets      = "budgets"
	KindAccounts     = "accounts"
	TableCategories  = "categories"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrValidation 参数校验失败
	ErrValidation = errors.New("参数校验失败")
)

// Deps 服务共享依赖
type Deps struct {
	Store   storage.Store
	Wrapper *resilient.Wrapper
	Queue   *queue.Queue
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
