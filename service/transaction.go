package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"financify/models"
)

// TransactionFilter 交易筛选条件，零值表示不筛选；时间区间为闭区间
type TransactionFilter struct {
	Type      string
	Category  string
	AccountID string
	Start     time.Time
	End       time.Time
}

func (f TransactionFilter) match(t *models.Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if !f.Start.IsZero() && t.Date.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && t.Date.After(f.End) {
		return false
	}
	return true
}

// TransactionService 交易服务
type TransactionService struct {
	deps  Deps
	store *entityStore[models.Transaction, *models.Transaction]
}

// NewTransactionService 创建交易服务
func NewTransactionService(deps Deps) *TransactionService {
	return &TransactionService{
		deps:  deps,
		store: newEntityStore[models.Transaction](KindTransactions, deps),
	}
}

func validateTransaction(t *models.Transaction) error {
	t.Category = strings.TrimSpace(t.Category)
	if !models.ValidTransactionType(t.Type) {
		return fmt.Errorf("%w: 交易类型必须为 income 或 expense", ErrValidation)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: 金额必须大于 0", ErrValidation)
	}
	if t.Category == "" {
		return fmt.Errorf("%w: 分类不能为空", ErrValidation)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: 日期不能为空", ErrValidation)
	}
	return nil
}

// Create 创建交易
func (s *TransactionService) Create(ctx context.Context, userID uint, t *models.Transaction) (*models.Transaction, error) {
	if err := validateTransaction(t); err != nil {
		return nil, err
	}
	now := s.deps.now()
	t.ID = ""
	t.UserID = userID
	t.CreatedAt = now
	t.UpdatedAt = now
	return s.store.create(ctx, t)
}

// Get 获取单条交易
func (s *TransactionService) Get(ctx context.Context, userID uint, id string) (*models.Transaction, error) {
	return s.store.get(ctx, userID, id)
}

// List 按日期倒序返回符合条件的交易
func (s *TransactionService) List(ctx context.Context, userID uint, filter TransactionFilter) []models.Transaction {
	out := make([]models.Transaction, 0)
	for _, t := range s.store.list(ctx, userID) {
		if filter.match(&t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Update 更新交易。ID、用户和创建时间保持不变
func (s *TransactionService) Update(ctx context.Context, userID uint, id string, input *models.Transaction) (*models.Transaction, error) {
	existing, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransaction(input); err != nil {
		return nil, err
	}
	input.ID = existing.ID
	input.UserID = existing.UserID
	input.CreatedAt = existing.CreatedAt
	input.UpdatedAt = s.deps.now()
	return s.store.update(ctx, input)
}

// Delete 删除交易
func (s *TransactionService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.store.get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.remove(ctx, userID, id)
}
