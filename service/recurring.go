package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"financify/models"
)

// maxGeneratePerRun 单次生成上限，防止起始日期过早时一次写入过多记录
const maxGeneratePerRun = 500

// RecurringService 周期交易服务
type RecurringService struct {
	deps  Deps
	store *entityStore[models.RecurringTransaction, *models.RecurringTransaction]
	tx    *TransactionService
}

// NewRecurringService 创建周期交易服务
func NewRecurringService(deps Deps, tx *TransactionService) *RecurringService {
	return &RecurringService{
		deps:  deps,
		store: newEntityStore[models.RecurringTransaction](KindRecurring, deps),
		tx:    tx,
	}
}

func validateRecurring(r *models.RecurringTransaction) error {
	r.Category = strings.TrimSpace(r.Category)
	if !models.ValidTransactionType(r.Type) {
		return fmt.Errorf("%w: 交易类型必须为 income 或 expense", ErrValidation)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: 金额必须大于 0", ErrValidation)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: 分类不能为空", ErrValidation)
	}
	if !models.ValidFrequency(r.Frequency) {
		return fmt.Errorf("%w: 不支持的频率 %q", ErrValidation, r.Frequency)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: 开始日期不能为空", ErrValidation)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: 结束日期不能早于开始日期", ErrValidation)
	}
	if r.MaxOccurrences < 0 {
		return fmt.Errorf("%w: 最大次数不能为负数", ErrValidation)
	}
	return nil
}

// Create 创建周期交易，首次发生时间为开始日期
func (s *RecurringService) Create(ctx context.Context, userID uint, r *models.RecurringTransaction) (*models.RecurringTransaction, error) {
	if err := validateRecurring(r); err != nil {
		return nil, err
	}
	now := s.deps.now()
	r.ID = ""
	r.UserID = userID
	r.NextOccurrence = r.StartDate
	r.GeneratedCount = 0
	r.Active = true
	r.CreatedAt = now
	r.UpdatedAt = now
	return s.store.create(ctx, r)
}

// Get 获取单条周期交易
func (s *RecurringService) Get(ctx context.Context, userID uint, id string) (*models.RecurringTransaction, error) {
	return s.store.get(ctx, userID, id)
}

// List 周期交易列表，按下次发生时间排序
func (s *RecurringService) List(ctx context.Context, userID uint) []models.RecurringTransaction {
	items := s.store.list(ctx, userID)
	sortBy(items, func(a, b *models.RecurringTransaction) bool {
		return a.NextOccurrence.Before(b.NextOccurrence)
	})
	return items
}

// Update 更新周期交易。已生成次数保留；开始日期变化时重新计算下次发生时间
func (s *RecurringService) Update(ctx context.Context, userID uint, id string, input *models.RecurringTransaction) (*models.RecurringTransaction, error) {
	existing, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateRecurring(input); err != nil {
		return nil, err
	}
	input.ID = existing.ID
	input.UserID = existing.UserID
	input.GeneratedCount = existing.GeneratedCount
	input.CreatedAt = existing.CreatedAt
	input.NextOccurrence = existing.NextOccurrence
	if !input.StartDate.Equal(existing.StartDate) {
		input.NextOccurrence = input.StartDate
	}
	input.UpdatedAt = s.deps.now()
	return s.store.update(ctx, input)
}

// Delete 删除周期交易，已生成的交易保留
func (s *RecurringService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.store.get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.remove(ctx, userID, id)
}

// Generate 为发生时间不晚于 now 的每一期生成交易，并推进下次发生时间
func (s *RecurringService) Generate(ctx context.Context, userID uint, id string, now time.Time) ([]models.Transaction, error) {
	r, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, r, now)
}

func (s *RecurringService) generate(ctx context.Context, r *models.RecurringTransaction, now time.Time) ([]models.Transaction, error) {
	created := make([]models.Transaction, 0)
	if !r.Active {
		return created, nil
	}

	var genErr error
	for !r.Exhausted() && !r.NextOccurrence.After(now) && len(created) < maxGeneratePerRun {
		t := &models.Transaction{
			Type:        r.Type,
			Amount:      r.Amount,
			Date:        r.NextOccurrence,
			Category:    r.Category,
			Description: r.Description,
			AccountID:   r.AccountID,
			RecurringID: r.ID,
		}
		out, err := s.tx.Create(ctx, r.UserID, t)
		if err != nil {
			genErr = fmt.Errorf("生成周期交易失败: %w", err)
			break
		}
		created = append(created, *out)
		r.GeneratedCount++
		r.NextOccurrence = models.Advance(r.NextOccurrence, r.Frequency, r.StartDate.Day())
	}

	exhausted := r.Exhausted()
	if len(created) == 0 && !exhausted {
		return created, genErr
	}
	if exhausted {
		r.Active = false
	}
	r.UpdatedAt = s.deps.now()
	if _, err := s.store.update(ctx, r); err != nil {
		log.Printf("更新周期交易进度失败 id=%s: %v", r.ID, err)
		if genErr == nil {
			genErr = err
		}
	}
	return created, genErr
}

// GenerateDue 为用户全部启用的周期交易生成到期交易
func (s *RecurringService) GenerateDue(ctx context.Context, userID uint, now time.Time) ([]models.Transaction, error) {
	all := make([]models.Transaction, 0)
	for _, r := range s.store.list(ctx, userID) {
		if !r.Active {
			continue
		}
		created, err := s.generate(ctx, &r, now)
		all = append(all, created...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
