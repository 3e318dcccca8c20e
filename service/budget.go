package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financify/models"
)

// BudgetStatus 预算在当前周期内的执行情况
type BudgetStatus struct {
	Budget      models.Budget `json:"budget"`
	Spent       float64       `json:"spent"`
	Remaining   float64       `json:"remaining"`
	Percentage  float64       `json:"percentage"`
	Alert       bool          `json:"alert"`
	Exceeded    bool          `json:"exceeded"`
	PeriodKey   string        `json:"period_key"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
}

// BudgetNotifier 预算预警通知
type BudgetNotifier interface {
	NotifyBudget(ctx context.Context, userID uint, status BudgetStatus) error
}

// BudgetService 预算服务
type BudgetService struct {
	deps     Deps
	store    *entityStore[models.Budget, *models.Budget]
	tx       *TransactionService
	notifier BudgetNotifier
}

// NewBudgetService 创建预算服务，notifier 可为 nil
func NewBudgetService(deps Deps, tx *TransactionService, notifier BudgetNotifier) *BudgetService {
	return &BudgetService{
		deps:     deps,
		store:    newEntityStore[models.Budget](KindBudgets, deps),
		tx:       tx,
		notifier: notifier,
	}
}

func validateBudget(b *models.Budget) error {
	b.Category = strings.TrimSpace(b.Category)
	if b.Category == "" {
		return fmt.Errorf("%w: 分类不能为空", ErrValidation)
	}
	if b.Limit <= 0 {
		return fmt.Errorf("%w: 预算金额必须大于 0", ErrValidation)
	}
	if b.Period == "" {
		b.Period = models.BudgetPeriodMonthly
	}
	if !models.ValidBudgetPeriod(b.Period) {
		return fmt.Errorf("%w: 不支持的预算周期 %q", ErrValidation, b.Period)
	}
	if b.AlertThreshold == 0 {
		b.AlertThreshold = models.DefaultAlertThreshold
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 100 {
		return fmt.Errorf("%w: 预警阈值必须在 0 到 100 之间", ErrValidation)
	}
	return nil
}

// Create 创建预算
func (s *BudgetService) Create(ctx context.Context, userID uint, b *models.Budget) (*models.Budget, error) {
	if err := validateBudget(b); err != nil {
		return nil, err
	}
	for _, existing := range s.store.list(ctx, userID) {
		if existing.Category == b.Category && existing.Period == b.Period {
			return nil, fmt.Errorf("%w: 分类 %s 已存在%s预算", ErrValidation, b.Category, b.Period)
		}
	}
	now := s.deps.now()
	b.ID = ""
	b.UserID = userID
	b.CurrentSpend = 0
	b.LastAlertPeriod = ""
	b.CreatedAt = now
	b.UpdatedAt = now
	return s.store.create(ctx, b)
}

// Get 获取预算
func (s *BudgetService) Get(ctx context.Context, userID uint, id string) (*models.Budget, error) {
	return s.store.get(ctx, userID, id)
}

// List 预算列表
func (s *BudgetService) List(ctx context.Context, userID uint) []models.Budget {
	items := s.store.list(ctx, userID)
	sortBy(items, func(a, b *models.Budget) bool {
		return a.Category < b.Category
	})
	return items
}

// Update 更新预算
func (s *BudgetService) Update(ctx context.Context, userID uint, id string, input *models.Budget) (*models.Budget, error) {
	existing, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateBudget(input); err != nil {
		return nil, err
	}
	input.ID = existing.ID
	input.UserID = existing.UserID
	input.CurrentSpend = existing.CurrentSpend
	input.LastAlertPeriod = existing.LastAlertPeriod
	input.CreatedAt = existing.CreatedAt
	input.UpdatedAt = s.deps.now()
	return s.store.update(ctx, input)
}

// Delete 删除预算
func (s *BudgetService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.store.get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.remove(ctx, userID, id)
}

// Evaluate 根据交易计算单个预算在 now 所在周期的执行情况
func Evaluate(b models.Budget, txs []models.Transaction, now time.Time) BudgetStatus {
	start, end, key := models.PeriodRange(b.Period, now)
	spent := decimal.Zero
	for _, t := range txs {
		if t.Type != models.TransactionTypeExpense || t.Category != b.Category {
			continue
		}
		if t.Date.Before(start) || !t.Date.Before(end) {
			continue
		}
		spent = spent.Add(decimal.NewFromFloat(t.Amount))
	}

	limit := decimal.NewFromFloat(b.Limit)
	st := BudgetStatus{
		Budget:      b,
		Spent:       spent.Round(2).InexactFloat64(),
		Remaining:   limit.Sub(spent).Round(2).InexactFloat64(),
		PeriodKey:   key,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if limit.IsPositive() {
		pct := spent.Div(limit).Mul(decimal.NewFromInt(100))
		st.Percentage = pct.Round(2).InexactFloat64()
		st.Alert = pct.GreaterThanOrEqual(decimal.NewFromFloat(b.AlertThreshold))
		st.Exceeded = pct.GreaterThanOrEqual(decimal.NewFromInt(100))
	}
	return st
}

// Status 计算全部预算的执行情况，CurrentSpend 只出现在返回值中，不写回。
// 进入预警的预算在每个周期只通知一次，通知成功后记录 LastAlertPeriod
func (s *BudgetService) Status(ctx context.Context, userID uint, now time.Time) []BudgetStatus {
	budgets := s.List(ctx, userID)
	txs := s.tx.List(ctx, userID, TransactionFilter{})

	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st := Evaluate(b, txs, now)
		if st.Alert && b.LastAlertPeriod != st.PeriodKey && s.notifier != nil {
			if err := s.notifier.NotifyBudget(ctx, userID, st); err != nil {
				log.Printf("发送预算预警失败 budget=%s: %v", b.ID, err)
			} else {
				b.LastAlertPeriod = st.PeriodKey
				b.UpdatedAt = s.deps.now()
				saved := b
				if _, err := s.store.update(ctx, &saved); err != nil {
					log.Printf("保存预算预警周期失败 budget=%s: %v", b.ID, err)
				}
			}
		}
		b.CurrentSpend = st.Spent
		st.Budget = b
		out = append(out, st)
	}
	return out
}

// EmailBudgetNotifier 通过邮件发送预算预警
type EmailBudgetNotifier struct {
	Email *EmailService
	// Lookup 查询用户邮箱
	Lookup func(userID uint) (string, error)
}

func (n *EmailBudgetNotifier) NotifyBudget(ctx context.Context, userID uint, st BudgetStatus) error {
	if n.Email == nil || !n.Email.Enabled() {
		return fmt.Errorf("邮件服务未启用")
	}
	to, err := n.Lookup(userID)
	if err != nil {
		return fmt.Errorf("查询用户邮箱失败: %w", err)
	}
	if to == "" {
		return fmt.Errorf("用户未设置邮箱")
	}
	return n.Email.SendBudgetAlertEmail(to, st)
}
