package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financify/models"
)

// GoalProgress 目标进度
type GoalProgress struct {
	models.Goal
	Percentage float64 `json:"percentage"`
	Remaining  float64 `json:"remaining"`
	DaysLeft   *int    `json:"days_left,omitempty"`
}

// GoalService 储蓄目标服务
type GoalService struct {
	deps  Deps
	store *entityStore[models.Goal, *models.Goal]
}

// NewGoalService 创建目标服务
func NewGoalService(deps Deps) *GoalService {
	return &GoalService{
		deps:  deps,
		store: newEntityStore[models.Goal](KindGoals, deps),
	}
}

func validateGoal(g *models.Goal) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return fmt.Errorf("%w: 目标名称不能为空", ErrValidation)
	}
	if g.TargetAmount <= 0 {
		return fmt.Errorf("%w: 目标金额必须大于 0", ErrValidation)
	}
	if g.CurrentAmount < 0 {
		return fmt.Errorf("%w: 当前金额不能为负数", ErrValidation)
	}
	if g.Status == "" {
		g.Status = models.GoalStatusActive
	}
	if !models.ValidGoalStatus(g.Status) {
		return fmt.Errorf("%w: 不支持的目标状态 %q", ErrValidation, g.Status)
	}
	return nil
}

// settle 进行中的目标达到目标金额后自动完成
func settle(g *models.Goal) {
	if g.Status == models.GoalStatusActive &&
		decimal.NewFromFloat(g.CurrentAmount).GreaterThanOrEqual(decimal.NewFromFloat(g.TargetAmount)) {
		g.Status = models.GoalStatusCompleted
	}
}

// Create 创建目标
func (s *GoalService) Create(ctx context.Context, userID uint, g *models.Goal) (*models.Goal, error) {
	if err := validateGoal(g); err != nil {
		return nil, err
	}
	settle(g)
	now := s.deps.now()
	g.ID = ""
	g.UserID = userID
	g.CreatedAt = now
	g.UpdatedAt = now
	return s.store.create(ctx, g)
}

// Get 获取目标
func (s *GoalService) Get(ctx context.Context, userID uint, id string) (*models.Goal, error) {
	return s.store.get(ctx, userID, id)
}

// List 目标列表，status 为空时返回全部
func (s *GoalService) List(ctx context.Context, userID uint, status string) []models.Goal {
	out := make([]models.Goal, 0)
	for _, g := range s.store.list(ctx, userID) {
		if status == "" || g.Status == status {
			out = append(out, g)
		}
	}
	sortBy(out, func(a, b *models.Goal) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// Update 更新目标
func (s *GoalService) Update(ctx context.Context, userID uint, id string, input *models.Goal) (*models.Goal, error) {
	existing, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateGoal(input); err != nil {
		return nil, err
	}
	settle(input)
	input.ID = existing.ID
	input.UserID = existing.UserID
	input.CreatedAt = existing.CreatedAt
	input.UpdatedAt = s.deps.now()
	return s.store.update(ctx, input)
}

// Delete 删除目标
func (s *GoalService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.store.get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.remove(ctx, userID, id)
}

// Contribute 向目标存入金额，负数表示取出；结果不能为负
func (s *GoalService) Contribute(ctx context.Context, userID uint, id string, amount float64) (*models.Goal, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: 金额不能为 0", ErrValidation)
	}
	g, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if g.Status == models.GoalStatusCancelled {
		return nil, fmt.Errorf("%w: 目标已取消", ErrValidation)
	}
	current := decimal.NewFromFloat(g.CurrentAmount).Add(decimal.NewFromFloat(amount))
	if current.IsNegative() {
		return nil, fmt.Errorf("%w: 取出金额超过当前金额", ErrValidation)
	}
	g.CurrentAmount = current.Round(2).InexactFloat64()
	settle(g)
	g.UpdatedAt = s.deps.now()
	return s.store.update(ctx, g)
}

// Progress 计算目标进度
func Progress(g models.Goal, now time.Time) GoalProgress {
	target := decimal.NewFromFloat(g.TargetAmount)
	current := decimal.NewFromFloat(g.CurrentAmount)

	p := GoalProgress{Goal: g}
	if target.IsPositive() {
		p.Percentage = current.Div(target).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	remaining := target.Sub(current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	p.Remaining = remaining.Round(2).InexactFloat64()
	if g.Deadline != nil {
		days := int(g.Deadline.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		p.DaysLeft = &days
	}
	return p
}

// ListProgress 目标及进度
func (s *GoalService) ListProgress(ctx context.Context, userID uint, status string) []GoalProgress {
	now := s.deps.now()
	goals := s.List(ctx, userID, status)
	out := make([]GoalProgress, 0, len(goals))
	for _, g := range goals {
		out = append(out, Progress(g, now))
	}
	return out
}
