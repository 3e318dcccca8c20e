package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"financify/models"
)

// DefaultCurrency 默认币种
const DefaultCurrency = "CNY"

// AccountBalance 账户余额
type AccountBalance struct {
	models.Account
	Balance          float64 `json:"balance"`
	TotalIncome      float64 `json:"total_income"`
	TotalExpense     float64 `json:"total_expense"`
	TransactionCount int     `json:"transaction_count"`
}

// AccountService 账户服务
type AccountService struct {
	deps  Deps
	store *entityStore[models.Account, *models.Account]
	tx    *TransactionService
}

// NewAccountService 创建账户服务
func NewAccountService(deps Deps, tx *TransactionService) *AccountService {
	return &AccountService{
		deps:  deps,
		store: newEntityStore[models.Account](KindAccounts, deps),
		tx:    tx,
	}
}

func validateAccount(a *models.Account) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return fmt.Errorf("%w: 账户名称不能为空", ErrValidation)
	}
	if a.Type == "" {
		a.Type = "cash"
	}
	if a.Currency == "" {
		a.Currency = DefaultCurrency
	}
	a.Currency = strings.ToUpper(a.Currency)
	return nil
}

// Create 创建账户
func (s *AccountService) Create(ctx context.Context, userID uint, a *models.Account) (*models.Account, error) {
	if err := validateAccount(a); err != nil {
		return nil, err
	}
	now := s.deps.now()
	a.ID = ""
	a.UserID = userID
	a.CreatedAt = now
	a.UpdatedAt = now
	return s.store.create(ctx, a)
}

// Get 获取账户
func (s *AccountService) Get(ctx context.Context, userID uint, id string) (*models.Account, error) {
	return s.store.get(ctx, userID, id)
}

// List 账户列表，includeArchived 为 false 时不含已归档账户
func (s *AccountService) List(ctx context.Context, userID uint, includeArchived bool) []models.Account {
	out := make([]models.Account, 0)
	for _, a := range s.store.list(ctx, userID) {
		if includeArchived || !a.Archived {
			out = append(out, a)
		}
	}
	sortBy(out, func(a, b *models.Account) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// Update 更新账户
func (s *AccountService) Update(ctx context.Context, userID uint, id string, input *models.Account) (*models.Account, error) {
	existing, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateAccount(input); err != nil {
		return nil, err
	}
	input.ID = existing.ID
	input.UserID = existing.UserID
	input.CreatedAt = existing.CreatedAt
	input.UpdatedAt = s.deps.now()
	return s.store.update(ctx, input)
}

// Delete 删除账户，关联交易保留
func (s *AccountService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.store.get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.remove(ctx, userID, id)
}

// computeBalance 余额 = 初始余额 + 收入 - 支出
func computeBalance(a models.Account, txs []models.Transaction) AccountBalance {
	income, expense := decimal.Zero, decimal.Zero
	count := 0
	for _, t := range txs {
		if t.AccountID != a.ID {
			continue
		}
		count++
		amount := decimal.NewFromFloat(t.Amount)
		if t.Type == models.TransactionTypeIncome {
			income = income.Add(amount)
		} else {
			expense = expense.Add(amount)
		}
	}
	balance := decimal.NewFromFloat(a.InitialBalance).Add(income).Sub(expense)
	return AccountBalance{
		Account:          a,
		Balance:          balance.Round(2).InexactFloat64(),
		TotalIncome:      income.Round(2).InexactFloat64(),
		TotalExpense:     expense.Round(2).InexactFloat64(),
		TransactionCount: count,
	}
}

// Balance 单个账户余额
func (s *AccountService) Balance(ctx context.Context, userID uint, id string) (*AccountBalance, error) {
	a, err := s.store.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	b := computeBalance(*a, s.tx.List(ctx, userID, TransactionFilter{AccountID: a.ID}))
	return &b, nil
}

// Balances 全部未归档账户余额
func (s *AccountService) Balances(ctx context.Context, userID uint) []AccountBalance {
	accounts := s.List(ctx, userID, false)
	txs := s.tx.List(ctx, userID, TransactionFilter{})
	out := make([]AccountBalance, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, computeBalance(a, txs))
	}
	return out
}
