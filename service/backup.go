package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"financify/models"
)

// BackupVersion 当前备份格式版本
const BackupVersion = 1

// ErrInvalidBackup 备份内容无效
var ErrInvalidBackup = errors.New("备份数据无效")

// Backup 完整数据备份
type Backup struct {
	Version      int                           `json:"version"`
	ExportedAt   time.Time                     `json:"exported_at"`
	Transactions []models.Transaction          `json:"transactions"`
	Recurring    []models.RecurringTransaction `json:"recurring_transactions"`
	Goals        []models.Goal                 `json:"goals"`
	Budgets      []models.Budget               `json:"budgets"`
	Accounts     []models.Account              `json:"accounts"`
}

// ImportResult 导入数量
type ImportResult struct {
	Transactions int `json:"transactions"`
	Recurring    int `json:"recurring_transactions"`
	Goals        int `json:"goals"`
	Budgets      int `json:"budgets"`
	Accounts     int `json:"accounts"`
}

// BackupService 备份与恢复
type BackupService struct {
	deps      Deps
	tx        *TransactionService
	recurring *RecurringService
	goals     *GoalService
	budgets   *BudgetService
	accounts  *AccountService
}

// NewBackupService 创建备份服务
func NewBackupService(deps Deps, tx *TransactionService, recurring *RecurringService, goals *GoalService, budgets *BudgetService, accounts *AccountService) *BackupService {
	return &BackupService{deps: deps, tx: tx, recurring: recurring, goals: goals, budgets: budgets, accounts: accounts}
}

// Export 导出用户全部数据
func (s *BackupService) Export(ctx context.Context, userID uint) *Backup {
	return &Backup{
		Version:      BackupVersion,
		ExportedAt:   s.deps.now(),
		Transactions: s.tx.List(ctx, userID, TransactionFilter{}),
		Recurring:    s.recurring.List(ctx, userID),
		Goals:        s.goals.List(ctx, userID, ""),
		Budgets:      s.budgets.List(ctx, userID),
		Accounts:     s.accounts.List(ctx, userID, true),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBackup, fmt.Sprintf(format, args...))
}

// Validate 校验备份格式及每条记录的必填字段，任何一条无效都返回错误
func (b *Backup) Validate() error {
	if b.Version <= 0 || b.Version > BackupVersion {
		return invalid("不支持的版本 %d", b.Version)
	}
	for i := range b.Transactions {
		if err := validateTransaction(&b.Transactions[i]); err != nil {
			return invalid("第 %d 条交易: %v", i+1, err)
		}
	}
	for i := range b.Recurring {
		if err := validateRecurring(&b.Recurring[i]); err != nil {
			return invalid("第 %d 条周期交易: %v", i+1, err)
		}
	}
	for i := range b.Goals {
		if err := validateGoal(&b.Goals[i]); err != nil {
			return invalid("第 %d 个目标: %v", i+1, err)
		}
	}
	for i := range b.Budgets {
		if err := validateBudget(&b.Budgets[i]); err != nil {
			return invalid("第 %d 个预算: %v", i+1, err)
		}
	}
	for i := range b.Accounts {
		if err := validateAccount(&b.Accounts[i]); err != nil {
			return invalid("第 %d 个账户: %v", i+1, err)
		}
	}
	return nil
}

// ParseBackup 解析并校验备份 JSON
func ParseBackup(data []byte) (*Backup, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, invalid("内容为空")
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, invalid("JSON 解析失败: %v", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Import 恢复备份。先整体校验，全部通过后逐条写入；记录获得新 ID，账户与周期交易的引用随之更新
func (s *BackupService) Import(ctx context.Context, userID uint, data []byte) (*ImportResult, error) {
	b, err := ParseBackup(data)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	ids := make(map[string]string)

	for _, a := range b.Accounts {
		oldID := a.ID
		a.ID, a.UserID = "", userID
		out, err := s.accounts.store.create(ctx, &a)
		if err != nil {
			return res, fmt.Errorf("导入账户失败: %w", err)
		}
		if oldID != "" {
			ids[oldID] = out.ID
		}
		res.Accounts++
	}
	for _, r := range b.Recurring {
		oldID := r.ID
		r.ID, r.UserID = "", userID
		if mapped, ok := ids[r.AccountID]; ok {
			r.AccountID = mapped
		}
		if r.NextOccurrence.IsZero() {
			r.NextOccurrence = r.StartDate
		}
		out, err := s.recurring.store.create(ctx, &r)
		if err != nil {
			return res, fmt.Errorf("导入周期交易失败: %w", err)
		}
		if oldID != "" {
			ids[oldID] = out.ID
		}
		res.Recurring++
	}
	for _, t := range b.Transactions {
		t.ID, t.UserID = "", userID
		if mapped, ok := ids[t.AccountID]; ok {
			t.AccountID = mapped
		}
		if mapped, ok := ids[t.RecurringID]; ok {
			t.RecurringID = mapped
		}
		if _, err := s.tx.store.create(ctx, &t); err != nil {
			return res, fmt.Errorf("导入交易失败: %w", err)
		}
		res.Transactions++
	}
	for _, g := range b.Goals {
		g.ID, g.UserID = "", userID
		if _, err := s.goals.store.create(ctx, &g); err != nil {
			return res, fmt.Errorf("导入目标失败: %w", err)
		}
		res.Goals++
	}
	for _, bd := range b.Budgets {
		bd.ID, bd.UserID = "", userID
		if _, err := s.budgets.store.create(ctx, &bd); err != nil {
			return res, fmt.Errorf("导入预算失败: %w", err)
		}
		res.Budgets++
	}
	return res, nil
}
