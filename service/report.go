package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"financify/models"
	"financify/queue"
)

// CategoryShare 分类占比
type CategoryShare struct {
	Category string  `json:"category"`
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Share    float64 `json:"share"` // 占同类型总额的百分比
	Count    int     `json:"count"`
}

// MonthlyTrend 月度收支
type MonthlyTrend struct {
	Month   string  `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Net     float64 `json:"net"`
}

// Summary 区间收支汇总
type Summary struct {
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	TotalIncome      float64         `json:"total_income"`
	TotalExpense     float64         `json:"total_expense"`
	Balance          float64         `json:"balance"`
	SavingsRate      float64         `json:"savings_rate"`
	TransactionCount int             `json:"transaction_count"`
	Categories       []CategoryShare `json:"categories"`
	Monthly          []MonthlyTrend  `json:"monthly"`
}

// SyncStatus 同步状态
type SyncStatus struct {
	Online        bool        `json:"online"`
	Queue         queue.Stats `json:"queue"`
	PendingWrites int         `json:"pending_writes"`
}

// Dashboard 首页汇总
type Dashboard struct {
	Month              Summary              `json:"month"`
	Budgets            []BudgetStatus       `json:"budgets"`
	Goals              []GoalProgress       `json:"goals"`
	Accounts           []AccountBalance     `json:"accounts"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
	Sync               SyncStatus           `json:"sync"`
}

// ReportService 报表服务
type ReportService struct {
	deps     Deps
	tx       *TransactionService
	budgets  *BudgetService
	goals    *GoalService
	accounts *AccountService
}

// NewReportService 创建报表服务
func NewReportService(deps Deps, tx *TransactionService, budgets *BudgetService, goals *GoalService, accounts *AccountService) *ReportService {
	return &ReportService{deps: deps, tx: tx, budgets: budgets, goals: goals, accounts: accounts}
}

type categoryAgg struct {
	typ    string
	name   string
	amount decimal.Decimal
	count  int
}

// Summarize 汇总交易，不做时间筛选
func Summarize(txs []models.Transaction) Summary {
	income, expense := decimal.Zero, decimal.Zero
	cats := make(map[string]*categoryAgg)
	months := make(map[string]*[2]decimal.Decimal)

	for _, t := range txs {
		amount := decimal.NewFromFloat(t.Amount)
		if t.Type == models.TransactionTypeIncome {
			income = income.Add(amount)
		} else {
			expense = expense.Add(amount)
		}

		key := t.Type + "/" + t.Category
		agg, ok := cats[key]
		if !ok {
			agg = &categoryAgg{typ: t.Type, name: t.Category, amount: decimal.Zero}
			cats[key] = agg
		}
		agg.amount = agg.amount.Add(amount)
		agg.count++

		month := t.Date.Format("2006-01")
		m, ok := months[month]
		if !ok {
			m = &[2]decimal.Decimal{decimal.Zero, decimal.Zero}
			months[month] = m
		}
		if t.Type == models.TransactionTypeIncome {
			m[0] = m[0].Add(amount)
		} else {
			m[1] = m[1].Add(amount)
		}
	}

	s := Summary{
		TotalIncome:      income.Round(2).InexactFloat64(),
		TotalExpense:     expense.Round(2).InexactFloat64(),
		Balance:          income.Sub(expense).Round(2).InexactFloat64(),
		TransactionCount: len(txs),
		Categories:       make([]CategoryShare, 0, len(cats)),
		Monthly:          make([]MonthlyTrend, 0, len(months)),
	}
	if income.IsPositive() {
		s.SavingsRate = income.Sub(expense).Div(income).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	hundred := decimal.NewFromInt(100)
	for _, agg := range cats {
		total := expense
		if agg.typ == models.TransactionTypeIncome {
			total = income
		}
		share := decimal.Zero
		if total.IsPositive() {
			share = agg.amount.Div(total).Mul(hundred)
		}
		s.Categories = append(s.Categories, CategoryShare{
			Category: agg.name,
			Type:     agg.typ,
			Amount:   agg.amount.Round(2).InexactFloat64(),
			Share:    share.Round(2).InexactFloat64(),
			Count:    agg.count,
		})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		if s.Categories[i].Type != s.Categories[j].Type {
			return s.Categories[i].Type < s.Categories[j].Type
		}
		if s.Categories[i].Amount != s.Categories[j].Amount {
			return s.Categories[i].Amount > s.Categories[j].Amount
		}
		return s.Categories[i].Category < s.Categories[j].Category
	})

	for month, m := range months {
		s.Monthly = append(s.Monthly, MonthlyTrend{
			Month:   month,
			Income:  m[0].Round(2).InexactFloat64(),
			Expense: m[1].Round(2).InexactFloat64(),
			Net:     m[0].Sub(m[1]).Round(2).InexactFloat64(),
		})
	}
	sort.Slice(s.Monthly, func(i, j int) bool { return s.Monthly[i].Month < s.Monthly[j].Month })
	return s
}

// Summary 区间 [start, end] 内的收支汇总
func (s *ReportService) Summary(ctx context.Context, userID uint, start, end time.Time) Summary {
	txs := s.tx.List(ctx, userID, TransactionFilter{Start: start, End: end})
	sum := Summarize(txs)
	sum.Start = start
	sum.End = end
	return sum
}

// SyncStatus 当前网络状态与该用户的同步队列状态
func (s *ReportService) SyncStatus(userID uint) SyncStatus {
	st := SyncStatus{
		Online: s.deps.Wrapper.Online(),
		Queue:  s.deps.Queue.StatsOf(userID),
	}
	if writes, err := s.deps.Wrapper.PendingWritesOf(userID); err == nil {
		for _, w := range writes {
			if !w.Failed {
				st.PendingWrites++
			}
		}
	}
	return st
}

// Dashboard 当月汇总、预算、进行中目标、账户余额、最近交易和同步状态
func (s *ReportService) Dashboard(ctx context.Context, userID uint, now time.Time) Dashboard {
	start, end, _ := models.PeriodRange(models.BudgetPeriodMonthly, now)
	month := s.Summary(ctx, userID, start, end.Add(-time.Nanosecond))

	recent := s.tx.List(ctx, userID, TransactionFilter{})
	if len(recent) > 5 {
		recent = recent[:5]
	}
	return Dashboard{
		Month:              month,
		Budgets:            s.budgets.Status(ctx, userID, now),
		Goals:              s.goals.ListProgress(ctx, userID, models.GoalStatusActive),
		Accounts:           s.accounts.Balances(ctx, userID),
		RecentTransactions: recent,
		Sync:               s.SyncStatus(userID),
	}
}
