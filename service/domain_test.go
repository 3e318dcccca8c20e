package service

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"financify/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecurringService_Generate(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	svc := NewRecurringService(env.deps, tx)
	ctx := context.Background()

	r, err := svc.Create(ctx, 1, &models.RecurringTransaction{
		Type:      models.TransactionTypeExpense,
		Amount:    3000,
		Category:  "Rent",
		Frequency: models.FrequencyMonthly,
		StartDate: date(2024, 1, 15),
	})
	require.NoError(t, err)
	assert.True(t, r.Active)
	assert.Equal(t, date(2024, 1, 15), r.NextOccurrence)

	created, err := svc.Generate(ctx, 1, r.ID, testNow)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, date(2024, 1, 15), created[0].Date)
	assert.Equal(t, date(2024, 3, 15), created[2].Date)
	assert.Equal(t, r.ID, created[0].RecurringID)

	got, err := svc.Get(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.GeneratedCount)
	assert.Equal(t, date(2024, 4, 15), got.NextOccurrence)

	// 同一时间再次生成不会重复
	created, err = svc.Generate(ctx, 1, r.ID, testNow)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, tx.List(ctx, 1, TransactionFilter{}), 3)
}

func TestRecurringService_MonthEndSeriesDoesNotDrift(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	svc := NewRecurringService(env.deps, tx)
	ctx := context.Background()

	r, err := svc.Create(ctx, 1, &models.RecurringTransaction{
		Type:      models.TransactionTypeExpense,
		Amount:    50,
		Category:  "Gym",
		Frequency: models.FrequencyMonthly,
		StartDate: date(2025, 1, 31),
	})
	require.NoError(t, err)

	created, err := svc.Generate(ctx, 1, r.ID, date(2025, 4, 30))
	require.NoError(t, err)
	var got []time.Time
	for _, c := range created {
		got = append(got, c.Date)
	}
	assert.Equal(t, []time.Time{date(2025, 1, 31), date(2025, 2, 28), date(2025, 3, 31), date(2025, 4, 30)}, got)

	after, err := svc.Get(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 5, 31), after.NextOccurrence)
}

func TestRecurringService_GenerateDueStopsAtMaxOccurrences(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	svc := NewRecurringService(env.deps, tx)
	ctx := context.Background()

	r, err := svc.Create(ctx, 1, &models.RecurringTransaction{
		Type:           models.TransactionTypeIncome,
		Amount:         100,
		Category:       "Allowance",
		Frequency:      models.FrequencyWeekly,
		StartDate:      date(2024, 3, 1),
		MaxOccurrences: 2,
	})
	require.NoError(t, err)

	created, err := svc.GenerateDue(ctx, 1, testNow)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	got, err := svc.Get(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 2, got.GeneratedCount)
}

func TestRecurringService_Validation(t *testing.T) {
	env := newTestEnv(t, true)
	svc := NewRecurringService(env.deps, NewTransactionService(env.deps))

	_, err := svc.Create(context.Background(), 1, &models.RecurringTransaction{
		Type:      models.TransactionTypeExpense,
		Amount:    10,
		Category:  "Rent",
		Frequency: "hourly",
		StartDate: testNow,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGoalService_Contribute(t *testing.T) {
	env := newTestEnv(t, true)
	svc := NewGoalService(env.deps)
	ctx := context.Background()

	g, err := svc.Create(ctx, 1, &models.Goal{Name: "Emergency fund", TargetAmount: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, g.Status)

	g, err = svc.Contribute(ctx, 1, g.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, 400.0, g.CurrentAmount)
	assert.Equal(t, models.GoalStatusActive, g.Status)

	_, err = svc.Contribute(ctx, 1, g.ID, -500)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Contribute(ctx, 1, g.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)

	g, err = svc.Contribute(ctx, 1, g.ID, 600.1)
	require.NoError(t, err)
	assert.Equal(t, 1000.1, g.CurrentAmount)
	assert.Equal(t, models.GoalStatusCompleted, g.Status)

	assert.Len(t, svc.List(ctx, 1, models.GoalStatusCompleted), 1)
	assert.Empty(t, svc.List(ctx, 1, models.GoalStatusActive))
}

func TestGoalProgress(t *testing.T) {
	deadline := testNow.Add(10 * 24 * time.Hour)
	p := Progress(models.Goal{TargetAmount: 1000, CurrentAmount: 250, Deadline: &deadline}, testNow)
	assert.Equal(t, 25.0, p.Percentage)
	assert.Equal(t, 750.0, p.Remaining)
	require.NotNil(t, p.DaysLeft)
	assert.Equal(t, 10, *p.DaysLeft)

	past := testNow.Add(-48 * time.Hour)
	p = Progress(models.Goal{TargetAmount: 100, CurrentAmount: 150, Deadline: &past}, testNow)
	assert.Equal(t, 0.0, p.Remaining)
	assert.Equal(t, 0, *p.DaysLeft)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []BudgetStatus
}

func (n *recordingNotifier) NotifyBudget(ctx context.Context, userID uint, st BudgetStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, st)
	return nil
}

func TestBudgetService_StatusAlertsOncePerPeriod(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	notifier := &recordingNotifier{}
	svc := NewBudgetService(env.deps, tx, notifier)
	ctx := context.Background()

	b, err := svc.Create(ctx, 1, &models.Budget{Category: "Food", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, models.BudgetPeriodMonthly, b.Period)
	assert.Equal(t, float64(models.DefaultAlertThreshold), b.AlertThreshold)

	_, err = svc.Create(ctx, 1, &models.Budget{Category: "Food", Limit: 200})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 85, "Food", date(2024, 3, 2)))
	require.NoError(t, err)
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 50, "Food", date(2024, 2, 28)))
	require.NoError(t, err)
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 40, "Transport", date(2024, 3, 3)))
	require.NoError(t, err)

	statuses := svc.Status(ctx, 1, testNow)
	require.Len(t, statuses, 1)
	st := statuses[0]
	assert.Equal(t, 85.0, st.Spent)
	assert.Equal(t, 15.0, st.Remaining)
	assert.True(t, st.Alert)
	assert.False(t, st.Exceeded)
	assert.Equal(t, "2024-03", st.PeriodKey)
	assert.Equal(t, 85.0, st.Budget.CurrentSpend)
	assert.Len(t, notifier.calls, 1)
	assert.Equal(t, 1, env.backend.Calls("update:budgets"))

	svc.Status(ctx, 1, testNow)
	assert.Len(t, notifier.calls, 1)
	assert.Equal(t, 1, env.backend.Calls("update:budgets"))

	got, err := svc.Get(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentSpend)
	assert.Equal(t, "2024-03", got.LastAlertPeriod)

	// 下个周期重新提醒
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 120, "Food", date(2024, 4, 2)))
	require.NoError(t, err)
	statuses = svc.Status(ctx, 1, date(2024, 4, 10))
	assert.True(t, statuses[0].Exceeded)
	assert.Len(t, notifier.calls, 2)
}

func TestBudgetService_StatusIsReadOnly(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	svc := NewBudgetService(env.deps, tx, nil)
	reports := NewReportService(env.deps, tx, svc, NewGoalService(env.deps), NewAccountService(env.deps, tx))
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, &models.Budget{Category: "Food", Limit: 100})
	require.NoError(t, err)
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 95, "Food", date(2024, 3, 2)))
	require.NoError(t, err)

	statuses := svc.Status(ctx, 1, testNow)
	require.Len(t, statuses, 1)
	assert.Equal(t, 95.0, statuses[0].Spent)
	assert.Equal(t, 95.0, statuses[0].Budget.CurrentSpend)
	reports.Dashboard(ctx, 1, testNow)

	assert.Zero(t, env.backend.Calls("update:budgets"))
	assert.Zero(t, env.queue.GetQueueStats().Total)
}

func TestEvaluate_WeeklyPeriod(t *testing.T) {
	b := models.Budget{Category: "Food", Limit: 200, Period: models.BudgetPeriodWeekly, AlertThreshold: 50}
	txs := []models.Transaction{
		{Type: models.TransactionTypeExpense, Category: "Food", Amount: 60, Date: date(2024, 3, 18)},
		{Type: models.TransactionTypeExpense, Category: "Food", Amount: 60, Date: date(2024, 3, 17)},
		{Type: models.TransactionTypeIncome, Category: "Food", Amount: 500, Date: date(2024, 3, 19)},
	}
	st := Evaluate(b, txs, testNow)
	assert.Equal(t, 60.0, st.Spent)
	assert.Equal(t, 30.0, st.Percentage)
	assert.False(t, st.Alert)
	assert.Equal(t, date(2024, 3, 18), st.PeriodStart)
	assert.Equal(t, "2024-W12", st.PeriodKey)
}

func TestAccountService_Balance(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	svc := NewAccountService(env.deps, tx)
	ctx := context.Background()

	acc, err := svc.Create(ctx, 1, &models.Account{Name: " Bank ", InitialBalance: 100, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "Bank", acc.Name)
	assert.Equal(t, "USD", acc.Currency)

	income := newTx(models.TransactionTypeIncome, 50.25, "Salary", testNow)
	income.AccountID = acc.ID
	expense := newTx(models.TransactionTypeExpense, 30.1, "Food", testNow)
	expense.AccountID = acc.ID
	for _, item := range []*models.Transaction{income, expense, newTx(models.TransactionTypeExpense, 999, "Other", testNow)} {
		_, err := tx.Create(ctx, 1, item)
		require.NoError(t, err)
	}

	bal, err := svc.Balance(ctx, 1, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.15, bal.Balance)
	assert.Equal(t, 2, bal.TransactionCount)

	_, err = svc.Balance(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	archived := *acc
	archived.Archived = true
	_, err = svc.Update(ctx, 1, acc.ID, &archived)
	require.NoError(t, err)
	assert.Empty(t, svc.Balances(ctx, 1))
	assert.Len(t, svc.List(ctx, 1, true), 1)
}

func TestSummarize(t *testing.T) {
	txs := []models.Transaction{
		{Type: models.TransactionTypeIncome, Amount: 1000, Category: "Salary", Date: date(2024, 1, 5)},
		{Type: models.TransactionTypeExpense, Amount: 300, Category: "Food", Date: date(2024, 1, 10)},
		{Type: models.TransactionTypeExpense, Amount: 100, Category: "Transport", Date: date(2024, 2, 1)},
	}
	s := Summarize(txs)
	assert.Equal(t, 1000.0, s.TotalIncome)
	assert.Equal(t, 400.0, s.TotalExpense)
	assert.Equal(t, 600.0, s.Balance)
	assert.Equal(t, 60.0, s.SavingsRate)
	assert.Equal(t, 3, s.TransactionCount)

	require.Len(t, s.Categories, 3)
	assert.Equal(t, "Food", s.Categories[0].Category)
	assert.Equal(t, 75.0, s.Categories[0].Share)
	assert.Equal(t, "Transport", s.Categories[1].Category)
	assert.Equal(t, "Salary", s.Categories[2].Category)
	assert.Equal(t, 100.0, s.Categories[2].Share)

	require.Len(t, s.Monthly, 2)
	assert.Equal(t, "2024-01", s.Monthly[0].Month)
	assert.Equal(t, 700.0, s.Monthly[0].Net)
	assert.Equal(t, -100.0, s.Monthly[1].Net)

	empty := Summarize(nil)
	assert.Equal(t, 0.0, empty.SavingsRate)
	assert.NotNil(t, empty.Categories)
}

func TestReportService_Dashboard(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	budgets := NewBudgetService(env.deps, tx, nil)
	goals := NewGoalService(env.deps)
	accounts := NewAccountService(env.deps, tx)
	reports := NewReportService(env.deps, tx, budgets, goals, accounts)
	ctx := context.Background()

	_, err := tx.Create(ctx, 1, newTx(models.TransactionTypeIncome, 500, "Salary", date(2024, 3, 1)))
	require.NoError(t, err)
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 80, "Food", date(2024, 2, 1)))
	require.NoError(t, err)
	_, err = goals.Create(ctx, 1, &models.Goal{Name: "Trip", TargetAmount: 2000})
	require.NoError(t, err)

	d := reports.Dashboard(ctx, 1, testNow)
	assert.Equal(t, 500.0, d.Month.TotalIncome)
	assert.Equal(t, 0.0, d.Month.TotalExpense)
	assert.Len(t, d.Goals, 1)
	assert.Len(t, d.RecentTransactions, 2)
	assert.True(t, d.Sync.Online)
	assert.Equal(t, 0, d.Sync.Queue.Pending)

	env.conn.online.Store(false)
	_, err = tx.Create(ctx, 1, newTx(models.TransactionTypeExpense, 5, "Food", testNow))
	require.NoError(t, err)
	st := reports.SyncStatus(1)
	assert.False(t, st.Online)
	assert.Equal(t, 1, st.Queue.Pending)
	assert.Equal(t, 0, reports.SyncStatus(2).Queue.Pending)
}

func TestExportService(t *testing.T) {
	svc := NewExportService()
	txs := []models.Transaction{
		{ID: "t1", Type: models.TransactionTypeExpense, Amount: 25.5, Category: "餐饮", Date: testNow},
		{ID: "t2", Type: models.TransactionTypeIncome, Amount: 100, Category: "工资", Date: testNow},
	}

	data, err := svc.CSV(txs)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\xEF\xBB\xBF")))
	assert.Contains(t, string(data), "支出")
	assert.Contains(t, string(data), "25.50")

	data, err = svc.JSON(txs, date(2024, 3, 1), date(2024, 3, 31))
	require.NoError(t, err)
	var out JSONExport
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 2, out.TotalCount)
	assert.Equal(t, 100.0, out.TotalIncome)
	assert.Equal(t, "2024-03-01", out.Start)

	data, err = svc.Excel(txs)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("交易记录")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 3)
}

func TestParseBackup_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":          "  ",
		"not json":       "{oops",
		"future version": `{"version": 99}`,
		"bad record":     `{"version": 1, "transactions": [{"type": "expense", "amount": 0, "category": "Food", "date": "2024-03-01T00:00:00Z"}]}`,
		"missing name":   `{"version": 1, "goals": [{"target_amount": 100}]}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBackup([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidBackup)
		})
	}
}

func TestBackupService_ExportImport(t *testing.T) {
	env := newTestEnv(t, true)
	tx := NewTransactionService(env.deps)
	recurring := NewRecurringService(env.deps, tx)
	goals := NewGoalService(env.deps)
	budgets := NewBudgetService(env.deps, tx, nil)
	accounts := NewAccountService(env.deps, tx)
	svc := NewBackupService(env.deps, tx, recurring, goals, budgets, accounts)
	ctx := context.Background()

	acc, err := accounts.Create(ctx, 1, &models.Account{Name: "Wallet"})
	require.NoError(t, err)
	t1 := newTx(models.TransactionTypeExpense, 12, "Food", testNow)
	t1.AccountID = acc.ID
	_, err = tx.Create(ctx, 1, t1)
	require.NoError(t, err)
	_, err = budgets.Create(ctx, 1, &models.Budget{Category: "Food", Limit: 300})
	require.NoError(t, err)

	data, err := json.Marshal(svc.Export(ctx, 1))
	require.NoError(t, err)

	res, err := svc.Import(ctx, 2, data)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accounts)
	assert.Equal(t, 1, res.Transactions)
	assert.Equal(t, 1, res.Budgets)

	imported := tx.List(ctx, 2, TransactionFilter{})
	require.Len(t, imported, 1)
	newAccounts := accounts.List(ctx, 2, true)
	require.Len(t, newAccounts, 1)
	assert.NotEqual(t, acc.ID, newAccounts[0].ID)
	assert.Equal(t, newAccounts[0].ID, imported[0].AccountID)

	// 无效备份不写入任何数据
	_, err = svc.Import(ctx, 3, []byte(`{"version": 1, "accounts": [{"name": "ok"}], "budgets": [{"limit": 10}]}`))
	assert.ErrorIs(t, err, ErrInvalidBackup)
	assert.Empty(t, accounts.List(ctx, 3, true))
}

func TestCategoryService(t *testing.T) {
	env := newTestEnv(t, true)
	svc := NewCategoryService(env.deps)
	ctx := context.Background()

	list, err := svc.List(ctx, 1, models.TransactionTypeExpense)
	require.NoError(t, err)
	assert.Equal(t, "default", list.Source)
	assert.NotEmpty(t, list.Categories)

	c, err := svc.Create(ctx, 1, &models.Category{Name: "Coffee", Type: models.TransactionTypeExpense})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", c.ID)
	assert.Equal(t, models.DefaultCategoryColor, c.Color)

	_, err = svc.Create(ctx, 1, &models.Category{Name: "Coffee", Type: models.TransactionTypeExpense})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, 1, &models.Category{Name: "Coffee", Type: "other"})
	assert.ErrorIs(t, err, ErrValidation)

	list, err = svc.List(ctx, 1, models.TransactionTypeExpense)
	require.NoError(t, err)
	require.Len(t, list.Categories, 1)
	assert.Equal(t, "remote", list.Source)

	// 离线写入暂存，恢复后回放
	env.conn.online.Store(false)
	offline, err := svc.Create(ctx, 1, &models.Category{Name: "Books", Type: models.TransactionTypeExpense})
	require.NoError(t, err)
	assert.True(t, models.IsTempID(offline.ID))
	pending, err := svc.PendingWrites()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	list, err = svc.List(ctx, 1, models.TransactionTypeExpense)
	require.NoError(t, err)
	assert.Len(t, list.Categories, 2)

	env.conn.online.Store(true)
	res, err := env.deps.Wrapper.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Len(t, env.backend.Rows(TableCategories), 2)
}
