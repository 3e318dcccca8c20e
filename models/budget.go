package models

import (
	"fmt"
	"time"
)

// 预算周期
const (
	BudgetPeriodWeekly  = "weekly"
	BudgetPeriodMonthly = "monthly"
	BudgetPeriodYearly  = "yearly"
)

// DefaultAlertThreshold 默认预警阈值（百分比）
const DefaultAlertThreshold = 80

// Budget 分类预算
type Budget struct {
	ID              string    `json:"id"`
	UserID          uint      `json:"user_id"`
	Category        string    `json:"category"`
	Limit           float64   `json:"limit"`
	Period          string    `json:"period"`
	AlertThreshold  float64   `json:"alert_threshold"`
	CurrentSpend    float64   `json:"current_spend"`
	LastAlertPeriod string    `json:"last_alert_period,omitempty"` // 已发送预警的周期，避免重复提醒
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (b *Budget) EntityID() string      { return b.ID }
func (b *Budget) SetEntityID(id string) { b.ID = id }
func (b *Budget) OwnerID() uint         { return b.UserID }

// ValidBudgetPeriod 校验预算周期
func ValidBudgetPeriod(p string) bool {
	return p == BudgetPeriodWeekly || p == BudgetPeriodMonthly || p == BudgetPeriodYearly
}

// PeriodRange 返回包含 now 的周期起止时间 [start, end) 及周期标识
func PeriodRange(period string, now time.Time) (start, end time.Time, key string) {
	y, m, d := now.Date()
	loc := now.Location()
	switch period {
	case BudgetPeriodWeekly:
		offset := (int(now.Weekday()) + 6) % 7 // 周一为一周开始
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
		wy, wk := start.ISOWeek()
		key = fmt.Sprintf("%d-W%02d", wy, wk)
	case BudgetPeriodYearly:
		start = time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
		key = start.Format("2006")
	default:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
		key = start.Format("2006-01")
	}
	return start, end, key
}
