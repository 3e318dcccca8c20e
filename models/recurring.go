package models

import "time"

// 周期频率
const (
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyBiweekly  = "biweekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"
)

// RecurringTransaction 周期交易模板，按需生成 Transaction
type RecurringTransaction struct {
	ID             string     `json:"id"`
	UserID         uint       `json:"user_id"`
	Type           string     `json:"type"`
	Amount         float64    `json:"amount"`
	Category       string     `json:"category"`
	Description    string     `json:"description"`
	AccountID      string     `json:"account_id,omitempty"`
	Frequency      string     `json:"frequency"`
	StartDate      time.Time  `json:"start_date"`
	NextOccurrence time.Time  `json:"next_occurrence"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	MaxOccurrences int        `json:"max_occurrences"` // 0 表示不限
	GeneratedCount int        `json:"generated_count"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r *RecurringTransaction) EntityID() string      { return r.ID }
func (r *RecurringTransaction) SetEntityID(id string) { r.ID = id }
func (r *RecurringTransaction) OwnerID() uint         { return r.UserID }

// ValidFrequency 校验频率
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Advance 返回 t 之后的下一次发生时间。按月推进的频率落在 anchorDay 日，
// 当月没有这一天时取当月最后一天，下一期仍回到 anchorDay
func Advance(t time.Time, frequency string, anchorDay int) time.Time {
	switch frequency {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return t.AddDate(0, 0, 14)
	case FrequencyQuarterly:
		return addMonths(t, 3, anchorDay)
	case FrequencyYearly:
		return addMonths(t, 12, anchorDay)
	default:
		return addMonths(t, 1, anchorDay)
	}
}

func addMonths(t time.Time, months, anchorDay int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := anchorDay
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return first.AddDate(0, 0, day-1)
}

// Exhausted 是否已达到结束条件
func (r *RecurringTransaction) Exhausted() bool {
	if r.MaxOccurrences > 0 && r.GeneratedCount >= r.MaxOccurrences {
		return true
	}
	if r.EndDate != nil && r.NextOccurrence.After(*r.EndDate) {
		return true
	}
	return false
}
