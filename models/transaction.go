package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// 交易类型
const (
	TransactionTypeIncome  = "income"
	TransactionTypeExpense = "expense"
)

// TempIDPrefix 离线创建记录的临时 ID 前缀，服务端确认后替换为正式 ID
const TempIDPrefix = "offline_"

// Transaction 交易记录
type Transaction struct {
	ID          string    `json:"id"`
	UserID      uint      `json:"user_id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	AccountID   string    `json:"account_id,omitempty"`
	RecurringID string    `json:"recurring_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t *Transaction) EntityID() string      { return t.ID }
func (t *Transaction) SetEntityID(id string) { t.ID = id }
func (t *Transaction) OwnerID() uint         { return t.UserID }

// SignedAmount 收入为正，支出为负
func (t *Transaction) SignedAmount() float64 {
	if t.Type == TransactionTypeExpense {
		return -t.Amount
	}
	return t.Amount
}

// NewTempID 生成离线临时 ID
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID 判断是否为尚未同步的临时 ID
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ValidTransactionType 校验交易类型
func ValidTransactionType(t string) bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}
