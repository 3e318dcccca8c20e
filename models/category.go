package models

import "time"

// Category 交易分类，经 resilient 包直接读写远端 categories 表
type Category struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // income / expense
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultCategoryColor 默认颜色
const DefaultCategoryColor = "#64748b"

// 默认分类
var defaultExpenseCategories = []string{"Food", "Transport", "Shopping", "Entertainment", "Health", "Education", "Housing", "Other"}
var defaultIncomeCategories = []string{"Salary", "Bonus", "Investment", "Freelance", "Other"}

// GetDefaultCategories 获取指定类型的默认分类
func GetDefaultCategories(kind string) []string {
	if kind == TransactionTypeIncome {
		return defaultIncomeCategories
	}
	return defaultExpenseCategories
}
