package models

import "time"

// Account 资金账户
type Account struct {
	ID             string    `json:"id"`
	UserID         uint      `json:"user_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"` // cash / bank / credit / ...
	Currency       string    `json:"currency"`
	InitialBalance float64   `json:"initial_balance"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Account) EntityID() string      { return a.ID }
func (a *Account) SetEntityID(id string) { a.ID = id }
func (a *Account) OwnerID() uint         { return a.UserID }
