package models

import "time"

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expense represents a financial expense record owned by a user.
type Expense struct {
	ID          int64     `json:"id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CategoryID  int64     `json:"category_id"`
	UserID      int64     `json:"user_id"`
}

// Category is a spending category shared by all users.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Budget is a per-user spending limit for a category over a date range.
type Budget struct {
	ID         int64     `json:"id"`
	Amount     float64   `json:"amount"`
	CategoryID int64     `json:"category_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	UserID     int64     `json:"user_id"`
}
