package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"expense-api/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrDuplicate is returned when an insert or update violates a unique
// constraint (username, email, category name).
var ErrDuplicate = errors.New("unique constraint violated")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount REAL NOT NULL,
			description TEXT NOT NULL,
			date DATETIME NOT NULL,
			category_id INTEGER NOT NULL REFERENCES categories(id),
			user_id INTEGER NOT NULL REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS budgets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount REAL NOT NULL,
			category_id INTEGER NOT NULL REFERENCES categories(id),
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			user_id INTEGER NOT NULL REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser creates a new user with the given username, email and
// password hash. Returns ErrDuplicate if the username or email is taken.
func (db *DB) CreateUser(username, email, passwordHash string, isAdmin bool) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (username, email, password_hash, is_admin) VALUES (?, ?, ?, ?)",
		username, email, passwordHash, isAdmin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return scanUser(db.conn.QueryRow(
		"SELECT id, username, email, password_hash, is_active, is_admin, created_at FROM users WHERE id = ?",
		id,
	))
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return scanUser(db.conn.QueryRow(
		"SELECT id, username, email, password_hash, is_active, is_admin, created_at FROM users WHERE username = ?",
		username,
	))
}

// UpdateUser persists the user's username, email, password hash and flags.
// Returns ErrDuplicate if the new username or email collides.
func (db *DB) UpdateUser(u *models.User) error {
	_, err := db.conn.Exec(
		"UPDATE users SET username = ?, email = ?, password_hash = ?, is_active = ?, is_admin = ? WHERE id = ?",
		u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsAdmin, u.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateExpense inserts a new expense owned by the given user.
func (db *DB) CreateExpense(amount float64, description string, date time.Time, categoryID, userID int64) (*models.Expense, error) {
	if date.IsZero() {
		date = time.Now()
	}
	result, err := db.conn.Exec(
		"INSERT INTO expenses (amount, description, date, category_id, user_id) VALUES (?, ?, ?, ?, ?)",
		amount, description, date, categoryID, userID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetExpense(id)
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(id int64) (*models.Expense, error) {
	row := db.conn.QueryRow(
		"SELECT id, amount, description, date, category_id, user_id FROM expenses WHERE id = ?",
		id,
	)

	var e models.Expense
	if err := row.Scan(&e.ID, &e.Amount, &e.Description, &e.Date, &e.CategoryID, &e.UserID); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExpense updates an existing expense in the database. The owner
// column is never touched.
func (db *DB) UpdateExpense(e *models.Expense) error {
	_, err := db.conn.Exec(
		"UPDATE expenses SET amount = ?, description = ?, date = ?, category_id = ? WHERE id = ?",
		e.Amount, e.Description, e.Date, e.CategoryID, e.ID,
	)
	return err
}

// DeleteExpense removes an expense by ID.
func (db *DB) DeleteExpense(id int64) error {
	_, err := db.conn.Exec("DELETE FROM expenses WHERE id = ?", id)
	return err
}

// ListExpensesByUser retrieves a page of the user's expenses, ordered by
// date descending.
func (db *DB) ListExpensesByUser(userID int64, skip, limit int) ([]models.Expense, error) {
	rows, err := db.conn.Query(
		"SELECT id, amount, description, date, category_id, user_id FROM expenses WHERE user_id = ? ORDER BY date DESC LIMIT ? OFFSET ?",
		userID, limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.Amount, &e.Description, &e.Date, &e.CategoryID, &e.UserID); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// CreateCategory inserts a new shared category. Returns ErrDuplicate if
// the name is already taken.
func (db *DB) CreateCategory(name string) (*models.Category, error) {
	result, err := db.conn.Exec("INSERT INTO categories (name) VALUES (?)", name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Category{ID: id, Name: name}, nil
}

// ListCategories retrieves a page of categories ordered by ID.
func (db *DB) ListCategories(skip, limit int) ([]models.Category, error) {
	rows, err := db.conn.Query(
		"SELECT id, name FROM categories ORDER BY id LIMIT ? OFFSET ?",
		limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// CategoryCount returns the number of categories in the database.
func (db *DB) CategoryCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count)
	return count, err
}

// CreateBudget inserts a new budget owned by the given user.
func (db *DB) CreateBudget(amount float64, categoryID int64, start, end time.Time, userID int64) (*models.Budget, error) {
	result, err := db.conn.Exec(
		"INSERT INTO budgets (amount, category_id, start_date, end_date, user_id) VALUES (?, ?, ?, ?, ?)",
		amount, categoryID, start, end, userID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetBudget(id)
}

// GetBudget retrieves a single budget by ID.
func (db *DB) GetBudget(id int64) (*models.Budget, error) {
	row := db.conn.QueryRow(
		"SELECT id, amount, category_id, start_date, end_date, user_id FROM budgets WHERE id = ?",
		id,
	)

	var b models.Budget
	if err := row.Scan(&b.ID, &b.Amount, &b.CategoryID, &b.StartDate, &b.EndDate, &b.UserID); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBudgetsByUser retrieves a page of the user's budgets, ordered by
// start date descending.
func (db *DB) ListBudgetsByUser(userID int64, skip, limit int) ([]models.Budget, error) {
	rows, err := db.conn.Query(
		"SELECT id, amount, category_id, start_date, end_date, user_id FROM budgets WHERE user_id = ? ORDER BY start_date DESC LIMIT ? OFFSET ?",
		userID, limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.ID, &b.Amount, &b.CategoryID, &b.StartDate, &b.EndDate, &b.UserID); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}

	return budgets, rows.Err()
}

// CategoryTotal aggregates a user's spending in one category.
type CategoryTotal struct {
	CategoryID int64   `json:"category_id"`
	Name       string  `json:"name"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
}

// CategoryTotalsByMonth sums the user's expenses per category for the
// given month, largest total first.
func (db *DB) CategoryTotalsByMonth(userID int64, year, month int) ([]CategoryTotal, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := db.conn.Query(`
		SELECT c.id, c.name, SUM(e.amount), COUNT(*)
		FROM expenses e
		JOIN categories c ON e.category_id = c.id
		WHERE e.user_id = ? AND e.date >= ? AND e.date < ?
		GROUP BY c.id, c.name
		ORDER BY SUM(e.amount) DESC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.Name, &t.Total, &t.Count); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}
