package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"expense-api/internal/auth"
	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/go-chi/chi/v5"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// defaultPageSize is the list page size when the client omits a limit.
const defaultPageSize = 10

// maxPageSize caps client-supplied limits.
const maxPageSize = 100

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db   *storage.DB
	auth *auth.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, authSvc *auth.Service) *Handlers {
	return &Handlers{db: db, auth: authSvc}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// Routes wires all API routes. Registration, login, and category listing
// are public; everything else sits behind the bearer middleware.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/register/", h.Register)
	r.Post("/token", h.Login)
	r.Get("/categories/", h.ListCategories)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/users/me/", h.CurrentUser)
		r.Put("/users/me/", h.UpdateCurrentUser)
		r.Get("/users/me/admin/", h.CurrentAdmin)

		r.Post("/expenses/", h.CreateExpense)
		r.Get("/expenses/", h.ListExpenses)
		r.Get("/expenses/{id}", h.GetExpense)
		r.Put("/expenses/{id}", h.UpdateExpense)
		r.Delete("/expenses/{id}", h.DeleteExpense)

		r.Post("/categories/", h.CreateCategory)

		r.Post("/budgets/", h.CreateBudget)
		r.Get("/budgets/", h.ListBudgets)
		r.Get("/budgets/{id}", h.GetBudget)

		r.Get("/stats/monthly", h.MonthlyStats)
	})

	return r
}

// AuthMiddleware requires a valid bearer token, resolves the principal,
// rejects inactive accounts, and stores the user in the request context.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tokenString == "" {
			writeUnauthorized(w)
			return
		}

		user, err := h.auth.Resolve(tokenString)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		if err := auth.RequireActive(user); err != nil {
			writeError(w, http.StatusForbidden, "Inactive user")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Could not validate credentials")
}

func parsePage(r *http.Request) (skip, limit int) {
	limit = defaultPageSize
	if s := r.URL.Query().Get("skip"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			skip = v
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = min(v, maxPageSize)
		}
	}
	return skip, limit
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account. The password is hashed immediately
// and the plaintext discarded; the response never carries the hash.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.db.CreateUser(req.Username, req.Email, hash, false)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Username already registered")
			return
		}
		log.Printf("Register error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login handles the OAuth2-style password login form and returns a bearer
// token. Unknown username and wrong password answer identically.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	token, err := h.auth.Login(username, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		log.Printf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// CurrentUser returns the authenticated principal.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetUserFromContext(r))
}

type userUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// UpdateCurrentUser updates the principal's profile. Any subset of
// username, email, and password may change; a password change re-hashes.
func (h *Handlers) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated := *user
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Username cannot be empty")
			return
		}
		updated.Username = name
	}
	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		updated.Email = *req.Email
	}
	if req.Password != nil {
		if *req.Password == "" {
			writeError(w, http.StatusBadRequest, "Password cannot be empty")
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			log.Printf("Failed to hash password: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		updated.PasswordHash = hash
	}

	if err := h.db.UpdateUser(&updated); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Username or email already registered")
			return
		}
		log.Printf("UpdateCurrentUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, &updated)
}

// CurrentAdmin returns the principal if it has the admin flag, 403
// otherwise.
func (h *Handlers) CurrentAdmin(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if err := auth.RequireAdmin(user); err != nil {
		writeError(w, http.StatusForbidden, "Not enough privileges")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type expenseRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	CategoryID  int64   `json:"category_id"`
}

func (req *expenseRequest) validate() (time.Time, error) {
	if req.Date == "" {
		return time.Time{}, errors.New("date is required")
	}
	return parseDate(req.Date)
}

// CreateExpense creates an expense owned by the principal. The owner is
// stamped from the resolved principal, never from the request body.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := h.db.CreateExpense(req.Amount, req.Description, date, req.CategoryID, user.ID)
	if err != nil {
		log.Printf("CreateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// ListExpenses returns a page of the principal's own expenses.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	skip, limit := parsePage(r)

	expenses, err := h.db.ListExpensesByUser(user.ID, skip, limit)
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}

	writeJSON(w, http.StatusOK, expenses)
}

// loadOwnedExpense fetches an expense and applies the ownership check.
// Absence and foreign ownership both come back as auth.ErrNotFound.
func (h *Handlers) loadOwnedExpense(r *http.Request) (*models.Expense, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, auth.ErrNotFound
	}
	expense, err := h.db.GetExpense(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if err := auth.RequireOwner(GetUserFromContext(r), expense.UserID); err != nil {
		return nil, err
	}
	return expense, nil
}

// GetExpense returns one of the principal's expenses by ID.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.loadOwnedExpense(r)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		log.Printf("GetExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// UpdateExpense updates one of the principal's expenses. Ownership is
// checked before any mutation happens.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.loadOwnedExpense(r)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		log.Printf("UpdateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense.Amount = req.Amount
	expense.Description = req.Description
	expense.Date = date
	expense.CategoryID = req.CategoryID
	if err := h.db.UpdateExpense(expense); err != nil {
		log.Printf("UpdateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

// DeleteExpense removes one of the principal's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.loadOwnedExpense(r)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		log.Printf("DeleteExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.db.DeleteExpense(expense.ID); err != nil {
		log.Printf("DeleteExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

type categoryRequest struct {
	Name string `json:"name"`
}

// CreateCategory creates a shared category. Categories are global: any
// authenticated active principal may create one.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	category, err := h.db.CreateCategory(req.Name)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Category already exists")
			return
		}
		log.Printf("CreateCategory error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

// ListCategories returns a page of categories. No auth required.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePage(r)

	categories, err := h.db.ListCategories(skip, limit)
	if err != nil {
		log.Printf("ListCategories error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}

	writeJSON(w, http.StatusOK, categories)
}

type budgetRequest struct {
	Amount     float64 `json:"amount"`
	CategoryID int64   `json:"category_id"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
}

// CreateBudget creates a budget owned by the principal.
func (h *Handlers) CreateBudget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date must not precede start_date")
		return
	}

	budget, err := h.db.CreateBudget(req.Amount, req.CategoryID, start, end, user.ID)
	if err != nil {
		log.Printf("CreateBudget error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, budget)
}

// ListBudgets returns a page of the principal's own budgets.
func (h *Handlers) ListBudgets(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	skip, limit := parsePage(r)

	budgets, err := h.db.ListBudgetsByUser(user.ID, skip, limit)
	if err != nil {
		log.Printf("ListBudgets error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if budgets == nil {
		budgets = []models.Budget{}
	}

	writeJSON(w, http.StatusOK, budgets)
}

// GetBudget returns one of the principal's budgets by ID. Absent and
// foreign budgets are both 404.
func (h *Handlers) GetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "Budget not found")
		return
	}

	budget, err := h.db.GetBudget(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		log.Printf("GetBudget error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := auth.RequireOwner(GetUserFromContext(r), budget.UserID); err != nil {
		writeError(w, http.StatusNotFound, "Budget not found")
		return
	}

	writeJSON(w, http.StatusOK, budget)
}
