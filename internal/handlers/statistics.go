package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"expense-api/internal/storage"
)

// MonthlyStatsResponse summarizes one month of the principal's spending.
type MonthlyStatsResponse struct {
	Year       int                    `json:"year"`
	Month      int                    `json:"month"`
	Total      float64                `json:"total"`
	Categories []MonthlyCategoryStats `json:"categories"`
}

// MonthlyCategoryStats is one category's share of the month.
type MonthlyCategoryStats struct {
	storage.CategoryTotal
	Percentage float64 `json:"percentage"`
}

// MonthlyStats returns per-category totals for the principal's expenses in
// a given month. Year and month default to the current month.
func (h *Handlers) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	now := time.Now()
	year := now.Year()
	month := int(now.Month())

	if s := r.URL.Query().Get("year"); s != "" {
		if y, err := strconv.Atoi(s); err == nil {
			year = y
		}
	}
	if s := r.URL.Query().Get("month"); s != "" {
		if m, err := strconv.Atoi(s); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	totals, err := h.db.CategoryTotalsByMonth(user.ID, year, month)
	if err != nil {
		log.Printf("MonthlyStats error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var grandTotal float64
	for _, t := range totals {
		grandTotal += t.Total
	}

	resp := MonthlyStatsResponse{
		Year:       year,
		Month:      month,
		Total:      grandTotal,
		Categories: make([]MonthlyCategoryStats, 0, len(totals)),
	}
	for _, t := range totals {
		pct := 0.0
		if grandTotal > 0 {
			pct = t.Total / grandTotal * 100
		}
		resp.Categories = append(resp.Categories, MonthlyCategoryStats{
			CategoryTotal: t,
			Percentage:    pct,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
