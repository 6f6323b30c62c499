package bankfeed

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"NexoCorpERP/api/utils"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ListTransactionsHandler serves the reconciled ledger with cursor-free
// page/limit pagination and optional filters on connection, account, date
// window, direction and segment.
func ListTransactionsHandler(pool *pgxpool.Pool, s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Authorize(r); err != nil {
			writeFeedError(w, err)
			return
		}

		params, err := utils.ExtractPagination(r)
		if err != nil {
			writeFeedError(w, &BadRequestError{Reason: err.Error()})
			return
		}

		where := make([]string, 0, 6)
		args := make([]interface{}, 0, 6)
		addFilter := func(clause, value string) {
			args = append(args, value)
			where = append(where, fmt.Sprintf(clause, len(args)))
		}

		q := r.URL.Query()
		if v := q.Get("connectionId"); v != "" {
			addFilter("connection_id = $%d", v)
		}
		if v := q.Get("accountId"); v != "" {
			addFilter("account_id = $%d", v)
		}
		if v := q.Get("segmentId"); v != "" {
			addFilter("segment_id = $%d", v)
		}
		if v := q.Get("direction"); v != "" {
			addFilter("direction = $%d", v)
		}
		if v := q.Get("dateFrom"); v != "" {
			if _, err := time.Parse("2006-01-02", v); err != nil {
				writeFeedError(w, &BadRequestError{Reason: "dateFrom must be YYYY-MM-DD"})
				return
			}
			addFilter("date >= $%d", v)
		}
		if v := q.Get("dateTo"); v != "" {
			if _, err := time.Parse("2006-01-02", v); err != nil {
				writeFeedError(w, &BadRequestError{Reason: "dateTo must be YYYY-MM-DD"})
				return
			}
			addFilter("date <= $%d", v)
		}

		whereClause := ""
		if len(where) > 0 {
			whereClause = " WHERE " + strings.Join(where, " AND ")
		}

		total, err := utils.CountTotal(r.Context(), pool,
			"SELECT COUNT(*) FROM nexocorp.financial_transactions"+whereClause, args...)
		if err != nil {
			writeFeedError(w, &PersistenceError{Op: "count transactions", Err: err})
			return
		}
		params.SetPaginationStats(total)

		query := `
			SELECT external_id, connection_id, account_id, date, description,
			       amount, direction, type, status, balance, category, institution, segment_id
			FROM nexocorp.financial_transactions` + whereClause +
			fmt.Sprintf(" ORDER BY date DESC, external_id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		rows, err := pool.Query(r.Context(), query, append(args, params.Limit, params.Offset)...)
		if err != nil {
			writeFeedError(w, &PersistenceError{Op: "list transactions", Err: err})
			return
		}
		defer rows.Close()

		transactions := make([]CanonicalTransaction, 0, params.Limit)
		for rows.Next() {
			var tx CanonicalTransaction
			var date time.Time
			if err := rows.Scan(
				&tx.ExternalID, &tx.ConnectionID, &tx.AccountID, &date, &tx.Description,
				&tx.Amount, &tx.Direction, &tx.Type, &tx.Status, &tx.Balance,
				&tx.Category, &tx.Institution, &tx.SegmentID,
			); err != nil {
				writeFeedError(w, &PersistenceError{Op: "scan transaction", Err: err})
				return
			}
			tx.Date = date.Format("2006-01-02")
			transactions = append(transactions, tx)
		}
		if err := rows.Err(); err != nil {
			writeFeedError(w, &PersistenceError{Op: "iterate transactions", Err: err})
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"pagination":   params,
			"transactions": transactions,
		})
	}
}
