package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dedicated/internal/domain"
	"dedicated/internal/middleware"
	"dedicated/internal/service"
)

// WalletHandler handles wallet reads and the administrative ledger operations.
type WalletHandler struct {
	ledger *service.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// WalletResponse is the HTTP representation of a wallet.
type WalletResponse struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
	UpdatedAt string  `json:"updatedAt"`
}

// LedgerEntryResponse is the HTTP representation of a ledger entry.
type LedgerEntryResponse struct {
	ID                   string  `json:"id"`
	Direction            string  `json:"direction"`
	Amount               float64 `json:"amount"`
	BalanceAfter         float64 `json:"balanceAfter"`
	Description          string  `json:"description,omitempty"`
	TransactionType      string  `json:"transactionType"`
	ReferenceType        string  `json:"referenceType,omitempty"`
	ReferenceID          string  `json:"referenceId,omitempty"`
	FareAmount           float64 `json:"fareAmount,omitempty"`
	CommissionPercentage float64 `json:"commissionPercentage,omitempty"`
	RelatedEntryID       string  `json:"relatedEntryId,omitempty"`
	CreatedAt            string  `json:"createdAt"`
}

// SetCommissionRequest is the HTTP request body for changing the commission.
type SetCommissionRequest struct {
	Percentage *float64 `json:"percentage" binding:"required,gte=0,lte=100"`
}

// CorrectionResponse summarises a commission recalculation.
type CorrectionResponse struct {
	Percentage  float64               `json:"percentage"`
	Scanned     int                   `json:"scanned"`
	NetDelta    float64               `json:"netDelta"`
	Failed      int                   `json:"failed"`
	Corrections []LedgerEntryResponse `json:"corrections"`
}

// BackfillResponse summarises an earnings backfill.
type BackfillResponse struct {
	Percentage float64               `json:"percentage"`
	Skipped    int                   `json:"skipped"`
	Failed     int                   `json:"failed"`
	Created    []LedgerEntryResponse `json:"created"`
}

func toLedgerEntryResponses(entries []*domain.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:                   e.ID,
			Direction:            string(e.Direction),
			Amount:               e.Amount,
			BalanceAfter:         e.BalanceAfter,
			Description:          e.Description,
			TransactionType:      string(e.TransactionType),
			ReferenceType:        string(e.ReferenceType),
			ReferenceID:          e.ReferenceID,
			FareAmount:           e.FareAmount,
			CommissionPercentage: e.CommissionPercentage,
			RelatedEntryID:       e.RelatedEntryID,
			CreatedAt:            formatTime(e.CreatedAt),
		})
	}
	return out
}

// ownWallet rejects non-admin callers reading someone else's wallet.
func ownWallet(c *gin.Context) (string, bool) {
	userID := c.Param("userId")
	if middleware.CallerRole(c) != domain.UserRoleAdmin && middleware.CallerID(c) != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Insufficient permissions"})
		return "", false
	}
	return userID, true
}

// GetWallet handles GET /v1/wallets/:userId
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := ownWallet(c)
	if !ok {
		return
	}

	wallet, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WalletResponse{
		ID:        wallet.ID,
		UserID:    wallet.UserID,
		Balance:   wallet.Balance,
		Currency:  wallet.Currency,
		UpdatedAt: formatTime(wallet.UpdatedAt),
	})
}

// ListEntries handles GET /v1/wallets/:userId/entries
func (h *WalletHandler) ListEntries(c *gin.Context) {
	userID, ok := ownWallet(c)
	if !ok {
		return
	}

	page, okPage := queryInt(c, "page")
	limit, okLimit := queryInt(c, "limit")
	if !okPage || !okLimit {
		respondBadRequest(c, "page and limit must be integers")
		return
	}

	entries, err := h.ledger.Entries(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	page, limit = service.NormalizePage(page, limit)
	respondJSON(c, http.StatusOK, gin.H{
		"entries": toLedgerEntryResponses(entries),
		"page":    page,
		"limit":   limit,
	})
}

// VerifyWallet handles GET /v1/wallets/:userId/verify
func (h *WalletHandler) VerifyWallet(c *gin.Context) {
	rec, err := h.ledger.Verify(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"walletId":   rec.WalletID,
		"balance":    rec.Balance,
		"ledgerSum":  rec.LedgerSum,
		"consistent": rec.Consistent,
	})
}

// GetCommission handles GET /v1/admin/commission
func (h *WalletHandler) GetCommission(c *gin.Context) {
	pct, err := h.ledger.CommissionPercentage(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"percentage": pct})
}

// SetCommission handles POST /v1/admin/commission
func (h *WalletHandler) SetCommission(c *gin.Context) {
	var req SetCommissionRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.ledger.RecalculateCommission(c.Request.Context(), *req.Percentage)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CorrectionResponse{
		Percentage:  report.Percentage,
		Scanned:     report.Scanned,
		NetDelta:    report.NetDelta,
		Failed:      report.Failed,
		Corrections: toLedgerEntryResponses(report.Corrections),
	})
}

// BackfillEarnings handles POST /v1/admin/earnings/backfill
func (h *WalletHandler) BackfillEarnings(c *gin.Context) {
	report, err := h.ledger.Backfill(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BackfillResponse{
		Percentage: report.Percentage,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Created:    toLedgerEntryResponses(report.Created),
	})
}
