package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/ledger"
)

// ReportHandler serves financial statements derived from posted entries.
type ReportHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(svc *ledger.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, logger: logger}
}

// Register mounts the report routes on the given router group.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/reports")
	{
		r.GET("/trial-balance", h.TrialBalance)
		r.GET("/balance-sheet", h.BalanceSheet)
		r.GET("/profit-and-loss", h.ProfitAndLoss)
		r.GET("/cash-flow", h.CashFlow)
	}
}

// TrialBalance handles GET /reports/trial-balance?as_of=.
func (h *ReportHandler) TrialBalance(c *gin.Context) {
	asOf, ok := queryDate(c, "as_of", time.Now().UTC())
	if !ok {
		return
	}
	tb, err := h.svc.TrialBalance(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tb)
}

// BalanceSheet handles GET /reports/balance-sheet?as_of=.
func (h *ReportHandler) BalanceSheet(c *gin.Context) {
	asOf, ok := queryDate(c, "as_of", time.Now().UTC())
	if !ok {
		return
	}
	bs, err := h.svc.BalanceSheet(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bs)
}

// ProfitAndLoss handles GET /reports/profit-and-loss?from=&to=.
func (h *ReportHandler) ProfitAndLoss(c *gin.Context) {
	from, to, ok := period(c)
	if !ok {
		return
	}
	pl, err := h.svc.ProfitAndLoss(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pl)
}

// CashFlow handles GET /reports/cash-flow?from=&to=.
func (h *ReportHandler) CashFlow(c *gin.Context) {
	from, to, ok := period(c)
	if !ok {
		return
	}
	cf, err := h.svc.CashFlow(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cf)
}

// period reads from and to. from is required; to defaults to today.
func period(c *gin.Context) (time.Time, time.Time, bool) {
	if c.Query("from") == "" {
		badRequest(c, "from is required")
		return time.Time{}, time.Time{}, false
	}
	from, ok := queryDate(c, "from", time.Time{})
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := queryDate(c, "to", time.Now().UTC())
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
