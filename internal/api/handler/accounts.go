package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/model"
)

// AccountHandler serves the chart of accounts.
type AccountHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *ledger.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// Register mounts the account routes on the given router group.
func (h *AccountHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/accounts")
	{
		a.GET("", h.ListAccounts)
		a.POST("", h.CreateAccount)
		a.GET("/:id", h.GetAccount)
		a.GET("/:id/balance", h.GetBalance)
	}
}

// ListAccounts handles GET /accounts. ?type= filters by account type.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	typ := model.AccountType(c.Query("type"))
	all := h.svc.Chart().List()
	out := make([]*model.Account, 0, len(all))
	for _, a := range all {
		if typ == "" || a.Type == typ {
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out, "count": len(out)})
}

// CreateAccount handles POST /accounts.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	acct, err := h.svc.Chart().Create(c.Request.Context(), req.toModel())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

// GetAccount handles GET /accounts/:id. The parameter may be an ID or a code.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	acct, ok := h.svc.Chart().Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	children := h.svc.Chart().Children(acct.ID)
	c.JSON(http.StatusOK, gin.H{"account": acct, "children": children})
}

// GetBalance handles GET /accounts/:id/balance?as_of=YYYY-MM-DD.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	acct, ok := h.svc.Chart().Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	asOf, ok := queryDate(c, "as_of", time.Now().UTC())
	if !ok {
		return
	}
	bal, err := h.svc.AccountBalance(c.Request.Context(), acct.ID, asOf)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

// queryDate parses an optional YYYY-MM-DD query parameter. On a malformed
// value it writes a 400 and returns false.
func queryDate(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		badRequest(c, name+" must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
