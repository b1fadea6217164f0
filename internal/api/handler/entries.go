package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/model"
)

// EntryView is a journal entry as returned by the API.
type EntryView struct {
	Status model.Status `json:"status"`
	Draft  *model.Draft  `json:"draft,omitempty"`
	Posted *model.Posted `json:"posted,omitempty"`
}

func draftView(d *model.Draft) EntryView   { return EntryView{Status: d.Status(), Draft: d} }
func postedView(p *model.Posted) EntryView { return EntryView{Status: p.Status(), Posted: p} }

// EntryHandler serves the journal entry lifecycle.
type EntryHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(svc *ledger.Service, logger *zap.Logger) *EntryHandler {
	return &EntryHandler{svc: svc, logger: logger}
}

// Register mounts the entry routes on the given router group.
func (h *EntryHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/entries")
	{
		e.POST("", h.CreateEntry)
		e.GET("", h.ListEntries)
		e.GET("/:id", h.GetEntry)
		e.PATCH("/:id", h.UpdateEntry)
		e.DELETE("/:id", h.DeleteEntry)
		e.POST("/:id/validate", h.ValidateEntry)
		e.POST("/:id/post", h.PostEntry)
		e.POST("/:id/void", h.VoidEntry)
	}
}

// CreateEntry handles POST /entries and stores a new draft.
func (h *EntryHandler) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.CreateDraft(c.Request.Context(), ledger.CreateDraftParams{
		Date:        date,
		Description: req.Description,
		Lines:       resolveLines(h.svc.Chart(), req.Lines),
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, draftView(d))
}

// ListEntries handles GET /entries?status=draft|posted.
// Posted entries page by sequence with ?from=; drafts by ?offset=.
func (h *EntryHandler) ListEntries(c *gin.Context) {
	ctx := c.Request.Context()
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	switch c.DefaultQuery("status", string(model.StatusPosted)) {
	case string(model.StatusDraft):
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if offset < 0 {
			offset = 0
		}
		drafts, err := h.svc.ListDrafts(ctx, limit, offset)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		out := make([]EntryView, len(drafts))
		for i, d := range drafts {
			out[i] = draftView(d)
		}
		c.JSON(http.StatusOK, gin.H{"entries": out, "count": len(out)})
	case string(model.StatusPosted):
		from, _ := strconv.ParseInt(c.DefaultQuery("from", "1"), 10, 64)
		posted, err := h.svc.ListPosted(ctx, from, limit)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		out := make([]EntryView, len(posted))
		for i, p := range posted {
			out[i] = postedView(p)
		}
		c.JSON(http.StatusOK, gin.H{"entries": out, "count": len(out)})
	default:
		badRequest(c, "status must be draft or posted")
	}
}

// GetEntry handles GET /entries/:id. Posted entries are looked up first.
func (h *EntryHandler) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if p, err := h.svc.GetPosted(ctx, id); err == nil {
		c.JSON(http.StatusOK, postedView(p))
		return
	}
	d, err := h.svc.GetDraft(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, draftView(d))
}

// UpdateEntry handles PATCH /entries/:id. Drafts only.
func (h *EntryHandler) UpdateEntry(c *gin.Context) {
	var req UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	params := ledger.UpdateDraftParams{
		Description: req.Description,
		Lines:       resolveLines(h.svc.Chart(), req.Lines),
	}
	if req.Date != nil {
		d, err := parseOptionalDate(*req.Date)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		params.Date = &d
	}
	d, err := h.svc.UpdateDraft(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, draftView(d))
}

// DeleteEntry handles DELETE /entries/:id. Drafts only.
func (h *EntryHandler) DeleteEntry(c *gin.Context) {
	if err := h.svc.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ValidateEntry handles POST /entries/:id/validate as a dry run of posting.
func (h *EntryHandler) ValidateEntry(c *gin.Context) {
	if err := h.svc.ValidateDraft(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// PostEntry handles POST /entries/:id/post.
func (h *EntryHandler) PostEntry(c *gin.Context) {
	p, err := h.svc.Post(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, postedView(p))
}

// VoidEntry handles POST /entries/:id/void by posting a reversal.
func (h *EntryHandler) VoidEntry(c *gin.Context) {
	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	params, err := req.toParams()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	rev, err := h.svc.Void(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, postedView(rev))
}
