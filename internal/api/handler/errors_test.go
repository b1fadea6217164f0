package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
)

func TestRespondError_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("post JE-2026-0001: %w", model.ErrDraftChanged), http.StatusConflict},
		{fmt.Errorf("%w: je_1", model.ErrNotDraft), http.StatusConflict},
		{fmt.Errorf("%w: draft je_1", model.ErrNotFound), http.StatusNotFound},
		{model.ErrChainRace, http.StatusServiceUnavailable},
		{&model.ValidationError{Problems: []model.Problem{{Line: -1, Message: "no lines"}}}, http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/entries/je_1/post", nil)
		respondError(c, zap.NewNop(), tc.err)
		if w.Code != tc.want {
			t.Errorf("%v: got %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
