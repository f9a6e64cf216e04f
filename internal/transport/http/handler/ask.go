package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"weekly-assistant/internal/app"
	"weekly-assistant/internal/transport/http/middleware"
	"weekly-assistant/internal/transport/http/response"
)

const msgNoQuestion = "No question provided"

type Asker interface {
	Ask(ctx context.Context, question string) (*app.AskResult, error)
}

type AskHandler struct {
	askService Asker
}

type AskRequest struct {
	Question string `json:"question"`
}

func NewAskHandler(askService Asker) *AskHandler {
	return &AskHandler{askService: askService}
}

// Ask answers one question.
//
//	200 {"answer": "...", "sources": ["Name@week", ...]}
//	400 {"error": "No question provided"}   missing, non-string or blank question
//	500 {"error": "<store message>"}        similarity store failure
//	502 {"error": "<stage> failed"}         embedding, name lookup or completion failure
func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		response.Error(c, http.StatusBadRequest, msgNoQuestion)
		return
	}

	result, err := h.askService.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *AskHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, app.ErrInvalidInput) {
		response.Error(c, http.StatusBadRequest, msgNoQuestion)
		return
	}

	requestID := middleware.GetRequestID(c)
	var stageErr *app.StageError
	if !errors.As(err, &stageErr) {
		log.Printf("ask failed request_id=%s: %v", requestID, err)
		response.Error(c, http.StatusInternalServerError, "ask failed")
		return
	}

	log.Printf("ask failed request_id=%s stage=%s: %v", requestID, stageErr.Stage, stageErr.Err)
	switch stageErr.Stage {
	case app.StageRetrieve:
		response.Error(c, http.StatusInternalServerError, stageErr.Err.Error())
	default:
		response.Error(c, http.StatusBadGateway, stageErr.Stage+" failed")
	}
}
