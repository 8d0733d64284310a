package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

// DecisionRequest is the body of a decision.
type DecisionRequest struct {
	// accept, reject or skip (any case)
	Decision string `json:"decision" binding:"required" example:"accept"`
}

// DecisionResponse reports a sent or replayed decision.
type DecisionResponse struct {
	ActionID string          `json:"action_id" example:"42"`
	Decision domain.Decision `json:"decision" swaggertype:"string" example:"Accept"`
	Replayed bool            `json:"replayed"`
}

// AnswerRequest is the body of an answer edit.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required" example:"Thanks, fixed in the next release."`
}

// Decide godoc
// @ID          decideAction
// @Summary     Accept, reject or skip an action
// @Description Posts a response push titled with the decision and deletes the original. A resend with the same Idempotency-Key replays the first result.
// @Tags        Actions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID"               example(mod-1)
// @Param       Access-Token     header  string  true  "Push API access token"
// @Param       Idempotency-Key  header  string  false "Client key for safe resends"
// @Param       id               path    string  true  "Action ID" example(42)
// @Param       body             body    handlers.DecisionRequest  true  "Decision"
//
// @Success     200  {object} handlers.DecisionResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown decision"
// @Failure     401  {object} handlers.ErrorResponse "Missing access token"
// @Failure     404  {object} handlers.ErrorResponse "Action not in feed"
// @Failure     502  {object} handlers.ErrorResponse "Push API rejected the response"
// @Router      /actions/{id}/decision [post]
func (h *Handlers) Decide(c *gin.Context) {
	actionID := c.Param("id")

	if r, replay := middleware.ReplayOf(c); replay {
		middleware.ObserveDecision(strings.ToLower(r.Decision), "replayed")
		ok(c, r.Status, DecisionResponse{ActionID: actionID, Decision: domain.Decision(r.Decision), Replayed: true})
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	decision, valid := domain.ParseDecision(req.Decision)
	if !valid {
		serviceError(c, services.ErrInvalidDecision, http.StatusBadRequest, ErrCodeBadRequest)
		return
	}

	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	if err := h.dispatch.Respond(ctx, uid, middleware.PushToken(c), actionID, decision); err != nil {
		var de *services.DispatchError
		if errors.As(err, &de) {
			middleware.ObserveDecision(decision.Verb(), "failed")
		}
		serviceError(c, err, http.StatusInternalServerError, ErrCodeDispatchFailed)
		return
	}
	middleware.ObserveDecision(decision.Verb(), "sent")

	if key, has := middleware.GetIdempotencyKey(c); has && h.recorder != nil {
		if err := h.recorder.RecordDecision(ctx, uid, actionID, key, string(decision), http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("action_id", actionID).Msg("could not record idempotency key")
		}
	}
	ok(c, http.StatusOK, DecisionResponse{ActionID: actionID, Decision: decision})
}

// UpdateAnswer godoc
// @ID          updateAnswer
// @Summary     Edit the generated answer
// @Description Re-posts the action's push with the answer line replaced, deletes the original and reloads the feed.
// @Tags        Actions
// @Accept      json
//
// @Param       X-User-ID     header  string  false "User ID"               example(mod-1)
// @Param       Access-Token  header  string  true  "Push API access token"
// @Param       id            path    string  true  "Action ID" example(42)
// @Param       body          body    handlers.AnswerRequest  true  "New answer"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Empty answer"
// @Failure     401  {object} handlers.ErrorResponse "Missing access token"
// @Failure     404  {object} handlers.ErrorResponse "Action not in feed"
// @Failure     502  {object} handlers.ErrorResponse "Push API rejected the edit"
// @Router      /actions/{id}/answer [put]
func (h *Handlers) UpdateAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Answer) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer required")
		return
	}
	err := h.dispatch.UpdateAnswer(c.Request.Context(), middleware.UserID(c), middleware.PushToken(c), c.Param("id"), req.Answer)
	if err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeDispatchFailed)
		return
	}
	noContent(c)
}

// DeletePush godoc
// @ID          deletePush
// @Summary     Delete a push
// @Description Admin tooling: deletes one push by iden and reloads the feed.
// @Tags        Pushes
//
// @Param       X-User-ID     header  string  false "User ID"               example(mod-1)
// @Param       Access-Token  header  string  true  "Push API access token"
// @Param       iden          path    string  true  "Push iden" example(ujpah72o0sjAoRtnM0jc)
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Missing access token"
// @Failure     404  {object} handlers.ErrorResponse "Push not found"
// @Failure     502  {object} handlers.ErrorResponse "Push API unavailable"
// @Router      /pushes/{iden} [delete]
func (h *Handlers) DeletePush(c *gin.Context) {
	err := h.dispatch.DeletePush(c.Request.Context(), middleware.UserID(c), middleware.PushToken(c), c.Param("iden"))
	if err != nil {
		serviceError(c, err, http.StatusBadGateway, ErrCodeDispatchFailed)
		return
	}
	noContent(c)
}
