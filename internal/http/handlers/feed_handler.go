package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/services"
	"github.com/tbourn/flashback-dashboard/internal/utils"
)

// ActionsResponse lists decoded action records.
type ActionsResponse struct {
	Actions []services.ActionView `json:"actions"`
	Total   int                   `json:"total"`
}

// GetFeed godoc
// @ID          getFeed
// @Summary     Load the push feed
// @Description Fetches the push feed once per session and returns its decoded action records with lifecycle state. Later calls serve the session copy.
// @Tags        Feed
// @Produce     json
//
// @Param       X-User-ID     header  string  false "User ID"               example(mod-1)
// @Param       Access-Token  header  string  true  "Push API access token"
// @Param       all           query   bool    false "Page through the whole feed" default(true)
//
// @Success     200  {object} services.FeedView
// @Failure     401  {object} handlers.ErrorResponse "Missing access token"
// @Failure     502  {object} handlers.ErrorResponse "Push API unavailable"
// @Router      /feed [get]
func (h *Handlers) GetFeed(c *gin.Context) { h.loadFeed(c, false) }

// RefreshFeed godoc
// @ID          refreshFeed
// @Summary     Refresh the push feed
// @Description Clears the session guard and fetches the feed again.
// @Tags        Feed
// @Produce     json
//
// @Param       X-User-ID     header  string  false "User ID"               example(mod-1)
// @Param       Access-Token  header  string  true  "Push API access token"
// @Param       all           query   bool    false "Page through the whole feed" default(true)
//
// @Success     200  {object} services.FeedView
// @Failure     401  {object} handlers.ErrorResponse "Missing access token"
// @Failure     502  {object} handlers.ErrorResponse "Push API unavailable"
// @Router      /feed/refresh [post]
func (h *Handlers) RefreshFeed(c *gin.Context) { h.loadFeed(c, true) }

func (h *Handlers) loadFeed(c *gin.Context, force bool) {
	all := utils.BoolDefault(c.Query("all"), true)
	view, err := h.feed.Load(c.Request.Context(), middleware.UserID(c), middleware.PushToken(c), all, force)
	if err != nil {
		serviceError(c, err, http.StatusBadGateway, ErrCodeFeedFailed)
		return
	}
	ok(c, http.StatusOK, view)
}

// ListActions godoc
// @ID          listActions
// @Summary     List action records
// @Description Returns the decoded records of the session feed with their lifecycle state, in feed order. Does not fetch.
// @Tags        Actions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"                   example(mod-1)
// @Param       limit      query   int     false "Maximum records (0 = all)" minimum(0) default(0)
//
// @Success     200  {object} handlers.ActionsResponse
// @Router      /actions [get]
func (h *Handlers) ListActions(c *gin.Context) {
	actions := h.feed.View(middleware.UserID(c)).Actions
	total := len(actions)
	if limit := utils.AtoiDefault(c.Query("limit"), 0); limit > 0 {
		actions = actions[:utils.Clamp(limit, 0, total)]
	}
	ok(c, http.StatusOK, ActionsResponse{Actions: actions, Total: total})
}

// RetryAction godoc
// @ID          retryAction
// @Summary     Retry a failed action
// @Description Moves a failed action back to pending so it can be answered again.
// @Tags        Actions
//
// @Param       X-User-ID  header  string  false "User ID"   example(mod-1)
// @Param       id         path    string  true  "Action ID" example(42)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Action not tracked"
// @Failure     409  {object} handlers.ErrorResponse "Action is not failed"
// @Router      /actions/{id}/retry [post]
func (h *Handlers) RetryAction(c *gin.Context) {
	if err := h.feed.Retry(middleware.UserID(c), c.Param("id")); err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeInternal)
		return
	}
	noContent(c)
}
