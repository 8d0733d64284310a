package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/repo"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

// CreateHistoryRequest is the body of an admin history insert.
type CreateHistoryRequest struct {
	ActionID        int64               `json:"action_id" binding:"required" example:"42"`
	OriginalPost    domain.OriginalPost `json:"original_post"`
	GeneratedAnswer string              `json:"generated_answer" example:"Try clearing the cache first."`
	OriginalPostID  int64               `json:"original_post_id" example:"1001"`
	Status          string              `json:"status" binding:"required,oneof=posted skipped" example:"posted"`
}

func filterParam(c *gin.Context) (domain.Filter, bool) {
	f, valid := domain.ParseFilter(c.Query("filter"))
	if !valid {
		serviceError(c, services.ErrInvalidFilter, http.StatusBadRequest, ErrCodeBadRequest)
	}
	return f, valid
}

// GetHistory godoc
// @ID          getHistory
// @Summary     Load post history
// @Description Reconciles the local cache against the live feed, then serves the cached list of the filter or loads its first page. Supports weak ETag via If-None-Match.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID"                     example(mod-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"history:mod-1:all:25:25\")
// @Param       filter         query   string  false "View" Enums(all, posted, skipped) default(all)
//
// @Success     200  {object} services.HistoryView
// @Header      200  {string} ETag "Weak ETag of the filter's history"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Unknown filter"
// @Failure     500  {object} handlers.ErrorResponse "History store failure"
// @Router      /history [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	filter, valid := filterParam(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	// best effort; only the concrete service exposes its store
	if svc, isSvc := h.history.(*services.HistoryService); isSvc && svc.DB != nil {
		if count, top, err := repo.HistoryStats(ctx, svc.DB, uid, filter.Status()); err == nil {
			etag := fmt.Sprintf(`W/"history:%s:%s:%d:%d"`, uid, filter, count, top)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	view, err := h.history.LoadInitial(ctx, uid, filter)
	if err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeHistoryFailed)
		return
	}
	ok(c, http.StatusOK, view)
}

// MoreHistory godoc
// @ID          moreHistory
// @Summary     Load older history
// @Description Returns the next page after the filter's cursor, skipping records already shown in this session.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID" example(mod-1)
// @Param       filter     query   string  false "View" Enums(all, posted, skipped) default(all)
//
// @Success     200  {object} services.Page
// @Failure     400  {object} handlers.ErrorResponse "Unknown filter"
// @Failure     409  {object} handlers.ErrorResponse "Stored cursor no longer exists"
// @Failure     500  {object} handlers.ErrorResponse "History store failure"
// @Router      /history/more [get]
func (h *Handlers) MoreHistory(c *gin.Context) {
	filter, valid := filterParam(c)
	if !valid {
		return
	}
	page, err := h.history.LoadMore(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeHistoryFailed)
		return
	}
	ok(c, http.StatusOK, page)
}

// NewerHistory godoc
// @ID          newerHistory
// @Summary     Load newer history
// @Description Returns records above the highest cached action id of the filter.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID" example(mod-1)
// @Param       filter     query   string  false "View" Enums(all, posted, skipped) default(all)
//
// @Success     200  {object} services.Page
// @Failure     400  {object} handlers.ErrorResponse "Unknown filter"
// @Failure     500  {object} handlers.ErrorResponse "History store failure"
// @Router      /history/newer [get]
func (h *Handlers) NewerHistory(c *gin.Context) {
	filter, valid := filterParam(c)
	if !valid {
		return
	}
	page, err := h.history.LoadNewer(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeHistoryFailed)
		return
	}
	ok(c, http.StatusOK, page)
}

// CreateHistory godoc
// @ID          createHistory
// @Summary     Add a history record
// @Description Admin and demo tooling; the posting pipeline normally writes history.
// @Tags        History
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID" example(mod-1)
// @Param       body       body    handlers.CreateHistoryRequest  true  "Record"
//
// @Success     201  {object} domain.HistoryRecord
// @Failure     400  {object} handlers.ErrorResponse "Invalid record"
// @Failure     409  {object} handlers.ErrorResponse "Action id already recorded"
// @Failure     500  {object} handlers.ErrorResponse "History store failure"
// @Router      /history [post]
func (h *Handlers) CreateHistory(c *gin.Context) {
	var req CreateHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_id and status (posted|skipped) required")
		return
	}
	rec := &domain.HistoryRecord{
		ActionID:        req.ActionID,
		OriginalPost:    req.OriginalPost,
		GeneratedAnswer: req.GeneratedAnswer,
		OriginalPostID:  req.OriginalPostID,
		Status:          req.Status,
	}
	if err := h.history.AddRecord(c.Request.Context(), middleware.UserID(c), rec); err != nil {
		serviceError(c, err, http.StatusInternalServerError, ErrCodeHistoryFailed)
		return
	}
	ok(c, http.StatusCreated, rec)
}
