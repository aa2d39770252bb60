package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"arbitrium/internal/dispatch"
	"arbitrium/internal/export"
	"arbitrium/internal/inventory"
	"arbitrium/internal/pricing"
	"arbitrium/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultPageSize = 24

// Reconciler is satisfied by *inventory.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, inventoryID uint) (*inventory.Result, error)
}

// JobQueue is satisfied by *dispatch.Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job dispatch.Job) (dispatch.Job, error)
	Subscribe(ctx context.Context) (<-chan dispatch.Event, error)
}

type APIHandler struct {
	store      *store.Store
	reconciler Reconciler
	queue      JobQueue
	log        *zap.Logger
}

func SetupRoutes(r *gin.RouterGroup, st *store.Store, reconciler Reconciler, queue JobQueue, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	handler := &APIHandler{
		store:      st,
		reconciler: reconciler,
		queue:      queue,
		log:        log.Named("api"),
	}

	r.GET("/health", handler.Health)

	accounts := r.Group("/accounts")
	{
		accounts.POST("", handler.CreateAccount)
		accounts.GET("", handler.ListAccounts)
		accounts.POST("/:id/reconcile", handler.Reconcile)
		accounts.POST("/:id/refresh-prices", handler.RefreshPrices)
		accounts.GET("/:id/dashboard", handler.Dashboard)
		accounts.GET("/:id/items", handler.ListHoldings)
		accounts.GET("/:id/export", handler.ExportHoldings)
		accounts.PUT("/:id/targets/:item_id", handler.SetTargetPrice)
	}

	r.GET("/items/:id/prices", handler.PriceHistory)
	r.POST("/prices/refresh-all", handler.RefreshAll)
	r.POST("/csmoney/pull", handler.CSMoneyPull)
	r.GET("/jobs/events", handler.JobEvents)

	return handler
}

func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createAccountRequest struct {
	Name        string `json:"name" binding:"required"`
	ProfileLink string `json:"profile_link" binding:"required"`
}

func (h *APIHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and profile_link are required"})
		return
	}
	acct, err := h.store.CreateAccount(c.Request.Context(), req.Name, req.ProfileLink)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 201, "data": acct})
}

func (h *APIHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.store.ListAccounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": accounts})
}

// Reconcile runs inventory reconciliation inline and returns its counters.
func (h *APIHandler) Reconcile(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.reconciler.Reconcile(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		h.log.Warn("reconcile failed", zap.Uint("inventory_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": res})
}

func (h *APIHandler) RefreshPrices(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetAccount(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.enqueue(c, dispatch.NewJob(dispatch.KindRefreshPrices, id))
}

func (h *APIHandler) RefreshAll(c *gin.Context) {
	h.enqueue(c, dispatch.NewJob(dispatch.KindRefreshAll, 0))
}

func (h *APIHandler) CSMoneyPull(c *gin.Context) {
	h.enqueue(c, dispatch.NewJob(dispatch.KindCSMoneyPull, 0))
}

func (h *APIHandler) enqueue(c *gin.Context, job dispatch.Job) {
	queued, err := h.queue.Enqueue(c.Request.Context(), job)
	if err != nil {
		h.log.Error("enqueue failed", zap.String("kind", string(job.Kind)), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": 202, "msg": "queued", "data": queued})
}

func (h *APIHandler) Dashboard(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	d, err := h.store.Dashboard(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": d})
}

func (h *APIHandler) ListHoldings(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	rows, total, err := h.store.HoldingRows(c.Request.Context(), id, page, defaultPageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{
		"items":     rows,
		"total":     total,
		"page":      page,
		"page_size": defaultPageSize,
	}})
}

// ExportHoldings streams every holding of the account as an xlsx file.
func (h *APIHandler) ExportHoldings(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	d, err := h.store.Dashboard(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, _, err := h.store.HoldingRows(ctx, id, 1, d.Holdings+1)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="holdings-%d.xlsx"`, id))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := export.WriteHoldings(c.Writer, d, rows); err != nil {
		h.log.Error("export failed", zap.Uint("inventory_id", id), zap.Error(err))
	}
}

type targetPriceRequest struct {
	TargetPrice string `json:"target_price" binding:"required"`
}

func (h *APIHandler) SetTargetPrice(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uintParam(c, "item_id")
	if !ok {
		return
	}
	var req targetPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_price is required"})
		return
	}
	price, parsed := pricing.Parse(req.TargetPrice)
	if !parsed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_price is not a number"})
		return
	}
	tp, err := h.store.SetTargetPrice(c.Request.Context(), id, itemID, price)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": tp})
}

func (h *APIHandler) PriceHistory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	ctx := c.Request.Context()
	if _, err := h.store.ItemByID(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	history, err := h.store.PriceHistory(ctx, id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": history})
}

// fail maps store errors onto status codes.
func (h *APIHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrInvalidTargetPrice),
		errors.Is(err, store.ErrInvalidProfileLink),
		errors.Is(err, store.ErrInvalidAccountInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}
