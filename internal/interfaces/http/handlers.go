package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// UserIDHeader carries the acting identity; authentication happens upstream
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// dateLayout is the wire format of calendar dates
const dateLayout = "2006-01-02"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine         workflow.WorkflowEngine
	requestService service.RequestService
	health         HealthFunc
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.WorkflowEngine,
	requestService service.RequestService,
	health HealthFunc,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:         engine,
		requestService: requestService,
		health:         health,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Field     string      `json:"field,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DraftBody holds editable request fields. Omitted fields are left unchanged.
type DraftBody struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
	Amount       *decimal.Decimal `json:"amount"`
	ExpenseDate  *string          `json:"expense_date"` // YYYY-MM-DD
	CostCenterID *string          `json:"cost_center_id"`
	ReceiptRefs  []string         `json:"receipt_refs"`
}

// TransitionBody is the payload of POST /api/requests/:id/transitions
type TransitionBody struct {
	Action          string     `json:"action" binding:"required"`
	Comment         string     `json:"comment"`
	PaymentMethod   string     `json:"payment_method"`
	PaymentDate     string     `json:"payment_date"` // YYYY-MM-DD
	PaymentProofRef string     `json:"payment_proof_ref"`
	Draft           *DraftBody `json:"draft"`
}

// PageQuery represents paging query parameters
type PageQuery struct {
	Submitter string `form:"submitter"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// requireUser rejects API calls without an acting identity
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing " + UserIDHeader + " header",
			})
			return
		}
		if err := utils.ValidateUserID(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   "dependency unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body DraftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	fields, err := body.toFields()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	req, err := h.engine.CreateDraft(c.Request.Context(), c.GetString(userIDKey), fields)
	if err != nil {
		h.writeError(c, "Failed to create request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    req,
	})
}

// ListRequests handles GET /api/requests?submitter=me
func (h *Handlers) ListRequests(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if q.Submitter != "" && q.Submitter != "me" {
		badRequest(c, "only submitter=me is supported")
		return
	}

	reqs, err := h.requestService.ListMine(c.Request.Context(), c.GetString(userIDKey), q.Limit, max(q.Offset, 0))
	if err != nil {
		h.writeError(c, "Failed to list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    reqs,
	})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requestService.GetRequest(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get request", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    req,
	})
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Same visibility as the request itself
	if _, err := h.requestService.GetRequest(ctx, c.GetString(userIDKey), id); err != nil {
		h.writeError(c, "Failed to get request", err)
		return
	}

	entries, err := h.engine.History(ctx, id)
	if err != nil {
		h.writeError(c, "Failed to get history", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    entries,
	})
}

// GetActions handles GET /api/requests/:id/actions
func (h *Handlers) GetActions(c *gin.Context) {
	actions, err := h.engine.AvailableActions(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		h.writeError(c, "Failed to list actions", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    actions,
	})
}

// ApplyTransition handles POST /api/requests/:id/transitions
func (h *Handlers) ApplyTransition(c *gin.Context) {
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	tr, err := body.toTransition(c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	h.logger.Info("Applying transition",
		"request_id", tr.RequestID,
		"action", tr.Action,
		"actor_id", tr.ActorID)

	req, err := h.engine.ApplyTransition(c.Request.Context(), tr)
	if err != nil {
		h.writeError(c, "Transition failed", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    req,
	})
}

// ManagerQueue handles GET /api/queues/manager
func (h *Handlers) ManagerQueue(c *gin.Context) {
	h.queue(c, h.requestService.ManagerQueue)
}

// FinanceQueue handles GET /api/queues/finance
func (h *Handlers) FinanceQueue(c *gin.Context) {
	h.queue(c, h.requestService.FinanceQueue)
}

type queueFunc func(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error)

func (h *Handlers) queue(c *gin.Context, list queueFunc) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	reqs, err := list(c.Request.Context(), c.GetString(userIDKey), q.Limit, max(q.Offset, 0))
	if err != nil {
		h.writeError(c, "Failed to load queue", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    reqs,
	})
}

// writeError maps workflow errors onto HTTP statuses
func (h *Handlers) writeError(c *gin.Context, msg string, err error) {
	var guardErr *domainwf.GuardError

	switch {
	case errors.As(err, &guardErr):
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error(), Field: guardErr.Field})
	case errors.Is(err, domainwf.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "request not found"})
	case errors.Is(err, domainwf.ErrUnauthorized):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "not permitted"})
	case errors.Is(err, domainwf.ErrConflict):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error(), Retryable: true})
	case errors.Is(err, domainwf.ErrIllegalTransition):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, domainwf.ErrInvalidAction), errors.Is(err, domainwf.ErrInvalidState):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error(msg, "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

func (b *DraftBody) toFields() (entity.DraftFields, error) {
	fields := entity.DraftFields{
		Title:        sanitized(b.Title),
		Description:  sanitized(b.Description),
		Amount:       b.Amount,
		CostCenterID: b.CostCenterID,
		ReceiptRefs:  b.ReceiptRefs,
	}
	if b.Category != nil {
		category := entity.Category(*b.Category)
		fields.Category = &category
	}
	if b.ExpenseDate != nil {
		d, err := parseDate("expense_date", *b.ExpenseDate)
		if err != nil {
			return entity.DraftFields{}, err
		}
		fields.ExpenseDate = d
	}
	return fields, nil
}

func (b *TransitionBody) toTransition(requestID, actorID string) (workflow.TransitionRequest, error) {
	action, err := domainwf.ParseAction(b.Action)
	if err != nil {
		return workflow.TransitionRequest{}, err
	}

	tr := workflow.TransitionRequest{
		RequestID:       requestID,
		Action:          action,
		ActorID:         actorID,
		Comment:         utils.SanitizeString(b.Comment),
		PaymentMethod:   b.PaymentMethod,
		PaymentProofRef: b.PaymentProofRef,
	}
	if b.PaymentDate != "" {
		if tr.PaymentDate, err = parseDate("payment_date", b.PaymentDate); err != nil {
			return workflow.TransitionRequest{}, err
		}
	}
	if b.Draft != nil {
		fields, err := b.Draft.toFields()
		if err != nil {
			return workflow.TransitionRequest{}, err
		}
		tr.Draft = &fields
	}
	return tr, nil
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	clean := utils.SanitizeString(*s)
	return &clean
}

func parseDate(field, value string) (*time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}
