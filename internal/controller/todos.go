package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"todo-api/internal/service"
	"todo-api/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
	Count   *int   `json:"count,omitempty"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Handler serves the /api surface on top of the todo service.
type Handler struct {
	svc    *service.Service
	probes []probe
	debug  bool
}

// New returns a Handler. With debug set, 500 responses carry the underlying error.
func New(svc *service.Service, debug bool) *Handler {
	return &Handler{svc: svc, debug: debug}
}

// ListTodos handles GET /api/todos.
func (h *Handler) ListTodos(c *gin.Context) {
	todos, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch todos")
		return
	}
	count := len(todos)
	c.JSON(http.StatusOK, successResponse{Success: true, Data: todos, Count: &count})
}

// GetTodo handles GET /api/todos/:id.
func (h *Handler) GetTodo(c *gin.Context) {
	todo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to fetch todo")
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Data: todo})
}

// CreateTodo handles POST /api/todos. A repeated Idempotency-Key returns the
// todo created by the first request.
func (h *Handler) CreateTodo(c *gin.Context) {
	fields, ok := h.bindTodo(c)
	if !ok {
		return
	}
	todo, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		Title:          fields.Title,
		Completed:      fields.Completed,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	if err != nil {
		h.fail(c, err, "Failed to create todo")
		return
	}
	c.JSON(http.StatusCreated, successResponse{Success: true, Message: "Todo created successfully", Data: todo})
}

// UpdateTodo handles PUT /api/todos/:id.
func (h *Handler) UpdateTodo(c *gin.Context) {
	id := c.Param("id")
	if _, err := service.ParseID(id); err != nil {
		h.fail(c, err, "Failed to update todo")
		return
	}
	fields, ok := h.bindTodo(c)
	if !ok {
		return
	}
	todo, err := h.svc.Update(c.Request.Context(), id, service.UpdateInput{
		Title:     fields.Title,
		Completed: fields.Completed,
	})
	if err != nil {
		h.fail(c, err, "Failed to update todo")
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Todo updated successfully", Data: todo})
}

// DeleteTodo handles DELETE /api/todos/:id and echoes the deleted todo.
func (h *Handler) DeleteTodo(c *gin.Context) {
	todo, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to delete todo")
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Todo deleted successfully", Data: todo})
}

func (h *Handler) bindTodo(c *gin.Context) (todoFields, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return todoFields{}, false
	}
	fields, err := decodeTodoBody(raw)
	if err != nil {
		var be *bodyError
		errors.As(err, &be)
		logger.Debug(c.Request.Context(), "Rejected request body", "error", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body", Message: be.Detail})
		return todoFields{}, false
	}
	return fields, true
}

// fail writes the response for a service error. Anything outside the
// service taxonomy is a 500 with failure as the error text.
func (h *Handler) fail(c *gin.Context, err error, failure string) {
	var (
		argErr *service.ArgumentError
		valErr *service.ValidationError
	)
	switch {
	case errors.As(err, &argErr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: argErr.Message})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Validation failed", Details: valErr.Violations})
	case errors.Is(err, service.ErrNoFieldsToUpdate):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No valid fields to update"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "Todo not found"})
	default:
		logger.Error(c.Request.Context(), failure, "error", err)
		resp := errorResponse{Error: failure}
		if h.debug {
			resp.Message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
	}
}
