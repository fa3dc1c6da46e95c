// Package httpapi is the thin transport boundary over TaskEngine: it parses
// requests, reads the already-resolved acting principal from a header (spec
// §1 treats authentication as an external collaborator), calls into the
// engine, and translates apperrors categories to HTTP status codes. Grounded
// on the teacher's server/router/frontend echo-based service shape, minus
// the dropped Connect-RPC/grpc-gateway stack (see DESIGN.md).
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/taskgraph/engine"
	"github.com/hrygo/taskgraph/internal/apperrors"
	"github.com/hrygo/taskgraph/store"
)

// PrincipalHeader carries the acting user's id, resolved upstream of this
// service (spec §1: authentication is out of scope for the engine).
const PrincipalHeader = "X-Principal-Id"

// Service mounts the task/dependency HTTP surface onto an echo.Echo.
type Service struct {
	engine *engine.Engine
	store  *store.Store
}

func NewService(eng *engine.Engine, s *store.Store) *Service {
	return &Service{engine: eng, store: s}
}

// Register mounts every route under /api/v1.
func (s *Service) Register(e *echo.Echo) {
	e.Use(middleware.Recover())

	g := e.Group("/api/v1")
	g.POST("/projects/:project/tasks", s.createTask)
	g.PATCH("/tasks/:id", s.updateTask)
	g.POST("/tasks/:id/status", s.changeTaskStatus)
	g.GET("/tasks/:id", s.getTask)
	g.POST("/dependencies", s.createDependency)
	g.DELETE("/dependencies/:id", s.deleteDependency)
	g.GET("/projects/:project/graph", s.projectGraph)
	g.GET("/projects/:project/stats", s.taskStats)
	g.GET("/users/:user/stats", s.userTaskStats)
}

func (s *Service) getTask(c echo.Context) error {
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid task id: %w", err))
	}
	task, err := s.store.GetTask(c.Request().Context(), id)
	if err != nil {
		return writeError(c, apperrors.NotFoundf("task %d not found: %w", id, err))
	}
	return c.JSON(http.StatusOK, task)
}

type createTaskRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Assignee    *int32     `json:"assignee,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    int        `json:"priority"`
	Metadata    []byte     `json:"metadata,omitempty"`
}

func (s *Service) createTask(c echo.Context) error {
	project, err := parseInt64(c.Param("project"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid project id: %w", err))
	}
	actor, err := principal(c)
	if err != nil {
		return writeError(c, err)
	}

	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.Validationf("invalid request body: %w", err))
	}

	task, err := s.engine.CreateTask(c.Request().Context(), project, req.Name, actor, engine.CreateTaskParams{
		Description: req.Description,
		Assignee:    req.Assignee,
		Deadline:    req.Deadline,
		Priority:    store.Priority(req.Priority),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, task)
}

type updateTaskRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssigneeSet bool       `json:"assignee_set,omitempty"`
	Assignee    *int32     `json:"assignee,omitempty"`
	DeadlineSet bool       `json:"deadline_set,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
}

func (s *Service) updateTask(c echo.Context) error {
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid task id: %w", err))
	}
	actor, err := principal(c)
	if err != nil {
		return writeError(c, err)
	}

	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.Validationf("invalid request body: %w", err))
	}

	params := engine.UpdateTaskParams{Name: req.Name, Description: req.Description}
	if req.AssigneeSet {
		params.Assignee = &req.Assignee
	}
	if req.DeadlineSet {
		params.Deadline = &req.Deadline
	}
	if req.Priority != nil {
		p := store.Priority(*req.Priority)
		params.Priority = &p
	}

	task, err := s.engine.UpdateTask(c.Request().Context(), id, actor, params)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (s *Service) changeTaskStatus(c echo.Context) error {
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid task id: %w", err))
	}
	actor, err := principal(c)
	if err != nil {
		return writeError(c, err)
	}

	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.Validationf("invalid request body: %w", err))
	}

	result, err := s.engine.ChangeTaskStatus(c.Request().Context(), id, req.Status, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type createDependencyRequest struct {
	Project        int64  `json:"project"`
	Source         int64  `json:"source"`
	Target         int64  `json:"target"`
	DependencyType string `json:"dependency_type"`
	Description    string `json:"description"`
}

func (s *Service) createDependency(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return writeError(c, err)
	}

	var req createDependencyRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.Validationf("invalid request body: %w", err))
	}

	dep, err := s.engine.CreateDependency(c.Request().Context(), req.Project, req.Source, req.Target, req.DependencyType, req.Description, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dep)
}

func (s *Service) deleteDependency(c echo.Context) error {
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid dependency id: %w", err))
	}
	actor, err := principal(c)
	if err != nil {
		return writeError(c, err)
	}

	if err := s.engine.DeleteDependency(c.Request().Context(), id, actor); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Service) projectGraph(c echo.Context) error {
	project, err := parseInt64(c.Param("project"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid project id: %w", err))
	}
	view, err := s.engine.ProjectGraph(c.Request().Context(), project)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Service) taskStats(c echo.Context) error {
	project, err := parseInt64(c.Param("project"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid project id: %w", err))
	}
	stats, err := s.engine.TaskStats(c.Request().Context(), project)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Service) userTaskStats(c echo.Context) error {
	userID, err := parseInt64(c.Param("user"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid user id: %w", err))
	}
	stats, err := s.engine.UserTaskStats(c.Request().Context(), int32(userID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func principal(c echo.Context) (int32, error) {
	raw := c.Request().Header.Get(PrincipalHeader)
	if raw == "" {
		return 0, apperrors.Forbiddenf("missing %s header", PrincipalHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, apperrors.Validationf("invalid %s header: %w", PrincipalHeader, err)
	}
	return int32(id), nil
}

func parseInt64(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

// writeError renders err as a JSON error body with the HTTP status
// corresponding to its apperrors.Category.
func writeError(c echo.Context, err error) error {
	status := statusFor(apperrors.CategoryOf(err))
	return c.JSON(status, map[string]string{
		"error": err.Error(),
		"code":  apperrors.CodeOf(err),
	})
}

func statusFor(category apperrors.Category) int {
	switch category {
	case apperrors.Validation:
		return http.StatusBadRequest
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Forbidden:
		return http.StatusForbidden
	case apperrors.Conflict:
		return http.StatusConflict
	case apperrors.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
