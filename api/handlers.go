package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kata-board/domain"
)

const (
	maxBodySize          = 1 << 20
	idempotencyKeyHeader = "Idempotency-Key"
	duplicateMessage     = "duplicate request"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, logger *log.Logger) {
	h := &handlers{svc: svc, auth: auth, deduper: deduper, log: logger}

	e.GET("/healthz", healthz)

	e.GET("/api/projects", h.listProjects)
	e.POST("/api/projects", h.createProject)
	e.GET("/api/projects/:pro", h.getProject)
	e.PUT("/api/projects/:pro", h.updateProject)
	e.DELETE("/api/projects/:pro", h.deleteProject)
	e.GET("/api/projects/:pro/board", h.getBoard)
	e.POST("/api/projects/:pro/moves", h.postMove)

	e.GET("/api/users", h.listUsers)
	e.POST("/api/users", h.createUser)
	e.PUT("/api/users/:cc", h.updateUser)
	e.DELETE("/api/users/:cc", h.deleteUser)
}

type handlers struct {
	svc     Services
	auth    Authenticator
	deduper Deduper
	log     *log.Logger
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) identify(c echo.Context) (domain.Actor, error) {
	return h.auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func unauthorized(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, envelope{Message: err.Error()})
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	return dec.Decode(dst)
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, envelope{Message: "invalid body"})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var perr *domain.PermissionError
	switch {
	case errors.As(err, &perr), errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProjectNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProjectExists), errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPersistFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response. Internal errors are logged and their text
// is not sent to the client.
func (h *handlers) fail(c echo.Context, err error, data any) error {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusBadGateway {
		msg = domain.ErrPersistFailed.Error()
	}
	if status == http.StatusInternalServerError {
		h.log.WithFields(log.Fields{"route": c.Path(), "error": err}).Error("request failed")
		msg = http.StatusText(status)
	}
	return c.JSON(status, envelope{Data: data, Message: msg})
}

func (h *handlers) listProjects(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	projects, err := h.svc.Projects.List(c.Request().Context(), actor, c.QueryParam("q"))
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: projects})
}

func (h *handlers) getProject(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	p, err := h.svc.Projects.Get(c.Request().Context(), actor, c.Param("pro"))
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: p})
}

func (h *handlers) createProject(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var p domain.Project
	if err := decodeBody(c, &p); err != nil {
		return badBody(c)
	}
	created, err := h.svc.Projects.Create(c.Request().Context(), actor, p)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusCreated, envelope{Data: created, Message: "project created"})
}

func (h *handlers) updateProject(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var upd domain.ProjectUpdate
	if err := decodeBody(c, &upd); err != nil {
		return badBody(c)
	}
	p, err := h.svc.Projects.Update(c.Request().Context(), actor, c.Param("pro"), upd)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: p, Message: "project updated"})
}

func (h *handlers) deleteProject(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	if err := h.svc.Projects.Delete(c.Request().Context(), actor, c.Param("pro")); err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Message: "project deleted"})
}

func (h *handlers) getBoard(c echo.Context) error {
	metrics, ctx := newRequestMetrics(c.Request().Context(), h.log, boardSpanName, boardRoute, boardEventName)
	c.SetRequest(c.Request().WithContext(ctx))
	var stageErr error
	defer func() {
		metrics.Log(c.Response().Status, stageErr)
	}()

	key := c.Param("pro")
	metrics.SetProject(key)

	authStart := time.Now()
	actor, authErr := h.identify(c)
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		stageErr = authErr
		return unauthorized(c, authErr)
	}
	metrics.SetRole(domain.NormalizeRole(actor.Role).String())

	start := time.Now()
	board, svcErr := h.svc.Boards.Board(ctx, actor, key)
	metrics.ObserveService(time.Since(start))
	if svcErr != nil {
		metrics.SetErrorStage(stageForError(svcErr))
		stageErr = svcErr
		return h.fail(c, svcErr, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: board})
}

func (h *handlers) postMove(c echo.Context) error {
	metrics, ctx := newRequestMetrics(c.Request().Context(), h.log, moveSpanName, moveRoute, moveEventName)
	c.SetRequest(c.Request().WithContext(ctx))
	var stageErr error
	defer func() {
		metrics.Log(c.Response().Status, stageErr)
	}()

	key := c.Param("pro")
	metrics.SetProject(key)

	authStart := time.Now()
	actor, err := h.identify(c)
	metrics.ObserveAuth(time.Since(authStart))
	if err != nil {
		metrics.SetErrorStage("auth")
		stageErr = err
		return unauthorized(c, err)
	}
	metrics.SetRole(domain.NormalizeRole(actor.Role).String())

	var ev domain.MoveEvent
	if err := decodeBody(c, &ev); err != nil {
		metrics.SetErrorStage("decode")
		stageErr = err
		return badBody(c)
	}

	scope := moveScope(actor.CC, key)
	idemKey := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
	recorded := false
	if idemKey != "" && h.deduper != nil {
		added, derr := h.deduper.Add(ctx, scope, idemKey)
		switch {
		case derr != nil:
			h.log.WithFields(log.Fields{"project": key, "error": derr}).Warn("idempotency check failed; applying move")
		case !added:
			metrics.SetDuplicate(true)
			return c.JSON(http.StatusOK, envelope{Data: moveResponse{Moved: false}, Message: duplicateMessage})
		default:
			recorded = true
		}
	}

	start := time.Now()
	res, err := h.svc.Boards.Move(ctx, actor, key, ev)
	metrics.ObserveService(time.Since(start))
	if err != nil {
		if recorded {
			h.forgetKey(scope, idemKey)
		}
		metrics.SetErrorStage(stageForError(err))
		stageErr = err
		var data any
		if errors.Is(err, domain.ErrPersistFailed) {
			data = moveResponse{Moved: false, Project: &res.Project}
		}
		return h.fail(c, err, data)
	}

	metrics.SetMoved(res.Moved)
	msg := "HU moved"
	if !res.Moved {
		msg = "no change"
	}
	return c.JSON(http.StatusOK, envelope{Data: moveResponse{Moved: res.Moved, Project: &res.Project}, Message: msg})
}

// forgetKey drops a recorded idempotency key after a failed move. It runs on
// a fresh context because the request context may already be cancelled.
func (h *handlers) forgetKey(scope, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.deduper.Remove(ctx, scope, key); err != nil {
		h.log.WithFields(log.Fields{"scope": scope, "key": key, "error": err}).Error("dedupe rollback failed")
	}
}

func stageForError(err error) string {
	switch statusForError(err) {
	case http.StatusForbidden:
		return "policy"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "persist"
	default:
		return "storage"
	}
}

func (h *handlers) listUsers(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	users, err := h.svc.Users.List(c.Request().Context(), actor, c.QueryParam("q"))
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: users})
}

func (h *handlers) createUser(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var nu domain.NewUser
	if err := decodeBody(c, &nu); err != nil {
		return badBody(c)
	}
	u, err := h.svc.Users.Create(c.Request().Context(), actor, nu)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusCreated, envelope{Data: u, Message: "user created"})
}

func (h *handlers) updateUser(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var upd domain.UserUpdate
	if err := decodeBody(c, &upd); err != nil {
		return badBody(c)
	}
	u, err := h.svc.Users.Update(c.Request().Context(), actor, c.Param("cc"), upd)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Data: u, Message: "user updated"})
}

func (h *handlers) deleteUser(c echo.Context) error {
	actor, err := h.identify(c)
	if err != nil {
		return unauthorized(c, err)
	}
	if err := h.svc.Users.Delete(c.Request().Context(), actor, c.Param("cc")); err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, envelope{Message: "user deleted"})
}
