package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kaban-board/domain"
	"kaban-board/tasks"
)

// updateStatusMaxSize bounds the JSON body of a status-update call.
const updateStatusMaxSize = 1 << 16

const (
	tokenFormField  = "_token"
	tokenHeaderName = "X-Board-Token"
)

const genericErrorMessage = "something went wrong"

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, svc Service, tokens TokenService, logger *log.Logger) {
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/tasks")
	})
	e.GET("/tasks", getBoard(svc, tokens, logger))
	e.GET("/tasks/create", getCreateForm(tokens, logger))
	e.POST("/tasks/create", postCreate(svc, tokens, logger))
	e.GET("/tasks/edit/:id", getEditForm(svc, tokens, logger))
	e.POST("/tasks/edit", postEdit(svc, tokens, logger))
	e.GET("/tasks/confirm-delete/:id", getConfirmDelete(svc, tokens, logger))
	e.POST("/tasks/delete", postDelete(svc, tokens, logger))
	e.POST("/tasks/update-status", postUpdateStatus(svc, tokens, logger))
	e.GET("/healthz", healthz())
}

type boardPage struct {
	Columns []domain.Column
	Token   string
}

// taskForm carries raw submitted values so invalid input can be
// redisplayed exactly as the user typed it.
type taskForm struct {
	ID          int64
	Title       string
	Description string
	Status      string
	CreatedDate string
}

type formPage struct {
	Form     taskForm
	Errors   map[string]string
	Statuses []domain.TaskStatus
	Token    string
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		list, err := svc.List(ctx)
		if err != nil {
			logger.WithError(err).Error("list tasks")
			return c.String(http.StatusInternalServerError, genericErrorMessage)
		}
		token, err := tokens.Issue(ctx)
		if err != nil {
			logger.WithError(err).Error("issue token")
			return c.String(http.StatusInternalServerError, genericErrorMessage)
		}
		return c.Render(http.StatusOK, "board", boardPage{
			Columns: domain.Board(list),
			Token:   token,
		})
	}
}

func getCreateForm(tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return renderForm(c, tokens, logger, "create", taskForm{Status: string(domain.StatusBacklog)}, nil, http.StatusOK)
	}
}

func postCreate(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := verifyFormToken(c, tokens, logger); !ok {
			return err
		}
		form := readTaskForm(c)
		candidate, dateErr := form.toCandidate()
		if dateErr != nil {
			return renderForm(c, tokens, logger, "create", form, map[string]string{"createdDate": "Invalid date value."}, http.StatusOK)
		}
		_, err := svc.Create(c.Request().Context(), candidate)
		if err != nil {
			var verr tasks.ValidationError
			if errors.As(err, &verr) {
				return renderForm(c, tokens, logger, "create", form, verr, http.StatusOK)
			}
			logger.WithError(err).Error("create task")
			return c.String(http.StatusInternalServerError, genericErrorMessage)
		}
		return c.Redirect(http.StatusFound, "/tasks")
	}
}

func getEditForm(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		task, err := svc.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			logger.WithError(err).Error("load task")
			return c.String(http.StatusInternalServerError, genericErrorMessage)
		}
		return renderForm(c, tokens, logger, "edit", formFromTask(task), nil, http.StatusOK)
	}
}

func postEdit(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := verifyFormToken(c, tokens, logger); !ok {
			return err
		}
		form := readTaskForm(c)
		candidate, dateErr := form.toCandidate()
		if dateErr != nil {
			return renderForm(c, tokens, logger, "edit", form, map[string]string{"createdDate": "Invalid date value."}, http.StatusOK)
		}
		_, err := svc.Update(c.Request().Context(), candidate)
		if err != nil {
			var verr tasks.ValidationError
			switch {
			case errors.Is(err, tasks.ErrNotFound):
				return c.String(http.StatusNotFound, "task not found")
			case errors.As(err, &verr):
				return renderForm(c, tokens, logger, "edit", form, verr, http.StatusOK)
			default:
				logger.WithError(err).Error("update task")
				return c.String(http.StatusInternalServerError, genericErrorMessage)
			}
		}
		return c.Redirect(http.StatusFound, "/tasks")
	}
}

func getConfirmDelete(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		task, err := svc.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			logger.WithError(err).Error("load task")
			return c.String(http.StatusInternalServerError, genericErrorMessage)
		}
		return renderForm(c, tokens, logger, "confirm_delete", formFromTask(task), nil, http.StatusOK)
	}
}

func postDelete(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := verifyFormToken(c, tokens, logger); !ok {
			return err
		}
		// A malformed or missing id deletes nothing; the redirect still
		// lands on the board, matching the forgiving delete contract.
		if id, err := strconv.ParseInt(c.FormValue("id"), 10, 64); err == nil {
			if err := svc.Delete(c.Request().Context(), id); err != nil {
				logger.WithError(err).Error("delete task")
				return c.String(http.StatusInternalServerError, genericErrorMessage)
			}
		}
		return c.Redirect(http.StatusFound, "/tasks")
	}
}

type updateStatusRequest struct {
	TaskID int64  `json:"taskId"`
	Status string `json:"status"`
}

type updateStatusResponse struct {
	Message   string `json:"message"`
	TaskID    int64  `json:"taskId"`
	NewStatus string `json:"newStatus"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func postUpdateStatus(svc Service, tokens TokenService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newStatusRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		ok, tokenErr := tokens.Verify(ctx, c.Request().Header.Get(tokenHeaderName))
		if tokenErr != nil {
			metrics.SetErrorStage("token")
			logger.WithError(tokenErr).Error("verify token")
			err = c.JSON(http.StatusInternalServerError, messageResponse{Message: "An error occurred while updating the task status"})
			return err
		}
		if !ok {
			metrics.SetErrorStage("token")
			err = c.JSON(http.StatusForbidden, messageResponse{Message: "invalid anti-forgery token"})
			return err
		}

		decodeStart := time.Now()
		lr := io.LimitReader(c.Request().Body, updateStatusMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()
		var req updateStatusRequest
		decodeErr := dec.Decode(&req)
		metrics.ObserveDecode(time.Since(decodeStart))
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, messageResponse{Message: "invalid body"})
			return err
		}
		metrics.SetTaskID(req.TaskID)

		updateStart := time.Now()
		task, updateErr := svc.UpdateStatus(ctx, req.TaskID, req.Status)
		metrics.ObserveUpdate(time.Since(updateStart))
		if updateErr != nil {
			switch {
			case errors.Is(updateErr, tasks.ErrNotFound):
				metrics.SetErrorStage("not_found")
				err = c.JSON(http.StatusNotFound, messageResponse{Message: "Task not found"})
			case errors.Is(updateErr, tasks.ErrInvalidStatus):
				metrics.SetErrorStage("invalid_status")
				err = c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid status value"})
			default:
				metrics.SetErrorStage("storage")
				logger.WithError(updateErr).Error("update status")
				err = c.JSON(http.StatusInternalServerError, messageResponse{Message: "An error occurred while updating the task status"})
			}
			return err
		}

		metrics.SetNewStatus(string(task.Status))
		err = c.JSON(http.StatusOK, updateStatusResponse{
			Message:   "Task status updated successfully",
			TaskID:    task.ID,
			NewStatus: string(task.Status),
		})
		return err
	}
}

// verifyFormToken checks the submitted anti-forgery token and writes the
// rejection response itself. Callers must stop when ok is false.
func verifyFormToken(c echo.Context, tokens TokenService, logger *log.Logger) (bool, error) {
	ok, err := tokens.Verify(c.Request().Context(), c.FormValue(tokenFormField))
	if err != nil {
		logger.WithError(err).Error("verify token")
		return false, c.String(http.StatusInternalServerError, genericErrorMessage)
	}
	if !ok {
		return false, c.String(http.StatusForbidden, "invalid anti-forgery token")
	}
	return true, nil
}

func renderForm(c echo.Context, tokens TokenService, logger *log.Logger, name string, form taskForm, errs map[string]string, status int) error {
	token, err := tokens.Issue(c.Request().Context())
	if err != nil {
		logger.WithError(err).Error("issue token")
		return c.String(http.StatusInternalServerError, genericErrorMessage)
	}
	return c.Render(status, name, formPage{
		Form:     form,
		Errors:   errs,
		Statuses: domain.Statuses(),
		Token:    token,
	})
}

func readTaskForm(c echo.Context) taskForm {
	form := taskForm{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Status:      c.FormValue("status"),
		CreatedDate: c.FormValue("createdDate"),
	}
	if id, err := strconv.ParseInt(c.FormValue("id"), 10, 64); err == nil {
		form.ID = id
	}
	return form
}

func formFromTask(t domain.Task) taskForm {
	return taskForm{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedDate: t.CreatedDate.Format("2006-01-02"),
	}
}

func (f taskForm) toCandidate() (domain.Task, error) {
	candidate := domain.Task{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Status:      domain.TaskStatus(f.Status),
	}
	if f.CreatedDate != "" {
		created, err := parseCreatedDate(f.CreatedDate)
		if err != nil {
			return candidate, err
		}
		candidate.CreatedDate = created
	}
	return candidate, nil
}

func parseCreatedDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if created, err := time.Parse(layout, raw); err == nil {
			return created.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
