package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/etow/task-tracker/board"
	"github.com/etow/task-tracker/domain"
	"github.com/etow/task-tracker/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, auth Authenticator, deduper Deduper, sink EventSink, log *log.Logger) {
	e.GET("/api/board", getBoard(boards, auth, log))
	e.POST("/api/tasks", postTask(boards, auth, deduper))
	e.PUT("/api/tasks/order", putTaskOrder(boards, auth))
	e.PUT("/api/tasks/:id", putTask(boards, auth))
	e.DELETE("/api/tasks/:id", deleteTask(boards, auth))
	e.PUT("/api/board/editing", putEditing(boards, auth))
	e.GET("/api/tasks/:id/activity", getTaskActivity(boards, auth))
	e.GET("/healthz", healthz())

	initEventSender(sink, log)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		loadStart := time.Now()
		store, loadErr := boards.Board(ctx, userID)
		metrics.ObserveLoad(time.Since(loadStart))
		if loadErr != nil {
			metrics.SetErrorStage("load")
			err = writeError(c, loadErr)
			return err
		}

		resp := boardResponse{
			Categories: store.Categories(),
			Tasks:      store.TasksByCategory(),
		}
		metrics.SetCategoriesReturned(len(resp.Categories))
		total := 0
		for _, bucket := range resp.Tasks {
			total += len(bucket)
		}
		metrics.SetTasksReturned(total)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(boards Boards, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var payload taskPayload
		if err := decodeBody(c.Request().Body, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if payload.Category == "" {
			return c.String(http.StatusBadRequest, "category is required")
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if idemKey != "" && deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, idemKey)
			if dedupeErr != nil {
				c.Logger().Errorf("dedupe check failed: %v", dedupeErr)
			} else if !added {
				return c.String(http.StatusConflict, "duplicate request")
			}
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		created, err := store.CreateTask(ctx, payload.Task)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			return writeError(c, err)
		}

		publishTaskEvents(userID, domain.TaskCreated, created)
		return c.JSON(http.StatusCreated, created)
	}
}

func putTaskOrder(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var payload reorderPayload
		if err := decodeBody(c.Request().Body, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if payload.Category == "" {
			return c.String(http.StatusBadRequest, "category is required")
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		reordered, err := store.ReorderTasks(ctx, payload.Tasks, payload.Category)
		if err != nil {
			return writeError(c, err)
		}

		publishTaskEvents(userID, domain.TaskReordered, reordered...)
		return c.JSON(http.StatusOK, reordered)
	}
}

func putTask(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var payload taskPayload
		if err := decodeBody(c.Request().Body, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		payload.Task.ID = c.Param("id")
		if payload.Category == "" {
			return c.String(http.StatusBadRequest, "category is required")
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		updated, err := store.UpdateTask(ctx, payload.Task, payload.PrevCategory)
		if err != nil {
			return writeError(c, err)
		}

		publishTaskEvents(userID, domain.TaskUpdated, updated)
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		id := c.Param("id")
		category := c.QueryParam("category")
		if category == "" {
			return c.String(http.StatusBadRequest, "category is required")
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		task, ok := store.TaskByID(id)
		if !ok {
			return c.String(http.StatusNotFound, storage.ErrItemNotFound.Error())
		}

		if err := store.DeleteTask(ctx, task, category); err != nil {
			return writeError(c, err)
		}

		publishTaskEvents(userID, domain.TaskDeleted, task)
		return c.NoContent(http.StatusNoContent)
	}
}

func putEditing(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var payload editPayload
		if err := decodeBody(c.Request().Body, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		if payload.TaskID == nil {
			store.SetTaskToEdit(nil)
			return c.NoContent(http.StatusNoContent)
		}

		task, ok := store.TaskByID(*payload.TaskID)
		if !ok {
			return c.String(http.StatusNotFound, storage.ErrItemNotFound.Error())
		}
		store.SetTaskToEdit(&task)
		return c.NoContent(http.StatusNoContent)
	}
}

func getTaskActivity(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		store, err := boards.Board(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}

		task, ok := store.TaskByID(c.Param("id"))
		if !ok {
			return c.String(http.StatusNotFound, storage.ErrItemNotFound.Error())
		}

		now := time.Now().UnixMilli()
		elapsed := make(map[string]string, len(task.Activity))
		for category, intervals := range task.Activity {
			elapsed[category] = domain.ElapsedTime(intervals, now)
		}
		return c.JSON(http.StatusOK, activityResponse{TaskID: task.ID, Elapsed: elapsed})
	}
}

func decodeBody(body io.Reader, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, taskRequestMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeError maps persistence failures to HTTP responses. By the time a
// mutation error reaches here the store has already rolled back.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrItemNotFound), errors.Is(err, storage.ErrCollectionNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrUnknownCategory):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
