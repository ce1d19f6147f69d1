package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/drag"
	"taskboard/view"
)

// Deps groups what the HTTP surface needs. Auth may be nil, in which case
// every request belongs to the local user.
type Deps struct {
	Board    Board
	Profiles Profiles
	Drag     DragController
	Deduper  board.Deduper
	Auth     Authenticator
	Logger   *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.JSONSerializer = sonicSerializer{}

	e.GET("/healthz", healthz(d.Board))

	g := e.Group("/api", requestMetricsMiddleware(d.Logger), requireUser(d.Auth))
	g.GET("/board", getBoard(d.Board))
	g.GET("/counts", getCounts(d.Board))
	g.GET("/search", getSearch(d.Board))
	g.GET("/reminders", getReminders(d.Board))

	g.POST("/tasks", postTask(d.Board))
	g.PUT("/tasks/:id", putTask(d.Board))
	g.DELETE("/tasks/:id", deleteTask(d.Board))
	g.DELETE("/columns/:id/tasks", deleteColumnTasks(d.Board))
	g.POST("/tasks/:id/move", postMove(d.Board))
	g.POST("/commands", postCommands(d.Board, d.Deduper, d.Logger))

	g.GET("/drag", getDrag(d.Drag))
	g.POST("/drag", postDragStart(d.Drag))
	g.POST("/drag/over", postDragOver(d.Drag))
	g.POST("/drag/leave", postDragLeave(d.Drag))
	g.POST("/drag/drop", postDrop(d.Drag))
	g.DELETE("/drag", deleteDrag(d.Drag))

	g.GET("/profile", getProfile(d.Profiles))
	g.PUT("/profile", putProfile(d.Profiles))

	e.GET("/stream", stream(d.Board, d.Logger), requireUser(d.Auth))
}

func healthz(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.Snapshot().Check(); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

// writeError maps core errors to status codes.
func writeError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		setErrorStage(c, "validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Field: ve.Field, Error: ve.Message})
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		setErrorStage(c, "not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Error: nf.Error()})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}
	setErrorStage(c, "internal")
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func setErrorStage(c echo.Context, stage string) {
	if m := metricsFrom(c); m != nil {
		m.SetErrorStage(stage)
	}
}

func setTasksReturned(c echo.Context, n int) {
	if m := metricsFrom(c); m != nil {
		m.SetTasksReturned(n)
	}
}

// bindBody decodes a JSON body with unknown fields rejected.
func bindBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		setErrorStage(c, "decode")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

func getBoard(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := b.Snapshot()
		var cols []view.Column
		switch c.QueryParam("sorted") {
		case "":
			cols = make([]view.Column, 0, len(snap.Columns))
			for _, col := range snap.Columns {
				cols = append(cols, view.Column{ID: col.ID, Title: col.Title, Count: len(col.Tasks), Tasks: col.Tasks})
			}
		case "priority":
			cols = view.Columns(snap)
		default:
			setErrorStage(c, "invalid_sort")
			return c.String(http.StatusBadRequest, "invalid sort")
		}
		counts := view.Counts(snap)
		setTasksReturned(c, counts.ToDo+counts.InProgress+counts.Done)
		return c.JSON(http.StatusOK, boardResponse{Columns: cols, Counts: counts})
	}
}

func getCounts(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, view.Counts(b.Snapshot()))
	}
}

func getSearch(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks := view.Search(b.Snapshot(), c.QueryParam("q"))
		setTasksReturned(c, len(tasks))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func getReminders(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks := view.Upcoming(b.Snapshot())
		setTasksReturned(c, len(tasks))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func postTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var form domain.TaskForm
		if err := bindBody(c, &form); err != nil {
			return err
		}
		task, err := b.AddTask(c.Request().Context(), form)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func putTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var form domain.TaskForm
		if err := bindBody(c, &form); err != nil {
			return err
		}
		task, err := b.UpdateTask(c.Request().Context(), c.Param("id"), form)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		deleted := b.DeleteTask(c.Request().Context(), c.Param("id"))
		return c.JSON(http.StatusOK, deleteTaskResponse{Deleted: deleted})
	}
}

func deleteColumnTasks(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := domain.ColumnID(c.Param("id"))
		if _, ok := domain.ColumnTitle(id); !ok {
			return writeError(c, &domain.NotFoundError{Kind: "column", ID: string(id)})
		}
		removed := b.DeleteAllTasks(c.Request().Context(), id)
		return c.JSON(http.StatusOK, deleteColumnResponse{Removed: removed})
	}
}

func postMove(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		task, moved := b.MoveTask(c.Request().Context(), c.Param("id"), req.SourceColumnID, req.TargetColumnID)
		resp := moveResponse{Moved: moved}
		if moved {
			resp.Task = &task
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// postCommands applies a batch of command envelopes in order. Every key is
// reserved before the first command runs, so a failing idempotency store
// leaves the board untouched. Keys already seen for this user are reported
// as duplicates and skipped; a rejected command releases its key so the
// client may retry it.
func postCommands(b Board, dedupe board.Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			setErrorStage(c, "decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}

		keys := make([]string, len(cmds))
		for i := range cmds {
			if strings.TrimSpace(cmds[i].IdempotencyKey) == "" {
				cmds[i].IdempotencyKey = uuid.NewString()
			}
			keys[i] = cmds[i].IdempotencyKey
		}

		scope := userID(c)
		fresh, err := reserveKeys(ctx, dedupe, scope, keys, logger)
		if err != nil {
			setErrorStage(c, "dedupe")
			logger.WithError(err).WithField("commands", len(cmds)).Error("dedupe check failed")
			results := make([]commandResult, len(cmds))
			for i, key := range keys {
				results[i] = commandResult{IdempotencyKey: key, Status: commandRejected, Error: errDedupeUnavailable}
			}
			return c.JSON(http.StatusServiceUnavailable, postCommandResponse{Results: results})
		}

		results := make([]commandResult, 0, len(cmds))
		for i, env := range cmds {
			res := commandResult{IdempotencyKey: env.IdempotencyKey}
			if !fresh[i] {
				res.Status = commandDuplicate
				results = append(results, res)
				continue
			}

			cmd, err := board.DecodeCommand(env)
			var applied board.Result
			if err == nil {
				applied, err = b.Apply(ctx, cmd)
			}
			if err != nil {
				releaseKey(ctx, dedupe, scope, env.IdempotencyKey, logger)
				res.Status = commandRejected
				var ve *domain.ValidationError
				var nf *domain.NotFoundError
				switch {
				case errors.As(err, &ve):
					res.Field = ve.Field
					res.Error = ve.Message
				case errors.As(err, &nf):
					res.Error = nf.Error()
				default:
					res.Error = err.Error()
				}
				results = append(results, res)
				continue
			}
			res.Status = commandApplied
			res.Result = &applied
			results = append(results, res)
		}
		return c.JSON(http.StatusOK, postCommandResponse{Results: results})
	}
}

// reserveKeys reports which keys are new for scope. A nil deduper treats
// every key as new. On error no key stays reserved.
func reserveKeys(ctx context.Context, dedupe board.Deduper, scope string, keys []string, logger *log.Logger) ([]bool, error) {
	if dedupe == nil {
		fresh := make([]bool, len(keys))
		for i := range fresh {
			fresh[i] = true
		}
		return fresh, nil
	}
	if bd, ok := dedupe.(board.BatchDeduper); ok {
		return bd.AddMany(ctx, scope, keys)
	}
	fresh := make([]bool, len(keys))
	for i, key := range keys {
		added, err := dedupe.Add(ctx, scope, key)
		if err != nil {
			for j := 0; j < i; j++ {
				if fresh[j] {
					releaseKey(ctx, dedupe, scope, keys[j], logger)
				}
			}
			return nil, err
		}
		fresh[i] = added
	}
	return fresh, nil
}

func releaseKey(ctx context.Context, dedupe board.Deduper, scope, key string, logger *log.Logger) {
	if dedupe == nil {
		return
	}
	if err := dedupe.Remove(ctx, scope, key); err != nil {
		logger.WithError(err).WithField("key", key).Warn("failed to release idempotency key")
	}
}

func dragState(d DragController) dragStateResponse {
	resp := dragStateResponse{States: d.States()}
	if s, ok := d.Active(); ok {
		resp.Session = &s
	}
	return resp
}

func getDrag(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, dragState(d))
	}
}

func postDragStart(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p drag.Payload
		if err := bindBody(c, &p); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, d.Start(p.TaskID, p.SourceColumnID))
	}
}

func postDragOver(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dragColumnRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		state, err := d.DragOver(req.ColumnID)
		if err != nil {
			return dragError(c, req.ColumnID, err)
		}
		return c.JSON(http.StatusOK, hoverResponse{ColumnID: req.ColumnID, State: state})
	}
}

func postDragLeave(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dragColumnRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		state, err := d.DragLeave(req.ColumnID, req.StillInside)
		if err != nil {
			return dragError(c, req.ColumnID, err)
		}
		return c.JSON(http.StatusOK, hoverResponse{ColumnID: req.ColumnID, State: state})
	}
}

func postDrop(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dragColumnRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		res, err := d.Drop(c.Request().Context(), req.ColumnID)
		if err != nil {
			return dragError(c, req.ColumnID, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func deleteDrag(d DragController) echo.HandlerFunc {
	return func(c echo.Context) error {
		d.Cancel()
		return c.NoContent(http.StatusNoContent)
	}
}

func dragError(c echo.Context, col domain.ColumnID, err error) error {
	if errors.Is(err, drag.ErrUnknownColumn) {
		return writeError(c, &domain.NotFoundError{Kind: "column", ID: string(col)})
	}
	return writeError(c, err)
}

func getProfile(p Profiles) echo.HandlerFunc {
	return func(c echo.Context) error {
		prof, ok := p.Get()
		resp := profileResponse{NeedsOnboarding: !ok}
		if ok {
			resp.Profile = &prof
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func putProfile(p Profiles) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req profileRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		prof, err := p.Onboard(c.Request().Context(), req.Nickname, req.ProfilePic)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, profileResponse{Profile: &prof})
	}
}
