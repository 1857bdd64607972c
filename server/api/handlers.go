// Package api implements the JSON REST handlers for tasks, distribution,
// rollups and the organization.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Barrelito/sam-a-sub000/distribution"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/task"
	"github.com/Barrelito/sam-a-sub000/tracker"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tracker      *tracker.Service
	Distribution *distribution.Engine
	Rollup       *rollup.Aggregator
	Logger       *slog.Logger
	Version      string
	StartAt      time.Time
}

// RegisterRoutes registers all authenticated API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("POST /api/tasks/{id}/distribute", h.distribute)
	mux.HandleFunc("GET /api/tasks/{id}/distribution", h.distributionStatus)
	mux.HandleFunc("GET /api/tasks/{id}/progress", h.parentProgress)

	mux.HandleFunc("GET /api/review-queue", h.reviewQueue)
	mux.HandleFunc("GET /api/stations/{id}/summary", h.stationSummary)

	mux.HandleFunc("GET /api/vos", h.listVOs)
	mux.HandleFunc("POST /api/vos", h.createVO)
	mux.HandleFunc("GET /api/vos/{id}/stations", h.listStations)
	mux.HandleFunc("POST /api/vos/{id}/stations", h.createStation)
	mux.HandleFunc("GET /api/vos/{id}/overview", h.voOverview)
	mux.HandleFunc("GET /api/vos/{id}/tertials", h.tertials)

	mux.HandleFunc("GET /api/activity", h.listActivity)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Details []string `json:"details,omitempty"`
}

// writeError writes a JSON error response without details.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// fail maps err to an HTTP status by its domain kind. Infrastructure
// errors are logged and reported without their message.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := task.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "forbidden":
		status = http.StatusForbidden
	case "validation":
		status = http.StatusBadRequest
	case "conflict":
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger().Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		writeError(w, status, kind, "internal error")
		return
	}

	msg := err.Error()
	var de *task.Error
	if errors.As(err, &de) && de.Msg != "" {
		msg = de.Msg
	}
	h.logger().Debug("request rejected",
		slog.String("path", r.URL.Path),
		slog.String("kind", kind),
		slog.String("msg", msg),
	)
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind, Details: task.DetailsOf(err)})
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, task.Validationf("%s must be an integer", name)
	}
	return n, nil
}

// period reads year and month, defaulting year to the current one.
func period(r *http.Request) (year, month int, err error) {
	if year, err = queryInt(r, "year"); err != nil {
		return 0, 0, err
	}
	if year == 0 {
		year = time.Now().Year()
	}
	month, err = queryInt(r, "month")
	return year, month, err
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		Status:    task.Status(q.Get("status")),
		Category:  q.Get("category"),
		OwnerType: task.OwnerType(q.Get("owner_type")),
		StationID: q.Get("station_id"),
		VOID:      q.Get("vo_id"),
	}
	var err error
	if f.Year, err = queryInt(r, "year"); err != nil {
		h.fail(w, r, err)
		return
	}
	if f.Month, err = queryInt(r, "month"); err != nil {
		h.fail(w, r, err)
		return
	}

	tasks, err := h.Tracker.ListTasks(r.Context(), PrincipalFrom(r.Context()), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var in tracker.NewTask
	if !decodeBody(w, r, &in) {
		return
	}
	t, err := h.Tracker.CreateTask(r.Context(), PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tracker.GetTask(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var u tracker.Update
	if !decodeBody(w, r, &u) {
		return
	}
	t, err := h.Tracker.UpdateTask(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteTask(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Distribution handlers ---

// distributeRequest is the body accepted by POST /api/tasks/{id}/distribute.
type distributeRequest struct {
	Targets []distribution.Target `json:"targets"`
}

func (h *Handlers) distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Distribution.Distribute(r.Context(), r.PathValue("id"), req.Targets, PrincipalFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) distributionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Distribution.Status(r.Context(), r.PathValue("id"), PrincipalFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Rollup handlers ---

func (h *Handlers) parentProgress(w http.ResponseWriter, r *http.Request) {
	s, err := h.Rollup.ParentProgress(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) reviewQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Rollup.ReviewQueue(r.Context(), PrincipalFrom(r.Context()), r.URL.Query().Get("vo_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) stationSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := period(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sum, err := h.Rollup.StationMonth(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"), year, month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handlers) voOverview(w http.ResponseWriter, r *http.Request) {
	year, month, err := period(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ov, err := h.Rollup.VOOverview(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"), year, month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handlers) tertials(w http.ResponseWriter, r *http.Request) {
	year, _, err := period(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tt, err := h.Rollup.TertialOverview(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tt)
}

// --- Organization handlers ---

func (h *Handlers) listVOs(w http.ResponseWriter, r *http.Request) {
	vos, err := h.Tracker.ListVOs(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vos)
}

func (h *Handlers) createVO(w http.ResponseWriter, r *http.Request) {
	var vo org.VO
	if !decodeBody(w, r, &vo) {
		return
	}
	if err := h.Tracker.CreateVO(r.Context(), PrincipalFrom(r.Context()), &vo); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vo)
}

func (h *Handlers) listStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.Tracker.ListStations(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (h *Handlers) createStation(w http.ResponseWriter, r *http.Request) {
	var st org.Station
	if !decodeBody(w, r, &st) {
		return
	}
	if err := h.Tracker.CreateStation(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"), &st); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// --- Activity ---

func (h *Handlers) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	evs, err := h.Tracker.Activity(PrincipalFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime"] = time.Since(h.StartAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
