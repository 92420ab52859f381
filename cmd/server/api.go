package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"plotkeeper.ai/internal/persistence/plotdb"
	"plotkeeper.ai/internal/plot"
	"plotkeeper.ai/internal/protocol"
)

const maxBodyBytes = 64 * 1024

// api exposes a plot store over HTTP. Store callbacks are awaited up to
// timeout; a late callback is discarded.
type api struct {
	store   plotdb.Backend
	log     *zap.SugaredLogger
	timeout time.Duration
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/plots/{level}/{x}/{z}", a.getPlot)
	mux.HandleFunc("POST /v1/plots", a.savePlot)
	mux.HandleFunc("DELETE /v1/plots/{level}/{x}/{z}", a.deletePlot)
	mux.HandleFunc("GET /v1/levels/{level}/next", a.nextFree)
	mux.HandleFunc("GET /v1/owners/{owner}", a.ownerPlots)
}

// getPlot waits for the stored row unless ?cached=1 asks for the
// non-blocking cache answer.
func (a *api) getPlot(rw http.ResponseWriter, r *http.Request) {
	level, x, z, ok := cellFromPath(rw, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("cached") == "1" {
		writeJSON(rw, http.StatusOK, a.store.GetPlot(level, x, z))
		return
	}
	ch := make(chan plot.Plot, 1)
	a.store.LoadPlot(level, x, z, func(p plot.Plot) { ch <- p })
	p, err := await(r.Context(), a.timeout, ch)
	if err != nil {
		writeError(rw, protocol.ErrTimeout, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, p)
}

func (a *api) savePlot(rw http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(rw, protocol.ErrProtoBadRequest, err.Error())
		return
	}
	if len(b) > maxBodyBytes {
		writeError(rw, protocol.ErrProtoBadRequest, "body too large")
		return
	}
	p, err := protocol.DecodePlot(b)
	if err != nil {
		writeError(rw, protocol.ErrProtoBadRequest, err.Error())
		return
	}
	ok := a.store.SavePlot(p)
	writeJSON(rw, http.StatusAccepted, protocol.AcceptedResponse{Accepted: ok, Plot: p})
}

func (a *api) deletePlot(rw http.ResponseWriter, r *http.Request) {
	level, x, z, ok := cellFromPath(rw, r)
	if !ok {
		return
	}
	p := plot.Empty(level, x, z)
	if s := r.URL.Query().Get("id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < plot.UnsavedID {
			writeError(rw, protocol.ErrBadRequest, "bad id")
			return
		}
		p.ID = id
	}
	ok = a.store.DeletePlot(p)
	writeJSON(rw, http.StatusAccepted, protocol.AcceptedResponse{Accepted: ok, Plot: p})
}

func (a *api) nextFree(rw http.ResponseWriter, r *http.Request) {
	level := strings.TrimSpace(r.PathValue("level"))
	if level == "" {
		writeError(rw, protocol.ErrBadRequest, "missing level")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(rw, protocol.ErrBadRequest, "bad limit")
			return
		}
		limit = n
	}

	type result struct {
		p  plot.Plot
		ok bool
	}
	ch := make(chan result, 1)
	a.store.GetNextFreePlot(level, limit, func(p plot.Plot, ok bool) { ch <- result{p, ok} })
	res, err := await(r.Context(), a.timeout, ch)
	if err != nil {
		writeError(rw, protocol.ErrTimeout, err.Error())
		return
	}
	if !res.ok {
		writeError(rw, protocol.ErrNoResource, "no free plot within limit")
		return
	}
	writeJSON(rw, http.StatusOK, protocol.NextResponse{Level: level, Limit: limit, Plot: res.p})
}

func (a *api) ownerPlots(rw http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.PathValue("owner"))
	if owner == "" {
		writeError(rw, protocol.ErrBadRequest, "missing owner")
		return
	}
	level := strings.TrimSpace(r.URL.Query().Get("level"))
	ch := make(chan []plot.Plot, 1)
	a.store.GetPlotsByOwner(owner, level, func(ps []plot.Plot) { ch <- ps })
	plots, err := await(r.Context(), a.timeout, ch)
	if err != nil {
		writeError(rw, protocol.ErrTimeout, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, protocol.OwnerResponse{Owner: owner, Level: level, Plots: plots})
}

var errStoreTimeout = errors.New("store did not answer in time")

func await[T any](ctx context.Context, timeout time.Duration, ch <-chan T) (T, error) {
	var zero T
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-t.C:
		return zero, errStoreTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func cellFromPath(rw http.ResponseWriter, r *http.Request) (string, int, int, bool) {
	level := strings.TrimSpace(r.PathValue("level"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	z, errZ := strconv.Atoi(r.PathValue("z"))
	if level == "" || errX != nil || errZ != nil {
		writeError(rw, protocol.ErrBadRequest, "want /{level}/{x}/{z} with integer coordinates")
		return "", 0, 0, false
	}
	return level, x, z, true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code, msg string) {
	writeJSON(rw, protocol.HTTPStatus(code), protocol.ErrorResponse{Code: code, Message: msg})
}
