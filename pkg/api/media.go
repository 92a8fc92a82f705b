package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/astromechza/pixelwar/pkg/export"
	"github.com/astromechza/pixelwar/pkg/journal"
	"github.com/astromechza/pixelwar/pkg/render"
	"github.com/astromechza/pixelwar/pkg/viz"
)

const maxHistory = 1000

func optionalInt(request *http.Request, name string, def, min, max int) (int, error) {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be an integer in [%d, %d]", errInvalidParameter, name, min, max)
	}
	return v, nil
}

func (s *Server) imageHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.image")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	scale, err := optionalInt(request, "scale", 1, 1, render.MaxScale)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	grid, _ := c.Snapshot()
	var buf bytes.Buffer
	if err := render.PNG(&buf, grid, render.Options{Scale: scale}); err != nil {
		writeError(writer, span, err)
		return
	}
	writer.Header().Set("Content-Type", "image/png")
	_, _ = writer.Write(buf.Bytes())
}

func (s *Server) exportHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.export")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	grid, _ := c.Snapshot()
	raw, err := export.Save(c.Name(), grid)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	writer.Header().Add("Content-Type", "application/octet-stream")
	writer.Header().Add("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Name()+".automerge"))
	_, _ = writer.Write(raw)
}

func (s *Server) history(writer http.ResponseWriter, request *http.Request, op string) ([]journal.Entry, bool) {
	c, span, err := s.begin(request, op)
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return nil, false
	}
	if s.opts.Journal == nil {
		writeJSON(writer, http.StatusNotFound, errorBody{Error: "journal_disabled", Message: "edit history is not recorded"})
		return nil, false
	}
	limit, err := optionalInt(request, "limit", 100, 1, maxHistory)
	if err != nil {
		writeError(writer, span, err)
		return nil, false
	}
	entries, err := s.opts.Journal.History(request.Context(), c.Name(), limit)
	if err != nil {
		writeError(writer, span, err)
		return nil, false
	}
	return entries, true
}

func (s *Server) historyHandler(writer http.ResponseWriter, request *http.Request) {
	if entries, ok := s.history(writer, request, "canvas.history"); ok {
		writeJSON(writer, http.StatusOK, entries)
	}
}

func (s *Server) historyGraphHandler(writer http.ResponseWriter, request *http.Request) {
	entries, ok := s.history(writer, request, "canvas.history_graph")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := viz.RenderHistory(entries, &buf); err != nil {
		writeError(writer, nil, err)
		return
	}
	writer.Header().Set("Content-Type", "image/svg+xml")
	_, _ = writer.Write(buf.Bytes())
}
