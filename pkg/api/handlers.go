package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/stream"
)

type canvasSummary struct {
	Name     string  `json:"name"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Cooldown float64 `json:"cooldown"`
	Version  uint64  `json:"version"`
	Users    int     `json:"users"`
	Streams  int     `json:"streams"`
}

type preinitResponse struct {
	Key string `json:"key"`
}

type initResponse struct {
	ID     string          `json:"id"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Data   [][]canvas.Cell `json:"data"`
}

type deltasResponse struct {
	ID       string         `json:"id"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Cooldown float64        `json:"cooldown"`
	Deltas   []canvas.Delta `json:"deltas"`
}

type editResponse struct {
	Message string       `json:"message"`
	Delta   canvas.Delta `json:"delta"`
}

// begin starts a span for op and resolves the canvas named in the route.
func (s *Server) begin(request *http.Request, op string) (*canvas.Canvas, trace.Span, error) {
	name := mux.Vars(request)["name"]
	_, span := s.tracer.Start(request.Context(), op, trace.WithAttributes(attribute.String("canvas", name)))
	c, err := s.registry.Get(name)
	return c, span, err
}

func (s *Server) listCanvases(writer http.ResponseWriter, request *http.Request) {
	out := make([]canvasSummary, 0)
	s.registry.Each(func(c *canvas.Canvas) bool {
		st := c.Stats()
		out = append(out, canvasSummary{
			Name:     st.Name,
			Width:    st.Width,
			Height:   st.Height,
			Cooldown: st.Cooldown.Seconds(),
			Version:  st.Version,
			Users:    st.Users,
			Streams:  st.Streams,
		})
		return true
	})
	writeJSON(writer, http.StatusOK, out)
}

func (s *Server) preinitHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.preinit")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	if !s.preinit.Allow(remoteHost(request)) {
		writer.Header().Set("Retry-After", "1")
		writeJSON(writer, http.StatusTooManyRequests, errorBody{Error: "too_many_requests", Message: "too many token requests"})
		return
	}
	key := c.IssueToken()
	s.opts.Metrics.RecordToken(c.Name())
	s.setCookie(writer, keyCookie, key)
	writeJSON(writer, http.StatusOK, preinitResponse{Key: key})
}

func (s *Server) initHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.init")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	key, err := tokenCredential(request, true)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	res, err := c.Join(key)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	s.opts.Metrics.RecordSession(c.Name())
	span.SetAttributes(attribute.String("user", res.UserID))
	s.setCookie(writer, idCookie, res.UserID)
	writeJSON(writer, http.StatusOK, initResponse{
		ID:     res.UserID,
		Width:  res.Grid.Width(),
		Height: res.Grid.Height(),
		Data:   res.Grid.Columns(),
	})
}

func (s *Server) deltasHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.deltas")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	key, err := tokenCredential(request, false)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	userID, err := userCredential(request, true)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	deltas, err := c.Deltas(key, userID)
	if err != nil {
		writeError(writer, span, err)
		return
	}
	s.opts.Metrics.RecordDeltas(c.Name(), len(deltas))
	span.SetAttributes(attribute.Int("deltas", len(deltas)))
	writeJSON(writer, http.StatusOK, deltasResponse{
		ID:       userID,
		Width:    c.Width(),
		Height:   c.Height(),
		Cooldown: c.Cooldown().Seconds(),
		Deltas:   deltas,
	})
}

func intParam(request *http.Request, name string) (int, error) {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", errInvalidParameter, name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", errInvalidParameter, name)
	}
	return v, nil
}

func (s *Server) editHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.edit")
	defer span.End()
	if err != nil {
		writeError(writer, span, err)
		return
	}
	fail := func(err error) {
		s.opts.Metrics.RecordEdit(c.Name(), codeFor(err))
		writeError(writer, span, err)
	}

	key, err := tokenCredential(request, false)
	if err != nil {
		fail(err)
		return
	}
	userID, err := userCredential(request, false)
	if err != nil {
		fail(err)
		return
	}
	// credentials are judged before the pixel parameters
	if err := c.Authorize(key, userID); err != nil {
		fail(err)
		return
	}
	var params [5]int
	for i, name := range []string{"x", "y", "r", "g", "b"} {
		if params[i], err = intParam(request, name); err != nil {
			fail(err)
			return
		}
	}
	span.SetAttributes(attribute.Int("x", params[0]), attribute.Int("y", params[1]))

	delta, err := c.Edit(key, userID, params[0], params[1], params[2], params[3], params[4])
	if err != nil {
		fail(err)
		return
	}
	s.opts.Metrics.RecordEdit(c.Name(), "ok")
	writeJSON(writer, http.StatusOK, editResponse{Message: "pixel updated", Delta: delta})
}

// streamHandler upgrades to a websocket that receives {type: "update", delta} for every
// accepted edit until either side goes away.
func (s *Server) streamHandler(writer http.ResponseWriter, request *http.Request) {
	c, span, err := s.begin(request, "canvas.stream")
	if err != nil {
		writeError(writer, span, err)
		span.End()
		return
	}
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	span.End()
	if err != nil {
		// the upgrader already wrote the error response
		return
	}
	client := stream.NewClient(conn, s.opts.Stream)
	c.Hub().Register(client)
	defer c.Hub().Unregister(client)
	client.Run(request.Context())
}
