// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package web serves an App as a live view: the server owns the document, browsers get the
// rendered markup (with data-pid node ids) and send DOM events back over a websocket.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/utilds"
	"github.com/wavetermdev/pickle/pkg/web/sse"
)

type WebFnType = func(http.ResponseWriter, *http.Request)

const (
	CacheControlHeaderKey     = "Cache-Control"
	CacheControlHeaderNoCache = "no-cache"

	ContentTypeHeaderKey = "Content-Type"
	ContentTypeJson      = "application/json"
	ContentTypeHtml      = "text/html; charset=utf-8"

	ContentLengthHeaderKey = "Content-Length"
)

const HttpReadTimeout = 5 * time.Second
const HttpWriteTimeout = 21 * time.Second
const HttpMaxHeaderBytes = 60000
const HttpShutdownTimeout = 5 * time.Second

const (
	MessageType_Render = "render"
	MessageType_Error  = "error"
)

type WebFnOpts struct {
	AllowCaching bool
	JsonErrors   bool
}

type ServerOpts struct {
	Title   string
	Metrics bool // serve /metrics
}

// RenderMessage is pushed to every client after each render.
type RenderMessage struct {
	Type        string `json:"type"`
	Html        string `json:"html"`
	RenderCount int64  `json:"rendercount"`
	Mutations   int    `json:"mutations"`
}

type Server struct {
	app     *app.App
	opts    ServerOpts
	clients utilds.IdList[chan any]
	streams utilds.IdList[*sse.SSEHandlerCh]

	lock      sync.Mutex
	lastHtml  string
	mutations int // loop-owned, counted by the document observer
	closers   []func()
}

func MakeServer(a *app.App, opts ServerOpts) (*Server, error) {
	if opts.Title == "" {
		opts.Title = "pickle"
	}
	s := &Server{app: a, opts: opts}
	err := a.Sync(func() {
		s.closers = append(s.closers, a.Document().Observe(func(m dom.Mutation) {
			s.mutations++
		}))
		s.closers = append(s.closers, a.OnRender(s.broadcastRender))
		s.setLastHtml(s.renderHtml())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// renderHtml must run on the app loop.
func (s *Server) renderHtml() string {
	var sb strings.Builder
	err := s.app.Container().Render(&sb, &dom.RenderOpts{IncludeIds: true, Inner: true})
	if err != nil {
		log.Printf("[web] render error: %v\n", err)
	}
	return sb.String()
}

func (s *Server) setLastHtml(html string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastHtml = html
}

func (s *Server) LastHtml() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastHtml
}

func (s *Server) renderMessage() RenderMessage {
	html := s.renderHtml()
	s.setLastHtml(html)
	msg := RenderMessage{
		Type:        MessageType_Render,
		Html:        html,
		RenderCount: s.app.RenderCount(),
		Mutations:   s.mutations,
	}
	s.mutations = 0
	return msg
}

// broadcastRender runs on the app loop after every render.  Slow clients miss updates rather
// than block the loop; they resync from the next one.
func (s *Server) broadcastRender() {
	msg := s.renderMessage()
	for _, outputCh := range s.clients.GetList() {
		select {
		case outputCh <- msg:
		default:
			log.Printf("[web] client output channel full, dropping render %d\n", msg.RenderCount)
		}
	}
	streams := s.streams.GetList()
	if len(streams) == 0 {
		return
	}
	barr, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, stream := range streams {
		stream.WriteEvent(MessageType_Render, string(barr))
	}
}

func (s *Server) NumClients() int {
	return s.clients.Len() + s.streams.Len()
}

func (s *Server) Router() *mux.Router {
	gr := mux.NewRouter()
	gr.HandleFunc("/", WebFnWrap(WebFnOpts{}, s.handlePage)).Methods(http.MethodGet)
	gr.HandleFunc("/ws", s.HandleWs)
	gr.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	gr.HandleFunc("/api/state", WebFnWrap(WebFnOpts{JsonErrors: true}, s.handleState)).Methods(http.MethodGet)
	gr.HandleFunc("/api/{op:undo|redo}", WebFnWrap(WebFnOpts{JsonErrors: true}, s.handleTravel)).Methods(http.MethodPost)
	if s.opts.Metrics {
		gr.Handle("/metrics", promhttp.Handler())
	}
	return gr
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var html string
	if err := s.app.Sync(func() { html = s.renderHtml() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeHtml)
	err := pageTemplate.Execute(w, map[string]any{
		"Title": s.opts.Title,
		"Body":  template.HTML(html),
		"Pid":   dom.IdAttrName,
	})
	if err != nil {
		log.Printf("[web] page template: %v\n", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	data, err := s.app.MarshalState()
	if err != nil {
		writeJson(w, marshalReturnValue(nil, err))
		return
	}
	writeJson(w, marshalReturnValue(json.RawMessage(data), nil))
}

func (s *Server) handleTravel(w http.ResponseWriter, r *http.Request) {
	if s.app.Time() == nil {
		writeJson(w, marshalReturnValue(nil, fmt.Errorf("time travel is not enabled")))
		return
	}
	var moved bool
	if mux.Vars(r)["op"] == "undo" {
		moved = s.app.Undo()
	} else {
		moved = s.app.Redo()
	}
	writeJson(w, marshalReturnValue(map[string]any{"moved": moved, "cursor": s.app.Time().Cursor()}, nil))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream := sse.MakeSSEHandlerCh(w, r.Context())
	if err := stream.SetupSSE(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := s.streams.Register(stream)
	defer s.streams.Unregister(id)
	defer stream.Close()
	<-r.Context().Done()
}

func marshalReturnValue(data any, err error) []byte {
	var mapRtn = make(map[string]any)
	if err != nil {
		mapRtn["error"] = err.Error()
	} else {
		mapRtn["success"] = true
		mapRtn["data"] = data
	}
	rtn, err := json.Marshal(mapRtn)
	if err != nil {
		return marshalReturnValue(nil, fmt.Errorf("error serializing response: %v", err))
	}
	return rtn
}

func writeJson(w http.ResponseWriter, barr []byte) {
	w.Header().Set(ContentTypeHeaderKey, ContentTypeJson)
	w.Header().Set(ContentLengthHeaderKey, fmt.Sprintf("%d", len(barr)))
	w.WriteHeader(http.StatusOK)
	w.Write(barr)
}

func WebFnWrap(opts WebFnOpts, fn WebFnType) WebFnType {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			panicErr := panichandler.PanicHandler(r.URL.Path, recover())
			if panicErr == nil {
				return
			}
			if opts.JsonErrors {
				writeJson(w, marshalReturnValue(nil, panicErr))
			} else {
				http.Error(w, panicErr.Error(), http.StatusInternalServerError)
			}
		}()
		if !opts.AllowCaching {
			w.Header().Set(CacheControlHeaderKey, CacheControlHeaderNoCache)
		}
		fn(w, r)
	}
}

func MakeTCPListener(addr string) (net.Listener, error) {
	rtn, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error creating listener at %v: %v", addr, err)
	}
	log.Printf("[web] listening on http://%s\n", rtn.Addr())
	return rtn, nil
}

// Serve blocks until ctx is cancelled (graceful shutdown) or the listener fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		ReadTimeout:    HttpReadTimeout,
		WriteTimeout:   HttpWriteTimeout,
		MaxHeaderBytes: HttpMaxHeaderBytes,
		Handler:        s.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancelFn := context.WithTimeout(context.Background(), HttpShutdownTimeout)
	defer cancelFn()
	return server.Shutdown(shutdownCtx)
}

// Close detaches the server from the app.  Connected clients stop receiving renders.
func (s *Server) Close() {
	s.app.Sync(func() {
		for _, closeFn := range s.closers {
			closeFn()
		}
		s.closers = nil
	})
}
