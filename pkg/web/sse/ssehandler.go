// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sse streams render notifications to read-only live view clients.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wavetermdev/pickle/pkg/utilds"
)

const (
	SSEContentType       = "text/event-stream"
	SSEKeepaliveMsg      = ": keepalive\n\n"
	SSEStreamStartMsg    = ": stream-start\n\n"
	SSEKeepaliveInterval = 5 * time.Second
)

type SSEMessage struct {
	EventType string // empty for plain data messages
	Data      string
}

// SSEHandlerCh serializes all writes (messages and keepalives) through one writer goroutine.
type SSEHandlerCh struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	ctx     context.Context
	writeCh chan SSEMessage

	lock        sync.Mutex
	closed      bool
	initialized bool
	err         error

	wg              sync.WaitGroup
	onCloseHandlers utilds.IdList[func()]
}

func MakeSSEHandlerCh(w http.ResponseWriter, ctx context.Context) *SSEHandlerCh {
	return &SSEHandlerCh{
		w:       w,
		rc:      http.NewResponseController(w),
		ctx:     ctx,
		writeCh: make(chan SSEMessage, 16),
	}
}

func (h *SSEHandlerCh) SetupSSE() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return fmt.Errorf("SSE handler is closed")
	}
	h.initialized = true
	// streaming responses outlive the server write timeout
	if err := h.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to reset write deadline: %w", err)
	}
	h.w.Header().Set("Content-Type", SSEContentType)
	h.w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, no-transform")
	h.w.Header().Set("Connection", "keep-alive")
	h.w.Header().Set("X-Accel-Buffering", "no")
	h.w.WriteHeader(http.StatusOK)
	fmt.Fprint(h.w, SSEStreamStartMsg)
	if err := h.rc.Flush(); err != nil {
		return err
	}
	h.wg.Add(1)
	go h.writerLoop()
	return nil
}

func (h *SSEHandlerCh) writerLoop() {
	defer h.wg.Done()
	defer h.runOnCloseHandlers()
	keepaliveTicker := time.NewTicker(SSEKeepaliveInterval)
	defer keepaliveTicker.Stop()
	for {
		select {
		case msg, ok := <-h.writeCh:
			if !ok {
				return
			}
			if err := h.write(formatMessage(msg)); err != nil {
				h.setError(err)
				return
			}
		case <-keepaliveTicker.C:
			if err := h.write(SSEKeepaliveMsg); err != nil {
				h.setError(err)
				return
			}
		case <-h.ctx.Done():
			h.setError(h.ctx.Err())
			return
		}
	}
}

// formatMessage writes multi-line data as one "data:" line per line, as the protocol requires.
func formatMessage(msg SSEMessage) string {
	var sb strings.Builder
	if msg.EventType != "" {
		sb.WriteString("event: ")
		sb.WriteString(msg.EventType)
		sb.WriteString("\n")
	}
	for _, line := range strings.Split(msg.Data, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (h *SSEHandlerCh) write(s string) error {
	if _, err := fmt.Fprint(h.w, s); err != nil {
		return err
	}
	return h.rc.Flush()
}

func (h *SSEHandlerCh) setError(err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.err == nil {
		h.err = err
	}
}

func (h *SSEHandlerCh) Err() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.err
}

// WriteEvent queues a message.  It never blocks: when the client cannot keep up the message is
// dropped and an error returned.
func (h *SSEHandlerCh) WriteEvent(eventType string, data string) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return fmt.Errorf("SSE handler is closed")
	}
	if h.err != nil {
		return h.err
	}
	select {
	case h.writeCh <- SSEMessage{EventType: eventType, Data: data}:
		return nil
	default:
		return fmt.Errorf("SSE client is too slow, message dropped")
	}
}

func (h *SSEHandlerCh) OnClose(fn func()) {
	h.onCloseHandlers.Register(fn)
}

func (h *SSEHandlerCh) runOnCloseHandlers() {
	for _, fn := range h.onCloseHandlers.GetList() {
		fn()
	}
}

// Close stops the writer after the queued messages have been written.
func (h *SSEHandlerCh) Close() {
	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		return
	}
	h.closed = true
	initialized := h.initialized
	close(h.writeCh)
	h.lock.Unlock()
	if initialized {
		h.wg.Wait()
	}
}
