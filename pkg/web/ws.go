// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/web/webcmd"
)

const wsReadWaitTimeout = 15 * time.Second
const wsWriteWaitTimeout = 10 * time.Second
const wsPingPeriodTickTime = 10 * time.Second
const wsInitialPingTime = 1 * time.Second
const wsOutputChSize = 100

var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:   4 * 1024,
	WriteBufferSize:  32 * 1024,
	HandshakeTimeout: 1 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

func (s *Server) HandleWs(w http.ResponseWriter, r *http.Request) {
	err := s.HandleWsInternal(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func getMessageType(jmsg map[string]any) string {
	if str, ok := jmsg["type"].(string); ok {
		return str
	}
	return ""
}

func sendError(outputCh chan any, err error) {
	select {
	case outputCh <- map[string]any{"type": MessageType_Error, "error": err.Error()}:
	default:
	}
}

// processWSCommand runs on the read goroutine; anything touching the document is handed to
// the app loop.
func (s *Server) processWSCommand(jmsg map[string]any, outputCh chan any) {
	wsCommand, err := webcmd.ParseWSCommandMap(jmsg)
	if err != nil {
		sendError(outputCh, fmt.Errorf("cannot parse wscommand: %v", err))
		return
	}
	switch cmd := wsCommand.(type) {
	case *webcmd.EventWSCommand:
		ok := s.app.Dispatch(func() {
			node := s.app.Document().NodeById(cmd.Pid)
			if node == nil || node.Removing {
				// stale markup on the client, the next render corrects it
				return
			}
			event := cmd.Event
			node.Dispatch(&event)
		})
		if !ok {
			sendError(outputCh, fmt.Errorf("app is closed"))
		}
	case *webcmd.TravelWSCommand:
		if s.app.Time() == nil {
			sendError(outputCh, fmt.Errorf("time travel is not enabled"))
			return
		}
		if cmd.GetWSCommand() == webcmd.WSCommand_Undo {
			s.app.Undo()
		} else {
			s.app.Redo()
		}
	case *webcmd.SyncWSCommand:
		s.app.Dispatch(func() {
			msg := s.renderMessage()
			select {
			case outputCh <- msg:
			default:
			}
		})
	}
}

func (s *Server) ReadLoop(conn *websocket.Conn, outputCh chan any, closeCh chan any) {
	readWait := wsReadWaitTimeout
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(readWait))
	defer close(closeCh)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[web] ws read error: %v\n", err)
			}
			break
		}
		jmsg := map[string]any{}
		err = json.Unmarshal(message, &jmsg)
		if err != nil {
			log.Printf("[web] error unmarshalling ws message: %v\n", err)
			break
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		msgType := getMessageType(jmsg)
		if msgType == "pong" {
			continue
		}
		if msgType == "ping" {
			outputCh <- map[string]any{"type": "pong", "stime": time.Now().UnixMilli()}
			continue
		}
		panichandler.Call("ws command", func() {
			s.processWSCommand(jmsg, outputCh)
		})
	}
}

func WritePing(conn *websocket.Conn) error {
	pingMessage := map[string]any{"type": "ping", "stime": time.Now().UnixMilli()}
	jsonVal, _ := json.Marshal(pingMessage)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWaitTimeout))
	return conn.WriteMessage(websocket.TextMessage, jsonVal)
}

func WriteLoop(conn *websocket.Conn, outputCh chan any, closeCh chan any) {
	ticker := time.NewTicker(wsInitialPingTime)
	defer ticker.Stop()
	initialPing := true
	for {
		select {
		case msg := <-outputCh:
			barr, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[web] cannot marshal websocket message: %v\n", err)
				break
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWaitTimeout))
			err = conn.WriteMessage(websocket.TextMessage, barr)
			if err != nil {
				conn.Close()
				log.Printf("[web] ws write error: %v\n", err)
				return
			}

		case <-ticker.C:
			err := WritePing(conn)
			if err != nil {
				log.Printf("[web] ws ping error: %v\n", err)
				return
			}
			if initialPing {
				initialPing = false
				ticker.Reset(wsPingPeriodTickTime)
			}

		case <-closeCh:
			return
		}
	}
}

func (s *Server) HandleWsInternal(w http.ResponseWriter, r *http.Request) error {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("WebSocket Upgrade Failed: %v", err)
	}
	defer conn.Close()
	wsConnId := uuid.New().String()
	log.Printf("[web] new websocket connection: connid:%s\n", wsConnId)
	outputCh := make(chan any, wsOutputChSize)
	closeCh := make(chan any)
	s.clients.RegisterWithId(wsConnId, outputCh)
	metrics.AddLiveClients(1)
	defer func() {
		s.clients.Unregister(wsConnId)
		metrics.AddLiveClients(-1)
	}()
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.ReadLoop(conn, outputCh, closeCh)
	}()
	go func() {
		defer wg.Done()
		WriteLoop(conn, outputCh, closeCh)
	}()
	wg.Wait()
	return nil
}
