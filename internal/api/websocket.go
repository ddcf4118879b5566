package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tanguille/p2pool-dashboard/internal/tracker"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func newUpgrader(checkOrigin func(*http.Request) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// wsMessage is a report pushed to the dashboard
type wsMessage struct {
	Type   string          `json:"type"`
	Report *tracker.Report `json:"report"`
}

// wsClient is one connected dashboard page. Only its writer goroutine
// writes to conn.
type wsClient struct {
	id         uint64
	conn       *websocket.Conn
	remoteAddr string
	done       chan struct{}
}

// handleWebSocket upgrades the connection and streams every new report
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		id:         atomic.AddUint64(&s.clientSeq, 1),
		conn:       conn,
		remoteAddr: c.ClientIP(),
		done:       make(chan struct{}),
	}
	s.clients.Store(client.id, client)
	util.Debugf("WebSocket client %d connected from %s", client.id, client.remoteAddr)

	s.wg.Add(2)
	go s.readClient(client)
	go s.writeClient(client)
}

// checkOrigin applies the CORS origin list to websocket upgrades
func (s *Server) checkOrigin(r *http.Request) bool {
	origins := s.cfg.API.CORSOrigins
	if len(origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// readClient drains the connection so pongs and close frames are handled
func (s *Server) readClient(client *wsClient) {
	defer s.wg.Done()
	defer close(client.done)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeClient sends the current report, then every new one, with periodic
// pings
func (s *Server) writeClient(client *wsClient) {
	defer s.wg.Done()

	reports, cancel := s.tracker.Subscribe()
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		client.conn.Close()
		s.clients.Delete(client.id)
		util.Debugf("WebSocket client %d disconnected", client.id)
	}()

	if rep := s.tracker.Report(); rep != nil {
		if err := s.sendReport(client, rep); err != nil {
			return
		}
	}

	for {
		select {
		case <-s.quit:
			client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(wsWriteWait))
			return
		case <-client.done:
			return
		case rep, ok := <-reports:
			if !ok {
				return
			}
			if err := s.sendReport(client, rep); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendReport(client *wsClient, rep *tracker.Report) error {
	data, err := sonic.Marshal(wsMessage{Type: "report", Report: rep})
	if err != nil {
		util.Warnf("Encode websocket report: %v", err)
		return err
	}
	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return client.conn.WriteMessage(websocket.TextMessage, data)
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
