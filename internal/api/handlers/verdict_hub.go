package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// VerdictEvent 推送给订阅端的结论摘要
type VerdictEvent struct {
	ScanID      string          `json:"scan_id"`
	SHA256      string          `json:"sha256"`
	PackageName string          `json:"package_name,omitempty"`
	AppLabel    string          `json:"app_label,omitempty"`
	Decision    domain.Decision `json:"decision"`
	FinalScore  float64         `json:"final_score"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
}

// VerdictHub websocket 结论推送。慢客户端发送失败直接断开，
// 不在 hub 里做缓冲排队。
type VerdictHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewVerdictHub 创建 hub
func NewVerdictHub(logger *logrus.Logger) *VerdictHub {
	return &VerdictHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket GET /ws/verdicts
func (h *VerdictHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("clients", count).Info("Verdict feed client connected")

	// 读循环只为感知断开，订阅端不需要发任何内容
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *VerdictHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// BroadcastVerdict 向所有订阅端推送一条完成的扫描结论
func (h *VerdictHub) BroadcastVerdict(record *domain.ScanRecord) {
	if record == nil || record.AnalyzedAt == nil {
		return
	}
	event := VerdictEvent{
		ScanID:      record.ScanID,
		SHA256:      record.SHA256,
		PackageName: record.PackageName,
		AppLabel:    record.AppLabel,
		Decision:    record.Decision,
		FinalScore:  record.FinalScore,
		AnalyzedAt:  *record.AnalyzedAt,
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).Debug("Dropping slow verdict feed client")
			h.remove(conn)
		}
	}
}

// Close 断开所有客户端
func (h *VerdictHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
