package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/optical-switch/internal/config"
	ws "github.com/wfunc/optical-switch/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, cfg *config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	readSize, writeSize := 1024, 1024
	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			readSize = cfg.ReadBufferSize
		}
		if cfg.WriteBufferSize > 0 {
			writeSize = cfg.WriteBufferSize
		}
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readSize,
			WriteBufferSize: writeSize,
			// 控制台与服务部署在同一内网
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Responses 订阅光开关命令与应答事件
//
// 连接后依次收到 connected、command、response、result 消息；
// 发送 {"type":"subscribe","data":{"request_id":"..."}} 只接收指定请求的事件。
func (h *WebSocketHandler) Responses(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))
}

// GetOnlineCount 当前订阅连接数
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	respondOK(c, gin.H{"online_count": h.hub.GetOnlineCount()})
}
