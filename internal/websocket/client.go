package websocket

import (
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/optical-switch/internal/errors"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = stderrors.New("客户端未找到")
	ErrSendBufferFull = stderrors.New("发送缓冲区已满")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送订阅类小消息
	maxMessageSize = 4 * 1024
)

// Client WebSocket客户端
type Client struct {
	ID   string          // 客户端ID
	Hub  *Hub            // Hub引用
	Conn *websocket.Conn // WebSocket连接
	Send chan []byte     // 发送通道

	mu        sync.RWMutex
	requestID string // 只接收该请求的事件，空表示全部
}

// subscribeData 订阅请求
type subscribeData struct {
	RequestID string `json:"request_id"`
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// accepts 判断消息是否需要发给该客户端
func (c *Client) accepts(message *Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestID == "" || message.RequestID == "" || message.RequestID == c.requestID
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// WritePump 写入消息，每条消息单独一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.Hub.logger.Warn("无效的WebSocket消息", zap.String("client_id", c.ID))
		c.sendError("需要JSON对象且包含type")
		return
	}

	switch msg.Type {
	case MessageTypePong:
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case MessageTypeSubscribe:
		var sub subscribeData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &sub); err != nil {
				c.sendError("订阅参数错误")
				return
			}
		}
		c.mu.Lock()
		c.requestID = sub.RequestID
		c.mu.Unlock()

	default:
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

// sendError 发送消息格式错误
func (c *Client) sendError(detail string) {
	appErr := errors.New(errors.ErrMessageFormat, detail)
	data, _ := json.Marshal(map[string]interface{}{
		"code":  appErr.Code,
		"error": appErr.Error(),
	})
	if err := c.Hub.SendToClient(c.ID, &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}); err != nil {
		c.Hub.logger.Debug("错误消息未送达", zap.String("client_id", c.ID), zap.Error(err))
	}
}
