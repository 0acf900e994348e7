package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，向所有订阅者推送光开关事件
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	pingInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once

	logger *zap.Logger
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`                 // 消息类型
	RequestID string          `json:"request_id,omitempty"` // 关联的命令请求
	Data      json.RawMessage `json:"data,omitempty"`       // 消息数据
	Timestamp int64           `json:"timestamp"`            // 时间戳（毫秒）
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
	MessageTypeSubscribe = "subscribe"

	// 光开关消息
	MessageTypeCommand  = "command"
	MessageTypeResponse = "response"
	MessageTypeResult   = "result"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger, pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		broadcast:    make(chan *Message, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		pingInterval: pingInterval,
		stopCh:       make(chan struct{}),
		logger:       logger,
	}
}

// Run 运行Hub，直到 Stop 被调用
func (h *Hub) Run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.broadcastMessage(&Message{Type: MessageTypePing, Timestamp: time.Now().UnixMilli()})

		case <-h.stopCh:
			h.closeAll()
			return
		}
	}
}

// Stop 停止Hub并断开所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接", zap.String("client_id", client.ID))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().UnixMilli(),
		Data:      json.RawMessage(`{"client_id":"` + client.ID + `"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开", zap.String("client_id", client.ID))
}

// closeAll 关闭全部客户端的发送通道
func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	h.clientsMu.Unlock()
}

// broadcastMessage 广播消息，只发给订阅了该请求或未设置过滤的客户端
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		if !client.accepts(message) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", client.ID))
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Publish 广播光开关事件
func (h *Hub) Publish(eventType, requestID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("序列化事件失败", zap.String("type", eventType), zap.Error(err))
		return
	}
	h.Broadcast(&Message{
		Type:      eventType,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Broadcast 广播消息，Hub 停止后直接丢弃
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.stopCh:
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopCh:
		close(client.Send)
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopCh:
	}
}
