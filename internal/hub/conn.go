package hub

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WSSender 把一条 WebSocket 连接包装成 Sender。
// gorilla/websocket 不允许并发写，写入由互斥锁串行化。
type WSSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSSender 创建一个 WSSender。
func NewWSSender(conn *websocket.Conn) *WSSender {
	return &WSSender{conn: conn}
}

// Send 向连接写出一条文本消息。
func (s *WSSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close 关闭底层连接。
func (s *WSSender) Close() error {
	return s.conn.Close()
}
