package logger

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// FeedAttr 事件流中的属性
type FeedAttr struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// FeedEntry 事件流消息：一次记录尝试的结果
type FeedEntry struct {
	Time       time.Time  `json:"time"`
	SessionID  string     `json:"session_id,omitempty"`
	EventID    string     `json:"event_id,omitempty"`
	Name       string     `json:"name"`
	Outcome    string     `json:"outcome"`
	Attributes []FeedAttr `json:"attributes,omitempty"`
	Skipped    []string   `json:"skipped,omitempty"`
	Error      string     `json:"error,omitempty"`
}

const (
	feedBuffer   = 256
	writeTimeout = time.Second
)

// EventFeed WebSocket事件流广播器。
// 所有写操作都在 Run 的协程中完成，满足 websocket 连接单写者的要求。
type EventFeed struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan FeedEntry
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	logger     *slog.Logger
	dropped    atomic.Int64
	upgrader   websocket.Upgrader
}

// NewEventFeed 创建事件流
func NewEventFeed(l *slog.Logger) *EventFeed {
	if l == nil {
		l = slog.Default()
	}
	return &EventFeed{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan FeedEntry, feedBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 跨域由HTTP层的CORS配置控制
			},
		},
	}
}

// Run 运行广播循环，直到 ctx 取消或 Close 被调用
func (f *EventFeed) Run(ctx context.Context) {
	defer f.closeAll()
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return

		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			n := len(f.clients)
			f.mu.Unlock()
			f.logger.Debug("Event feed client connected", "clients", n)

		case client := <-f.unregister:
			f.remove(client)

		case entry := <-f.broadcast:
			f.mu.RLock()
			targets := make([]*websocket.Conn, 0, len(f.clients))
			for client := range f.clients {
				targets = append(targets, client)
			}
			f.mu.RUnlock()

			for _, client := range targets {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(entry); err != nil {
					f.logger.Debug("Failed to send feed entry", "error", err)
					f.remove(client)
				}
			}
		}
	}
}

// Publish 非阻塞地投递一条记录，缓冲区满时丢弃
func (f *EventFeed) Publish(entry FeedEntry) {
	select {
	case f.broadcast <- entry:
	default:
		f.dropped.Add(1)
	}
}

// Clients 当前订阅者数量
func (f *EventFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Dropped 因缓冲区满而丢弃的消息数
func (f *EventFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Close 停止广播并断开所有订阅者，可重复调用
func (f *EventFeed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
	})
}

// ServeWS 处理WebSocket订阅请求
func (f *EventFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	select {
	case f.register <- conn:
	case <-f.done:
		conn.Close()
		return
	}

	// 订阅者只读不写；读循环用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("Event feed connection error", "error", err)
			}
			break
		}
	}

	select {
	case f.unregister <- conn:
	case <-f.done:
	}
}

func (f *EventFeed) remove(client *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.clients[client]
	delete(f.clients, client)
	n := len(f.clients)
	f.mu.Unlock()

	if ok {
		client.Close()
		f.logger.Debug("Event feed client disconnected", "clients", n)
	}
}

func (f *EventFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		client.Close()
		delete(f.clients, client)
	}
}
