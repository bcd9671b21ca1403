// Package hub 实现了 worker 协调中枢：维护已连接 worker 进程的在线状态，
// 向指定角色的全部连接广播指令，并把 worker 的状态/进度原样转发给观察者。
// 四种 worker 角色（indexer/cleaner/metadata/thumbnail）共用同一套连接跟踪，
// 以角色字段参数化，而不是四份结构重复的中枢。
package hub

import (
	"errors"
	"sync"
	"time"

	"photokeeper-go/pkg/kafka"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/messages"
)

// ErrNoWorker 表示指令没有可达的目标。指令不排队，调用方自行重试。
var ErrNoWorker = errors.New("hub: 目标角色没有已连接的 worker")

// Sender 抽象了一条可以写出消息的连接，生产实现是 WebSocket 连接。
type Sender interface {
	Send(data []byte) error
	Close() error
}

// WorkerConnection 是一个 worker 连接的逻辑身份与最近状态。
// 纯内存对象：连接建立时创建，断开时销毁，从不持久化。
type WorkerConnection struct {
	Kind        string                `json:"kind"`
	InstanceID  string                `json:"instanceId"`
	Hostname    string                `json:"hostname"`
	ConnectedAt time.Time             `json:"connectedAt"`
	LastStatus  *messages.StatusUpdate `json:"lastStatus,omitempty"`
}

// workerEntry 绑定连接身份与底层发送端。
type workerEntry struct {
	conn   WorkerConnection
	sender Sender
}

// Hub 是进程级的连接注册表。
// 一个注册表一把锁，临界区只做映射读写，绝不跨出站网络调用持锁。
type Hub struct {
	mu        sync.Mutex
	workers   map[uint64]*workerEntry
	observers map[uint64]Sender
	nextID    uint64
}

// New 创建一个空的协调中枢。
func New() *Hub {
	return &Hub{
		workers:   make(map[uint64]*workerEntry),
		observers: make(map[uint64]Sender),
	}
}

// RegisterWorker 记录一个已声明身份的 worker 连接并通知观察者。
func (h *Hub) RegisterWorker(ann messages.Announce, sender Sender) uint64 {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.workers[id] = &workerEntry{
		conn: WorkerConnection{
			Kind:        ann.Kind,
			InstanceID:  ann.InstanceID,
			Hostname:    ann.Hostname,
			ConnectedAt: time.Now(),
		},
		sender: sender,
	}
	h.mu.Unlock()

	log.Infof("[Hub] worker 已连接: kind=%s, instance=%s, host=%s", ann.Kind, ann.InstanceID, ann.Hostname)
	h.RelayToObservers(messages.EvtWorkerConnected, ann)
	kafka.PublishEvent(messages.EvtWorkerConnected, ann)
	return id
}

// UnregisterWorker 移除一个 worker 连接并通知观察者。
func (h *Hub) UnregisterWorker(id uint64) {
	h.mu.Lock()
	entry, ok := h.workers[id]
	delete(h.workers, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	ann := messages.Announce{Kind: entry.conn.Kind, InstanceID: entry.conn.InstanceID, Hostname: entry.conn.Hostname}
	log.Infof("[Hub] worker 已断开: kind=%s, instance=%s", ann.Kind, ann.InstanceID)
	h.RelayToObservers(messages.EvtWorkerDisconnected, ann)
	kafka.PublishEvent(messages.EvtWorkerDisconnected, ann)
}

// RegisterObserver 记录一个匿名观察者连接（未声明身份的连接不是 worker）。
func (h *Hub) RegisterObserver(sender Sender) uint64 {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.observers[id] = sender
	h.mu.Unlock()
	return id
}

// UnregisterObserver 移除一个观察者连接。
func (h *Hub) UnregisterObserver(id uint64) {
	h.mu.Lock()
	delete(h.observers, id)
	h.mu.Unlock()
}

// UpdateStatus 刷新某个 worker 的最近上报状态。
func (h *Hub) UpdateStatus(id uint64, st messages.StatusUpdate) {
	h.mu.Lock()
	if entry, ok := h.workers[id]; ok {
		copied := st
		entry.conn.LastStatus = &copied
	}
	h.mu.Unlock()
}

// Snapshot 返回当前全部 worker 连接的拷贝。
// 从未上报过状态的 worker 合成一条 idle 状态，心跳取连接时间，绝不返回空状态。
// 返回值与内部状态无共享，调用方可随意修改。
func (h *Hub) Snapshot() []WorkerConnection {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]WorkerConnection, 0, len(h.workers))
	for _, entry := range h.workers {
		c := entry.conn
		if c.LastStatus == nil {
			c.LastStatus = &messages.StatusUpdate{
				WorkerID:  c.InstanceID,
				State:     messages.StateIdle,
				Heartbeat: c.ConnectedAt.UnixMilli(),
			}
		} else {
			copied := *c.LastStatus
			c.LastStatus = &copied
		}
		out = append(out, c)
	}
	return out
}

// HasRole 报告指定角色当前是否有在线连接。
func (h *Hub) HasRole(kind string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entry := range h.workers {
		if entry.conn.Kind == kind {
			return true
		}
	}
	return false
}

// collectRole 在锁内取出指定角色的发送端，发送动作在锁外完成。
// kind 为空时返回全部 worker 连接。
func (h *Hub) collectRole(kind string) []Sender {
	h.mu.Lock()
	defer h.mu.Unlock()
	senders := make([]Sender, 0, len(h.workers))
	for _, entry := range h.workers {
		if kind == "" || entry.conn.Kind == kind {
			senders = append(senders, entry.sender)
		}
	}
	return senders
}

// SendToRole 向指定角色的全部连接广播一条指令。
// 没有逐实例路由：同角色的每个在线 worker 都会收到这条指令。
// 发送是 fire-and-forget，不等待 worker 确认。
func (h *Hub) SendToRole(kind, msgType string, payload interface{}) error {
	senders := h.collectRole(kind)
	if len(senders) == 0 {
		return ErrNoWorker
	}
	data, err := messages.Encode(msgType, payload)
	if err != nil {
		return err
	}
	for _, s := range senders {
		if err := s.Send(data); err != nil {
			log.Warnf("[Hub] 指令发送失败（连接可能正在断开）: type=%s, err=%v", msgType, err)
		}
	}
	return nil
}

// Broadcast 向全部 worker 连接广播一条指令。
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	return h.SendToRole("", msgType, payload)
}

// RelayToObservers 把一条事件原样转发给全部观察者。
func (h *Hub) RelayToObservers(msgType string, payload interface{}) {
	h.mu.Lock()
	senders := make([]Sender, 0, len(h.observers))
	for _, s := range h.observers {
		senders = append(senders, s)
	}
	h.mu.Unlock()

	data, err := messages.Encode(msgType, payload)
	if err != nil {
		log.Errorf("[Hub] 序列化观察者事件失败: type=%s, err=%v", msgType, err)
		return
	}
	for _, s := range senders {
		if err := s.Send(data); err != nil {
			log.Debugf("[Hub] 观察者发送失败: %v", err)
		}
	}
}
