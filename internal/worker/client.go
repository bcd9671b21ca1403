package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"photokeeper-go/internal/config"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/messages"
	"photokeeper-go/pkg/token"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay   = 5 * time.Second
	defaultHeartbeat = 15 * time.Second
	commandQueueSize = 256
)

// Client 是 cleaner worker 的长连接客户端。
// 断线后自动重连并重新声明身份；指令在独立协程中串行执行，
// 读取循环因此始终可以及时收到取消与状态查询指令。
type Client struct {
	cfg      config.WorkerConfig
	pipeline *Pipeline

	mu        sync.Mutex
	conn      *websocket.Conn
	dryRun    bool
	state     string
	lastError string
	cancelled map[uint]bool

	queue chan messages.DeleteFile
}

// NewClient 创建一个 worker 客户端。
func NewClient(cfg config.WorkerConfig, archiver Archiver) *Client {
	c := &Client{
		cfg:       cfg,
		dryRun:    cfg.DryRun,
		state:     messages.StateIdle,
		cancelled: make(map[uint]bool),
		queue:     make(chan messages.DeleteFile, commandQueueSize),
	}
	c.pipeline = NewPipeline(archiver, c)
	return c
}

// Run 启动客户端并阻塞到 ctx 取消为止。
func (c *Client) Run(ctx context.Context) {
	go c.processLoop(ctx)

	for {
		if err := c.connectOnce(ctx); err != nil {
			log.Warnf("[Cleaner] 连接中断: %v, %s 后重连", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectOnce 完成一次 连接 -> 声明身份 -> 读取循环 的完整生命周期。
func (c *Client) connectOnce(ctx context.Context) error {
	tokenString, err := c.fetchToken(ctx)
	if err != nil {
		return fmt.Errorf("获取 token 失败: %w", err)
	}

	wsURL, err := c.workerURL(tokenString)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("连接协调服务失败: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	hostname, _ := os.Hostname()
	ann := messages.Announce{Kind: c.cfg.Kind, InstanceID: c.cfg.InstanceID, Hostname: hostname}
	if err := c.Report(messages.EvtAnnounce, ann); err != nil {
		return fmt.Errorf("声明身份失败: %w", err)
	}
	log.Infof("[Cleaner] 已连接协调服务: kind=%s, instance=%s", c.cfg.Kind, c.cfg.InstanceID)
	c.reportStatus()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go c.heartbeatLoop(heartbeatCtx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleCommand(raw)
	}
}

// fetchToken 用访问密钥向协调服务换取 worker 角色的 JWT。
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"accessKey": c.cfg.AccessKey,
		"subject":   c.cfg.InstanceID,
		"role":      token.RoleWorker,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("令牌接口返回状态码 %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Data.Token == "" {
		return "", fmt.Errorf("令牌接口返回空 token")
	}
	return payload.Data.Token, nil
}

// workerURL 由服务地址推导 WebSocket 入口地址。
func (c *Client) workerURL(tokenString string) (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("无效的服务地址: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/worker"
	u.RawQuery = url.Values{"token": {tokenString}}.Encode()
	return u.String(), nil
}

// handleCommand 在读取循环中消化一条指令。
// 删除指令只入队不执行，保证取消指令不会被长时间的文件处理阻塞。
func (c *Client) handleCommand(raw []byte) {
	var env messages.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("[Cleaner] 无法解析指令: %v", err)
		return
	}

	switch env.Type {
	case messages.CmdDeleteFile:
		var cmd messages.DeleteFile
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return
		}
		c.enqueue(cmd)
	case messages.CmdDeleteFiles:
		var cmds messages.DeleteFiles
		if err := json.Unmarshal(env.Payload, &cmds); err != nil {
			return
		}
		for _, cmd := range cmds.Files {
			c.enqueue(cmd)
		}
	case messages.CmdCancelJob:
		var cancel messages.CancelJob
		if err := json.Unmarshal(env.Payload, &cancel); err != nil {
			return
		}
		c.mu.Lock()
		c.cancelled[cancel.JobID] = true
		c.mu.Unlock()
		log.Infof("[Cleaner] 作业已标记取消: jobId=%d", cancel.JobID)
	case messages.CmdSetDryRun:
		var set messages.SetDryRun
		if err := json.Unmarshal(env.Payload, &set); err != nil {
			return
		}
		c.mu.Lock()
		c.dryRun = set.Enabled
		c.mu.Unlock()
		log.Infof("[Cleaner] 试运行模式: %v", set.Enabled)
		c.reportStatus()
	case messages.CmdRequestStatus:
		c.reportStatus()
	default:
		log.Debugf("[Cleaner] 忽略指令类型: %s", env.Type)
	}
}

func (c *Client) enqueue(cmd messages.DeleteFile) {
	select {
	case c.queue <- cmd:
	default:
		log.Errorf("[Cleaner] 指令队列已满，丢弃删除指令: jobId=%d, fileId=%d", cmd.JobID, cmd.FileID)
	}
}

// processLoop 串行执行排队的删除指令。
// 已取消作业的后续文件被直接跳过，这是取消的协作点。
func (c *Client) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.queue:
			c.mu.Lock()
			cancelled := c.cancelled[cmd.JobID]
			dryRun := c.dryRun
			c.mu.Unlock()
			if cancelled {
				log.Infof("[Cleaner] 作业已取消，跳过文件: jobId=%d, fileId=%d", cmd.JobID, cmd.FileID)
				continue
			}

			c.setState(messages.StateDeleting, "")
			result := c.pipeline.Run(ctx, cmd, dryRun)
			c.setState(messages.StateIdle, result.Error)
		}
	}
}

func (c *Client) setState(state, lastError string) {
	c.mu.Lock()
	c.state = state
	c.lastError = lastError
	c.mu.Unlock()
	c.reportStatus()
}

// Report 实现 Reporter：把一条事件写到当前连接上。
func (c *Client) Report(msgType string, payload interface{}) error {
	data, err := messages.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("当前没有可用连接")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) reportStatus() {
	c.mu.Lock()
	st := messages.StatusUpdate{
		WorkerID:  c.cfg.InstanceID,
		State:     c.state,
		DryRun:    c.dryRun,
		LastError: c.lastError,
		Heartbeat: time.Now().UnixMilli(),
	}
	c.mu.Unlock()

	if err := c.Report(messages.EvtStatusUpdate, st); err != nil {
		log.Debugf("[Cleaner] 状态上报失败: %v", err)
	}
}

// heartbeatLoop 周期性上报状态作为心跳。
func (c *Client) heartbeatLoop(ctx context.Context) {
	interval := defaultHeartbeat
	if c.cfg.HeartbeatSeconds > 0 {
		interval = time.Duration(c.cfg.HeartbeatSeconds) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reportStatus()
		}
	}
}
