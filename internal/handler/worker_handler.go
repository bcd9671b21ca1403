// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"photokeeper-go/internal/hub"
	"photokeeper-go/internal/service"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/messages"
	"photokeeper-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// announceTimeout 是连接建立后等待身份声明的时限。
// 超时未声明身份的连接按匿名观察者处理。
const announceTimeout = 5 * time.Second

// WorkerHandler 负责处理 worker/观察者的 WebSocket 连接与在线状态查询。
type WorkerHandler struct {
	hub            *hub.Hub
	cleanerService service.CleanerService
	jwtManager     *token.JWTManager
}

// NewWorkerHandler 创建一个新的 WorkerHandler 实例。
func NewWorkerHandler(h *hub.Hub, cleanerService service.CleanerService, jwtManager *token.JWTManager) *WorkerHandler {
	return &WorkerHandler{hub: h, cleanerService: cleanerService, jwtManager: jwtManager}
}

// HandleWorker 处理一个传入的 worker WebSocket 连接。
// 首条消息必须是 announce，声明角色与实例身份；之后进入事件读取循环。
func (h *WorkerHandler) HandleWorker(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Query("token"))
	if err != nil || claims.Role != token.RoleWorker {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	sender := hub.NewWSSender(conn)
	defer sender.Close()

	// 等待身份声明
	_ = conn.SetReadDeadline(time.Now().Add(announceTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		log.Warnf("等待 worker 身份声明失败: %v", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var env messages.Envelope
	if err := json.Unmarshal(first, &env); err != nil || env.Type != messages.EvtAnnounce {
		// 未声明身份：按匿名观察者处理
		h.runObserver(conn, sender)
		return
	}
	var ann messages.Announce
	if err := json.Unmarshal(env.Payload, &ann); err != nil || ann.Kind == "" {
		h.runObserver(conn, sender)
		return
	}

	id := h.hub.RegisterWorker(ann, sender)
	defer h.hub.UnregisterWorker(id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 worker 读取消息失败: kind=%s, instance=%s, err=%v", ann.Kind, ann.InstanceID, err)
			break
		}
		h.dispatchWorkerEvent(c, id, raw)
	}
}

// dispatchWorkerEvent 消化 worker 上报的一条事件并转发给观察者。
func (h *WorkerHandler) dispatchWorkerEvent(c *gin.Context, connID uint64, raw []byte) {
	var env messages.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("无法解析 worker 消息: %v", err)
		return
	}

	ctx := c.Request.Context()
	switch env.Type {
	case messages.EvtStatusUpdate:
		var st messages.StatusUpdate
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return
		}
		h.hub.UpdateStatus(connID, st)
		h.hub.RelayToObservers(messages.EvtStatusUpdate, st)
	case messages.EvtProgress:
		var p messages.Progress
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.cleanerService.HandleProgress(ctx, p)
		h.hub.RelayToObservers(messages.EvtProgress, p)
	case messages.EvtDeleteComplete:
		var dc messages.DeleteComplete
		if err := json.Unmarshal(env.Payload, &dc); err != nil {
			return
		}
		h.cleanerService.HandleDeleteComplete(ctx, dc)
		h.hub.RelayToObservers(messages.EvtDeleteComplete, dc)
	case messages.EvtJobComplete:
		var jc messages.JobComplete
		if err := json.Unmarshal(env.Payload, &jc); err != nil {
			return
		}
		h.cleanerService.HandleJobComplete(ctx, jc)
		h.hub.RelayToObservers(messages.EvtJobComplete, jc)
	default:
		log.Warnf("未知的 worker 消息类型: %s", env.Type)
	}
}

// HandleObserver 处理一个观察者 WebSocket 连接（审核界面的事件流）。
func (h *WorkerHandler) HandleObserver(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Query("token"))
	if err != nil || claims.Role != token.RoleReviewer {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	sender := hub.NewWSSender(conn)
	defer sender.Close()
	h.runObserver(conn, sender)
}

// runObserver 把连接注册为观察者并阻塞在读取循环上以感知断开。
func (h *WorkerHandler) runObserver(conn *websocket.Conn, sender *hub.WSSender) {
	id := h.hub.RegisterObserver(sender)
	defer h.hub.UnregisterObserver(id)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// GetWorkers 返回当前全部在线 worker 及其最近状态的快照。
func (h *WorkerHandler) GetWorkers(c *gin.Context) {
	respondOK(c, h.hub.Snapshot())
}

// CommandRequest 定义了指令转发 API 的请求体结构。
type CommandRequest struct {
	Type        string                   `json:"type" binding:"required"`
	Enabled     bool                     `json:"enabled"`
	DirectoryID *uint                    `json:"directoryId"`
	FileID      uint                     `json:"fileId"`
	Path        string                   `json:"path"`
	Files       []messages.ReprocessFile `json:"files"`
}

// SendCommand 把一条运维指令转发给相应角色的全部在线 worker。
// 指令不落盘：没有在线 worker 时立即返回 503，由调用方稍后重试。
func (h *WorkerHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	var err error
	switch req.Type {
	case messages.CmdSetDryRun:
		err = h.hub.SendToRole(messages.KindCleaner, messages.CmdSetDryRun, messages.SetDryRun{Enabled: req.Enabled})
	case messages.CmdTriggerScan:
		err = h.hub.SendToRole(messages.KindIndexer, messages.CmdTriggerScan, messages.TriggerScan{DirectoryID: req.DirectoryID})
	case messages.CmdReprocessFile:
		err = h.hub.SendToRole(messages.KindIndexer, messages.CmdReprocessFile, messages.ReprocessFile{FileID: req.FileID, Path: req.Path})
	case messages.CmdReprocessFiles:
		err = h.hub.SendToRole(messages.KindIndexer, messages.CmdReprocessFiles, messages.ReprocessFiles{Files: req.Files})
	case messages.CmdRequestStatus:
		err = h.hub.Broadcast(messages.CmdRequestStatus, nil)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的指令类型"})
		return
	}

	if errors.Is(err, hub.ErrNoWorker) {
		respondError(c, service.ErrNoWorkerConnected)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
