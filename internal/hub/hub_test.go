package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"photokeeper-go/pkg/messages"
)

// fakeSender 收集发出的消息。
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeSender) Close() error { return nil }

func (s *fakeSender) envelopes(t *testing.T) []messages.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]messages.Envelope, 0, len(s.sent))
	for _, raw := range s.sent {
		var env messages.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("无法解析消息: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func announce(kind, instance string) messages.Announce {
	return messages.Announce{Kind: kind, InstanceID: instance, Hostname: "test-host"}
}

func TestSendToRoleBroadcastsToAllConnectionsOfRole(t *testing.T) {
	h := New()
	cleaner1, cleaner2, indexer := &fakeSender{}, &fakeSender{}, &fakeSender{}
	h.RegisterWorker(announce(messages.KindCleaner, "c1"), cleaner1)
	h.RegisterWorker(announce(messages.KindCleaner, "c2"), cleaner2)
	h.RegisterWorker(announce(messages.KindIndexer, "i1"), indexer)

	err := h.SendToRole(messages.KindCleaner, messages.CmdCancelJob, messages.CancelJob{JobID: 7})
	if err != nil {
		t.Fatalf("广播失败: %v", err)
	}

	for i, s := range []*fakeSender{cleaner1, cleaner2} {
		envs := s.envelopes(t)
		if len(envs) != 1 || envs[0].Type != messages.CmdCancelJob {
			t.Fatalf("cleaner %d 应收到取消指令: %+v", i+1, envs)
		}
	}
	if len(indexer.envelopes(t)) != 0 {
		t.Fatal("其他角色不应收到该指令")
	}
}

func TestSendToRoleWithoutWorkerReturnsError(t *testing.T) {
	h := New()
	if err := h.SendToRole(messages.KindCleaner, messages.CmdRequestStatus, nil); !errors.Is(err, ErrNoWorker) {
		t.Fatalf("无目标时应返回 ErrNoWorker, 实际 %v", err)
	}

	// 角色不匹配同样算无目标
	h.RegisterWorker(announce(messages.KindIndexer, "i1"), &fakeSender{})
	if err := h.SendToRole(messages.KindCleaner, messages.CmdRequestStatus, nil); !errors.Is(err, ErrNoWorker) {
		t.Fatalf("角色不匹配时应返回 ErrNoWorker, 实际 %v", err)
	}
}

func TestUnregisterRemovesConnection(t *testing.T) {
	h := New()
	id := h.RegisterWorker(announce(messages.KindCleaner, "c1"), &fakeSender{})
	if !h.HasRole(messages.KindCleaner) {
		t.Fatal("注册后角色应在线")
	}

	h.UnregisterWorker(id)
	if h.HasRole(messages.KindCleaner) {
		t.Fatal("注销后角色不应在线")
	}
	if len(h.Snapshot()) != 0 {
		t.Fatal("注销后快照应为空")
	}
}

func TestSnapshotSynthesizesIdleStatus(t *testing.T) {
	h := New()
	h.RegisterWorker(announce(messages.KindCleaner, "c1"), &fakeSender{})

	snap := h.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("快照长度不符: %d", len(snap))
	}
	st := snap[0].LastStatus
	if st == nil || st.State != messages.StateIdle || st.WorkerID != "c1" {
		t.Fatalf("未上报状态的 worker 应合成 idle 状态: %+v", st)
	}
	if st.Heartbeat == 0 {
		t.Fatal("合成状态的心跳应取连接时间")
	}
}

func TestSnapshotIsIsolatedFromInternalState(t *testing.T) {
	h := New()
	id := h.RegisterWorker(announce(messages.KindCleaner, "c1"), &fakeSender{})
	h.UpdateStatus(id, messages.StatusUpdate{WorkerID: "c1", State: messages.StateDeleting, Heartbeat: 42})

	snap := h.Snapshot()
	snap[0].LastStatus.State = "tampered"
	snap[0].Kind = "tampered"

	again := h.Snapshot()
	if again[0].LastStatus.State != messages.StateDeleting || again[0].Kind != messages.KindCleaner {
		t.Fatalf("修改快照不应影响内部状态: %+v", again[0])
	}
}

func TestUpdateStatusReflectedInSnapshot(t *testing.T) {
	h := New()
	id := h.RegisterWorker(announce(messages.KindCleaner, "c1"), &fakeSender{})
	h.UpdateStatus(id, messages.StatusUpdate{WorkerID: "c1", State: messages.StateDeleting, DryRun: true, Heartbeat: 99})

	snap := h.Snapshot()
	st := snap[0].LastStatus
	if st.State != messages.StateDeleting || !st.DryRun || st.Heartbeat != 99 {
		t.Fatalf("快照应反映最近状态: %+v", st)
	}
}

func TestObserverReceivesWorkerLifecycleEvents(t *testing.T) {
	h := New()
	observer := &fakeSender{}
	obsID := h.RegisterObserver(observer)

	workerID := h.RegisterWorker(announce(messages.KindCleaner, "c1"), &fakeSender{})
	h.RelayToObservers(messages.EvtProgress, messages.Progress{JobID: 1, FileID: 2, Status: "archiving"})
	h.UnregisterWorker(workerID)

	envs := observer.envelopes(t)
	if len(envs) != 3 {
		t.Fatalf("观察者应收到 3 条事件, 实际 %d: %+v", len(envs), envs)
	}
	if envs[0].Type != messages.EvtWorkerConnected || envs[1].Type != messages.EvtProgress || envs[2].Type != messages.EvtWorkerDisconnected {
		t.Fatalf("事件顺序不符: %+v", envs)
	}

	// 注销后不再接收
	h.UnregisterObserver(obsID)
	h.RelayToObservers(messages.EvtProgress, nil)
	if len(observer.envelopes(t)) != 3 {
		t.Fatal("注销后的观察者不应再收到事件")
	}
}

func TestBroadcastReachesAllRoles(t *testing.T) {
	h := New()
	cleaner, indexer := &fakeSender{}, &fakeSender{}
	h.RegisterWorker(announce(messages.KindCleaner, "c1"), cleaner)
	h.RegisterWorker(announce(messages.KindIndexer, "i1"), indexer)

	if err := h.Broadcast(messages.CmdRequestStatus, nil); err != nil {
		t.Fatalf("广播失败: %v", err)
	}
	if len(cleaner.envelopes(t)) != 1 || len(indexer.envelopes(t)) != 1 {
		t.Fatal("广播应到达全部角色")
	}
}
