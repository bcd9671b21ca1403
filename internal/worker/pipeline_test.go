package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"photokeeper-go/internal/model"
	"photokeeper-go/pkg/messages"
)

// fakeArchiver 记录归档调用，可被配置为失败。
type fakeArchiver struct {
	calls int
	fail  error
}

func (a *fakeArchiver) Archive(ctx context.Context, contentHash string, reader io.Reader, size int64) (string, error) {
	a.calls++
	if a.fail != nil {
		return "", a.fail
	}
	// 归档必须在删除前完成，消费掉内容证明文件此刻仍可读
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	return "archive/" + contentHash, nil
}

// fakeReporter 收集上报的事件。
type fakeReporter struct {
	events []messages.Envelope
}

func (r *fakeReporter) Report(msgType string, payload interface{}) error {
	raw, err := messages.Encode(msgType, payload)
	if err != nil {
		return err
	}
	var env messages.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	r.events = append(r.events, env)
	return nil
}

func (r *fakeReporter) progressStatuses(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range r.events {
		if env.Type != messages.EvtProgress {
			continue
		}
		var p messages.Progress
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p.Status)
	}
	return out
}

// writeTestFile 写一个临时文件并返回其路径、哈希与删除指令。
func writeTestFile(t *testing.T, content string) (string, messages.DeleteFile) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dup.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	sum := md5.Sum([]byte(content))
	return path, messages.DeleteFile{
		JobID:        1,
		FileID:       2,
		Path:         path,
		ExpectedHash: hex.EncodeToString(sum[:]),
		ExpectedSize: int64(len(content)),
	}
}

func TestPipelineDeletesVerifiedFile(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	archiver := &fakeArchiver{}
	reporter := &fakeReporter{}
	p := NewPipeline(archiver, reporter)

	result := p.Run(context.Background(), cmd, false)
	if !result.Success || result.Skipped || result.Error != "" {
		t.Fatalf("删除应成功: %+v", result)
	}
	if result.ArchivePath != "archive/"+cmd.ExpectedHash {
		t.Fatalf("归档路径不符: %s", result.ArchivePath)
	}
	if archiver.calls != 1 {
		t.Fatalf("归档应恰好执行一次: %d", archiver.calls)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("文件应已被删除")
	}

	want := []string{
		model.JobFileStatusLocating,
		model.JobFileStatusVerifying,
		model.JobFileStatusArchiving,
		model.JobFileStatusDeleting,
	}
	got := reporter.progressStatuses(t)
	if len(got) != len(want) {
		t.Fatalf("进度步骤不符: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 步应为 %s, 实际 %s", i+1, want[i], got[i])
		}
	}

	last := reporter.events[len(reporter.events)-1]
	if last.Type != messages.EvtDeleteComplete {
		t.Fatalf("最后一条事件应是删除终态: %s", last.Type)
	}
}

func TestPipelineDryRunLeavesFileUntouched(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	cmd.DryRun = true
	archiver := &fakeArchiver{}
	reporter := &fakeReporter{}
	p := NewPipeline(archiver, reporter)

	result := p.Run(context.Background(), cmd, false)
	if !result.Success || !result.Skipped {
		t.Fatalf("试运行应上报 skipped: %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("试运行不应删除文件")
	}
	// 归档仍然执行，试运行验证的是完整管道
	if archiver.calls != 1 {
		t.Fatalf("试运行仍应归档: %d", archiver.calls)
	}
	for _, st := range reporter.progressStatuses(t) {
		if st == model.JobFileStatusDeleting {
			t.Fatal("试运行不应进入 deleting 步骤")
		}
	}
}

func TestPipelineLocalDryRunOverridesCommand(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	p := NewPipeline(&fakeArchiver{}, &fakeReporter{})

	// 指令要求真实删除，但 worker 本地处于试运行模式
	result := p.Run(context.Background(), cmd, true)
	if !result.Skipped {
		t.Fatalf("本地试运行开关应生效: %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("本地试运行不应删除文件")
	}
}

func TestPipelineRejectsHashMismatch(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	cmd.ExpectedHash = "0123456789abcdef0123456789abcdef"
	archiver := &fakeArchiver{}
	p := NewPipeline(archiver, &fakeReporter{})

	result := p.Run(context.Background(), cmd, false)
	if result.Success || result.Error == "" {
		t.Fatalf("哈希不匹配应失败: %+v", result)
	}
	if archiver.calls != 0 {
		t.Fatal("校验失败后不应归档")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("校验失败的文件不应被删除")
	}
}

func TestPipelineRejectsSizeMismatch(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	cmd.ExpectedSize = 99999
	p := NewPipeline(&fakeArchiver{}, &fakeReporter{})

	result := p.Run(context.Background(), cmd, false)
	if result.Success {
		t.Fatalf("大小不匹配应失败: %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("大小不匹配的文件不应被删除")
	}
}

func TestPipelineFailsWhenFileMissing(t *testing.T) {
	_, cmd := writeTestFile(t, "duplicate content")
	cmd.Path = filepath.Join(t.TempDir(), "missing.jpg")
	archiver := &fakeArchiver{}
	p := NewPipeline(archiver, &fakeReporter{})

	result := p.Run(context.Background(), cmd, false)
	if result.Success || result.Error == "" {
		t.Fatalf("文件缺失应失败: %+v", result)
	}
	if archiver.calls != 0 {
		t.Fatal("定位失败后不应归档")
	}
}

func TestPipelineNeverDeletesWhenArchiveFails(t *testing.T) {
	path, cmd := writeTestFile(t, "duplicate content")
	archiver := &fakeArchiver{fail: errors.New("存储桶不可用")}
	p := NewPipeline(archiver, &fakeReporter{})

	result := p.Run(context.Background(), cmd, false)
	if result.Success {
		t.Fatalf("归档失败应导致整体失败: %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("归档失败时绝不能删除文件")
	}
}
