package service

import (
	"context"
	"sort"
	"time"

	"photokeeper-go/internal/model"

	"gorm.io/gorm"
)

// 本文件提供各 Repository 接口的内存实现，供服务层测试使用。
// 语义与 GORM 实现对齐：找不到记录时返回 gorm.ErrRecordNotFound。

type fakeFileRepo struct {
	files  map[uint]*model.FileRecord
	nextID uint
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[uint]*model.FileRecord)}
}

func (r *fakeFileRepo) add(f model.FileRecord) *model.FileRecord {
	if f.ID == 0 {
		r.nextID++
		f.ID = r.nextID
	} else if f.ID > r.nextID {
		r.nextID = f.ID
	}
	cp := f
	r.files[cp.ID] = &cp
	return &cp
}

func (r *fakeFileRepo) Upsert(record *model.FileRecord) error {
	for _, f := range r.files {
		if f.Path == record.Path {
			record.ID = f.ID
			record.GroupID = f.GroupID
			record.CreatedAt = f.CreatedAt
			cp := *record
			r.files[f.ID] = &cp
			return nil
		}
	}
	r.nextID++
	record.ID = r.nextID
	cp := *record
	r.files[cp.ID] = &cp
	return nil
}

func (r *fakeFileRepo) FindByID(id uint) (*model.FileRecord, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) FindByPath(path string) (*model.FileRecord, error) {
	for _, f := range r.files {
		if f.Path == path {
			cp := *f
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeFileRepo) FindByIDs(ids []uint) ([]model.FileRecord, error) {
	out := make([]model.FileRecord, 0, len(ids))
	for _, id := range ids {
		if f, ok := r.files[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) FindByGroupID(groupID uint) ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, f := range r.files {
		if !f.Deleted && f.GroupID != nil && *f.GroupID == groupID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFileRepo) FindAllLive() ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, f := range r.files {
		if !f.Deleted {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFileRepo) FindLiveByHash(contentHash string) ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, f := range r.files {
		if !f.Deleted && f.ContentHash == contentHash {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFileRepo) AssignGroup(ids []uint, groupID *uint) error {
	for _, id := range ids {
		if f, ok := r.files[id]; ok {
			if groupID == nil {
				f.GroupID = nil
			} else {
				g := *groupID
				f.GroupID = &g
			}
		}
	}
	return nil
}

func (r *fakeFileRepo) MarkDeleted(id uint) error {
	f, ok := r.files[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !f.Deleted {
		now := time.Now()
		f.Deleted = true
		f.DeletedTime = &now
	}
	return nil
}

type fakeGroupRepo struct {
	groups map[uint]*model.DuplicateGroup
	nextID uint
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: make(map[uint]*model.DuplicateGroup)}
}

func (r *fakeGroupRepo) add(g model.DuplicateGroup) *model.DuplicateGroup {
	if g.ID == 0 {
		r.nextID++
		g.ID = r.nextID
	} else if g.ID > r.nextID {
		r.nextID = g.ID
	}
	cp := g
	r.groups[cp.ID] = &cp
	return &cp
}

func (r *fakeGroupRepo) Create(group *model.DuplicateGroup) error {
	r.nextID++
	group.ID = r.nextID
	cp := *group
	r.groups[cp.ID] = &cp
	return nil
}

func (r *fakeGroupRepo) Save(group *model.DuplicateGroup) error {
	cp := *group
	r.groups[cp.ID] = &cp
	return nil
}

func (r *fakeGroupRepo) Delete(id uint) error {
	delete(r.groups, id)
	return nil
}

func (r *fakeGroupRepo) FindByID(id uint) (*model.DuplicateGroup, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) FindByHash(contentHash string) (*model.DuplicateGroup, error) {
	for _, g := range r.groups {
		if g.ContentHash == contentHash {
			cp := *g
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeGroupRepo) FindByStatus(statuses []string, limit, offset int) ([]model.DuplicateGroup, error) {
	allowed := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		allowed[st] = struct{}{}
	}
	var out []model.DuplicateGroup
	for _, g := range r.groups {
		if len(statuses) == 0 {
			out = append(out, *g)
			continue
		}
		if _, ok := allowed[g.Status]; ok {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeGroupRepo) FindByIDs(ids []uint) ([]model.DuplicateGroup, error) {
	out := make([]model.DuplicateGroup, 0, len(ids))
	for _, id := range ids {
		if g, ok := r.groups[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) FindNextReviewable(afterID uint) (*model.DuplicateGroup, error) {
	var best *model.DuplicateGroup
	for _, g := range r.groups {
		if g.ID <= afterID {
			continue
		}
		if g.Status != model.GroupStatusPending && g.Status != model.GroupStatusAutoSelected {
			continue
		}
		if best == nil || g.ID < best.ID {
			best = g
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeGroupRepo) CountByStatus(status string) (int64, error) {
	var n int64
	for _, g := range r.groups {
		if g.Status == status {
			n++
		}
	}
	return n, nil
}

type fakePrefRepo struct {
	prefs []model.SelectionPreference
}

func (r *fakePrefRepo) FindAllOrdered() ([]model.SelectionPreference, error) {
	out := make([]model.SelectionPreference, len(r.prefs))
	copy(out, r.prefs)
	return out, nil
}

func (r *fakePrefRepo) ReplaceAll(prefs []model.SelectionPreference) error {
	r.prefs = make([]model.SelectionPreference, len(prefs))
	for i, p := range prefs {
		p.ID = uint(i + 1)
		p.SortOrder = i
		p.Priority = model.ClampPriority(p.Priority)
		r.prefs[i] = p
	}
	return nil
}

func (r *fakePrefRepo) DeleteAll() error {
	r.prefs = nil
	return nil
}

type fakeSessionRepo struct {
	sessions map[uint]*model.SelectionSession
	nextID   uint
	activeID uint
	active   bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uint]*model.SelectionSession)}
}

func (r *fakeSessionRepo) Create(session *model.SelectionSession) error {
	r.nextID++
	session.ID = r.nextID
	cp := *session
	r.sessions[cp.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) Save(session *model.SelectionSession) error {
	cp := *session
	r.sessions[cp.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindByID(id uint) (*model.SelectionSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) FindLatestOpen() (*model.SelectionSession, error) {
	var best *model.SelectionSession
	for _, s := range r.sessions {
		if s.CompletedAt != nil {
			continue
		}
		if best == nil || s.ID > best.ID {
			best = s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeSessionRepo) GetActiveID(ctx context.Context) (uint, bool, error) {
	return r.activeID, r.active, nil
}

func (r *fakeSessionRepo) SetActiveID(ctx context.Context, id uint) error {
	r.activeID, r.active = id, true
	return nil
}

func (r *fakeSessionRepo) ClearActiveID(ctx context.Context) error {
	r.activeID, r.active = 0, false
	return nil
}

type fakeJobRepo struct {
	jobs     map[uint]*model.CleanerJob
	jobFiles map[uint]*model.CleanerJobFile
	counters map[uint]map[string]int64
	nextJob  uint
	nextFile uint
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs:     make(map[uint]*model.CleanerJob),
		jobFiles: make(map[uint]*model.CleanerJobFile),
		counters: make(map[uint]map[string]int64),
	}
}

func (r *fakeJobRepo) CreateJobWithFiles(job *model.CleanerJob, files []model.CleanerJobFile) error {
	r.nextJob++
	job.ID = r.nextJob
	cp := *job
	r.jobs[cp.ID] = &cp
	for i := range files {
		r.nextFile++
		files[i].ID = r.nextFile
		files[i].JobID = job.ID
		fcp := files[i]
		r.jobFiles[fcp.ID] = &fcp
	}
	return nil
}

func (r *fakeJobRepo) SaveJob(job *model.CleanerJob) error {
	cp := *job
	r.jobs[cp.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindJobByID(id uint) (*model.CleanerJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) ListJobs(limit, offset int) ([]model.CleanerJob, error) {
	var out []model.CleanerJob
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeJobRepo) FindJobFiles(jobID uint) ([]model.CleanerJobFile, error) {
	var out []model.CleanerJobFile
	for _, f := range r.jobFiles {
		if f.JobID == jobID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeJobRepo) FindJobFileByRecord(jobID uint, fileRecordID uint) (*model.CleanerJobFile, error) {
	for _, f := range r.jobFiles {
		if f.JobID == jobID && f.FileRecordID != nil && *f.FileRecordID == fileRecordID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeJobRepo) SaveJobFile(file *model.CleanerJobFile) error {
	cp := *file
	r.jobFiles[cp.ID] = &cp
	return nil
}

func (r *fakeJobRepo) IncrJobCounter(ctx context.Context, jobID uint, field string) (int64, error) {
	if r.counters[jobID] == nil {
		r.counters[jobID] = make(map[string]int64)
	}
	r.counters[jobID][field]++
	return r.counters[jobID][field], nil
}

func (r *fakeJobRepo) GetJobCounters(ctx context.Context, jobID uint) (map[string]int64, error) {
	out := make(map[string]int64)
	for k, v := range r.counters[jobID] {
		out[k] = v
	}
	return out, nil
}

func (r *fakeJobRepo) ClearJobCounters(ctx context.Context, jobID uint) error {
	delete(r.counters, jobID)
	return nil
}

// fakeDispatcher 记录下发的指令，模拟协调中枢。
type sentCommand struct {
	kind    string
	msgType string
	payload interface{}
}

type fakeDispatcher struct {
	online bool
	sent   []sentCommand
}

func (d *fakeDispatcher) SendToRole(kind, msgType string, payload interface{}) error {
	if !d.online {
		return ErrNoWorkerConnected
	}
	d.sent = append(d.sent, sentCommand{kind: kind, msgType: msgType, payload: payload})
	return nil
}

func (d *fakeDispatcher) HasRole(kind string) bool {
	return d.online
}
