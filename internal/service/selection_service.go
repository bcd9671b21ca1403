// Package service 包含了应用的业务逻辑层。
package service

import (
	"fmt"
	"sort"
	"strings"

	"photokeeper-go/internal/config"
	"photokeeper-go/internal/model"
	"photokeeper-go/internal/repository"
	"photokeeper-go/pkg/log"
)

// 重算模式与范围。
const (
	RecalcModePreview = "preview"
	RecalcModeApply   = "apply"

	RecalcScopePending = "pending"
	RecalcScopeAll     = "all"
)

// 平局裁决策略。路径评分不足以区分时作为额外输入，不替代路径评分。
const (
	StrategyPathPriority    = "path_priority"
	StrategyEarliestCapture = "earliest_capture"
	StrategyLargestFile     = "largest_file"
)

// ScoreBreakdown 是单个候选文件的评分明细。
type ScoreBreakdown struct {
	FileID     uint    `json:"fileId"`
	Path       string  `json:"path"`
	PathScore  float64 `json:"pathScore"`
	MetaScore  float64 `json:"metaScore"`
	DepthScore float64 `json:"depthScore"`
	Total      float64 `json:"total"`
}

// Proposal 是一个组的评分结论。Conflict 为 true 时 OriginalFileID 为 0。
type Proposal struct {
	GroupID        uint             `json:"groupId"`
	OriginalFileID uint             `json:"originalFileId"`
	Conflict       bool             `json:"conflict"`
	Scores         []ScoreBreakdown `json:"scores"`
}

// RecalcReport 是一次重算的汇总结果。
type RecalcReport struct {
	Mode      string     `json:"mode"`
	Scope     string     `json:"scope"`
	Evaluated int        `json:"evaluated"`
	Proposed  int        `json:"proposed"`
	Conflicts int        `json:"conflicts"`
	Proposals []Proposal `json:"proposals"`
}

// SelectionService 接口定义了原始文件选择引擎的业务操作。
type SelectionService interface {
	GetPreferences() ([]model.SelectionPreference, error)
	SavePreferences(prefs []model.SelectionPreference) error
	ResetPreferences() error
	ScoreGroup(groupID uint, members []model.FileRecord, prefs []model.SelectionPreference, strategy string) Proposal
	Recalculate(mode, scope, strategy string) (*RecalcReport, error)
}

type selectionService struct {
	prefRepo  repository.PreferenceRepository
	groupRepo repository.GroupRepository
	fileRepo  repository.FileRepository
	cfg       config.SelectionConfig
}

// NewSelectionService 创建一个新的 SelectionService 实例。
func NewSelectionService(prefRepo repository.PreferenceRepository, groupRepo repository.GroupRepository, fileRepo repository.FileRepository, cfg config.SelectionConfig) SelectionService {
	return &selectionService{
		prefRepo:  prefRepo,
		groupRepo: groupRepo,
		fileRepo:  fileRepo,
		cfg:       cfg,
	}
}

// GetPreferences 返回当前的路径前缀优先级规则。
func (s *selectionService) GetPreferences() ([]model.SelectionPreference, error) {
	return s.prefRepo.FindAllOrdered()
}

// SavePreferences 整体替换偏好规则。同一前缀出现两次视为冲突，在写入前拒绝。
func (s *selectionService) SavePreferences(prefs []model.SelectionPreference) error {
	seen := make(map[string]struct{}, len(prefs))
	for _, p := range prefs {
		prefix := strings.TrimSpace(p.PathPrefix)
		if prefix == "" {
			return fmt.Errorf("%w: 路径前缀不能为空", ErrValidation)
		}
		if _, ok := seen[prefix]; ok {
			return fmt.Errorf("%w: 路径前缀重复: %s", ErrConflict, prefix)
		}
		seen[prefix] = struct{}{}
	}
	return s.prefRepo.ReplaceAll(prefs)
}

// ResetPreferences 清空全部偏好规则，恢复到仅有中性默认优先级的状态。
func (s *selectionService) ResetPreferences() error {
	return s.prefRepo.DeleteAll()
}

// pathPriority 返回文件路径的优先级：最长前缀匹配取胜，未命中时为中性默认值。
func (s *selectionService) pathPriority(path string, prefs []model.SelectionPreference) int {
	best := -1
	priority := s.cfg.DefaultPriority
	for _, p := range prefs {
		if strings.HasPrefix(path, p.PathPrefix) && len(p.PathPrefix) > best {
			best = len(p.PathPrefix)
			priority = model.ClampPriority(p.Priority)
		}
	}
	return priority
}

// pathDepth 返回路径的目录层级数。
func pathDepth(path string) int {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/")
}

// score 计算单个候选文件的加权总分。
func (s *selectionService) score(f *model.FileRecord, prefs []model.SelectionPreference) ScoreBreakdown {
	b := ScoreBreakdown{FileID: f.ID, Path: f.Path}
	b.PathScore = s.cfg.PathWeight * float64(s.pathPriority(f.Path, prefs))
	if f.HasRichMetadata() {
		b.MetaScore = s.cfg.MetadataBonus
	}
	b.DepthScore = s.cfg.DepthBonus * float64(pathDepth(f.Path))
	b.Total = b.PathScore + b.MetaScore + b.DepthScore
	return b
}

// ScoreGroup 对一个组的所有成员评分并给出提案。
// 前两名分差低于阈值时，先尝试给定的平局策略；仍无法区分则标记为冲突。
func (s *selectionService) ScoreGroup(groupID uint, members []model.FileRecord, prefs []model.SelectionPreference, strategy string) Proposal {
	prop := Proposal{GroupID: groupID}
	if len(members) == 0 {
		prop.Conflict = true
		return prop
	}

	scores := make([]ScoreBreakdown, 0, len(members))
	for i := range members {
		scores = append(scores, s.score(&members[i], prefs))
	}
	// 按总分降序，分数相同按 id 升序保证报告输出稳定
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].FileID < scores[j].FileID
	})
	prop.Scores = scores

	if len(scores) == 1 {
		prop.OriginalFileID = scores[0].FileID
		return prop
	}

	margin := scores[0].Total - scores[1].Total
	if margin >= s.cfg.ConflictThreshold {
		prop.OriginalFileID = scores[0].FileID
		return prop
	}

	// 路径评分不足以区分：收集与榜首同处阈值带内的候选，交给平局策略
	tied := []uint{scores[0].FileID}
	for _, sc := range scores[1:] {
		if scores[0].Total-sc.Total < s.cfg.ConflictThreshold {
			tied = append(tied, sc.FileID)
		}
	}
	if winner, ok := s.breakTie(tied, members, strategy); ok {
		prop.OriginalFileID = winner
		return prop
	}

	prop.Conflict = true
	return prop
}

// breakTie 在阈值带内的候选之间应用平局策略。
// 策略也无法选出唯一胜者（取值相同或缺失）时返回 false。
func (s *selectionService) breakTie(tiedIDs []uint, members []model.FileRecord, strategy string) (uint, bool) {
	if strategy == "" || strategy == StrategyPathPriority {
		return 0, false
	}

	byID := make(map[uint]*model.FileRecord, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}

	switch strategy {
	case StrategyEarliestCapture:
		var winner uint
		var unique bool
		for _, id := range tiedIDs {
			f := byID[id]
			if f == nil || f.CaptureTime == nil {
				continue
			}
			if winner == 0 {
				winner, unique = id, true
				continue
			}
			w := byID[winner]
			if f.CaptureTime.Before(*w.CaptureTime) {
				winner, unique = id, true
			} else if f.CaptureTime.Equal(*w.CaptureTime) {
				unique = false
			}
		}
		return winner, winner != 0 && unique
	case StrategyLargestFile:
		// 精确重复的大小必然一致，但策略对近似重复作业同样适用
		var winner uint
		var best int64 = -1
		unique := false
		for _, id := range tiedIDs {
			f := byID[id]
			if f == nil {
				continue
			}
			if f.Size > best {
				best, winner, unique = f.Size, id, true
			} else if f.Size == best {
				unique = false
			}
		}
		return winner, unique
	default:
		return 0, false
	}
}

// Recalculate 对指定范围内的组重新评分。
// preview 模式只返回将会发生的结果；apply 模式持久化状态与 originalFileId。
// 同样输入下重复执行产生相同提案（幂等）。单个组的失败不阻塞其余组。
func (s *selectionService) Recalculate(mode, scope, strategy string) (*RecalcReport, error) {
	if mode != RecalcModePreview && mode != RecalcModeApply {
		return nil, fmt.Errorf("%w: 无效的重算模式: %s", ErrValidation, mode)
	}
	if scope != RecalcScopePending && scope != RecalcScopeAll {
		return nil, fmt.Errorf("%w: 无效的重算范围: %s", ErrValidation, scope)
	}

	prefs, err := s.prefRepo.FindAllOrdered()
	if err != nil {
		return nil, fmt.Errorf("加载偏好规则失败: %w", err)
	}

	statuses := []string{model.GroupStatusPending, model.GroupStatusAutoSelected}
	if scope == RecalcScopeAll {
		// 偏好变更后可以重估已经人工确认的组，但不触碰清理中/已清理的组
		statuses = append(statuses, model.GroupStatusValidated)
	}
	groups, err := s.groupRepo.FindByStatus(statuses, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("加载重复组失败: %w", err)
	}

	report := &RecalcReport{Mode: mode, Scope: scope}
	for i := range groups {
		group := &groups[i]
		members, err := s.fileRepo.FindByGroupID(group.ID)
		if err != nil {
			log.Errorf("[Recalculate] 加载组成员失败, groupID=%d, err=%v", group.ID, err)
			continue
		}
		if len(members) < 2 {
			continue
		}

		prop := s.ScoreGroup(group.ID, members, prefs, strategy)
		report.Evaluated++
		if prop.Conflict {
			report.Conflicts++
		} else {
			report.Proposed++
		}
		report.Proposals = append(report.Proposals, prop)

		if mode != RecalcModeApply {
			continue
		}
		if err := s.applyProposal(group, &prop); err != nil {
			log.Errorf("[Recalculate] 持久化提案失败, groupID=%d, err=%v", group.ID, err)
		}
	}

	log.Infof("[Recalculate] 完成: mode=%s, scope=%s, evaluated=%d, proposed=%d, conflicts=%d",
		mode, scope, report.Evaluated, report.Proposed, report.Conflicts)
	return report, nil
}

// applyProposal 将一个提案写回组。提案未变化时不产生任何写操作。
func (s *selectionService) applyProposal(group *model.DuplicateGroup, prop *Proposal) error {
	if prop.Conflict {
		if group.Status == model.GroupStatusPending && group.Conflict && group.OriginalFileID == nil {
			return nil
		}
		group.Status = model.GroupStatusPending
		group.Conflict = true
		group.OriginalFileID = nil
		group.ValidatedAt = nil
		group.LastAction = ""
		return s.groupRepo.Save(group)
	}

	if group.OriginalFileID != nil && *group.OriginalFileID == prop.OriginalFileID &&
		group.Status != model.GroupStatusPending && !group.Conflict {
		// 胜者未变：已确认的组保持确认状态，提案是幂等的
		return nil
	}
	id := prop.OriginalFileID
	group.OriginalFileID = &id
	group.Conflict = false
	group.Status = model.GroupStatusAutoSelected
	group.ValidatedAt = nil
	group.LastAction = model.GroupActionPropose
	return s.groupRepo.Save(group)
}
