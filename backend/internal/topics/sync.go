// Package topics projects the artifacts of an external clustering run into
// the graph: micro topics, the macro topics grouping them, the SUB_TOPIC_OF
// hierarchy and the ABOUT_TOPIC edges from posts to micro topics.
package topics

import (
	"context"
	"fmt"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// Store is the graph surface written by topic sync
type Store interface {
	Connect(ctx context.Context) error
	UpsertMicroTopics(ctx context.Context, project string, topics []graph.MicroTopic) (int, error)
	UpsertMacroTopics(ctx context.Context, project string, topics []graph.MacroTopic) (int, error)
	LinkSubTopics(ctx context.Context, links []graph.Link) (int, error)
	LinkPostTopics(ctx context.Context, links []graph.Link) (int, error)
	ClearProjectTopics(ctx context.Context, project string) (int, error)
}

// Request selects a clustering run to sync. Dir overrides the artifact
// directory derived from the data root, topic and date.
type Request struct {
	Project       string `json:"topic" binding:"required"`
	Date          string `json:"date"`
	Dir           string `json:"dir,omitempty"`
	ClearExisting bool   `json:"clear_existing"`
}

// Syncer runs topic hierarchy syncs
type Syncer struct {
	cfg   *config.Config
	store Store
	log   *zap.Logger
}

// NewSyncer creates a topic syncer
func NewSyncer(cfg *config.Config, store Store) *Syncer {
	return &Syncer{
		cfg:   cfg,
		store: store,
		log:   logger.Component(nil, "topics"),
	}
}

// Sync loads the artifacts of a run and writes them
func (s *Syncer) Sync(ctx context.Context, req Request) outcome.Outcome {
	if err := s.cfg.RequireGraph(); err != nil {
		return outcome.FromError(err)
	}

	dir := req.Dir
	if dir == "" {
		dir = ArtifactDir(s.cfg.DataRoot, req.Project, req.Date)
	}
	artifacts, err := LoadArtifacts(dir)
	if err != nil {
		s.log.Error("Failed to load topic artifacts", zap.String("dir", dir), zap.Error(err))
		return outcome.FromError(err)
	}
	return s.SyncArtifacts(ctx, req.Project, artifacts, req.ClearExisting)
}

// SyncArtifacts writes already decoded artifacts under project
func (s *Syncer) SyncArtifacts(ctx context.Context, project string, a *Artifacts, clearExisting bool) outcome.Outcome {
	if err := s.cfg.RequireGraph(); err != nil {
		return outcome.FromError(err)
	}
	if err := s.store.Connect(ctx); err != nil {
		return outcome.FromError(err)
	}

	log := s.log.With(zap.String("project", project))
	counters := map[string]int{}

	if clearExisting {
		n, err := s.store.ClearProjectTopics(ctx, project)
		if err != nil {
			return outcome.FromError(err)
		}
		counters[outcome.Cleared] = n
	}

	// 1. micro topics, indexed by name for the hierarchy step
	nameIndex := make(map[string]string, len(a.Topics))
	micro := make([]graph.MicroTopic, 0, len(a.Topics))
	for _, t := range a.Topics {
		if t.ID == constants.NoiseClusterID {
			continue
		}
		id := identity.MicroTopicID(project, t.ID)
		nameIndex[t.Name] = id
		micro = append(micro, graph.MicroTopic{
			ID:        id,
			ClusterID: t.ID,
			Name:      t.Name,
			Count:     t.Count,
			Frequency: t.Frequency,
			Keywords:  a.Keywords[fmt.Sprintf("Topic_%d", t.ID)],
		})
	}
	n, err := s.store.UpsertMicroTopics(ctx, project, micro)
	if err != nil {
		return outcome.FromError(err)
	}
	counters[outcome.Micro] = n

	// 2. macro topics and 3. hierarchy edges resolved by member name
	macro := make([]graph.MacroTopic, 0, len(a.Clusters))
	var hierarchy []graph.Link
	unmatched := 0
	for _, c := range a.Clusters {
		id := identity.MacroTopicID(project, c.Label)
		macro = append(macro, graph.MacroTopic{
			ID:          id,
			Label:       c.Label,
			Name:        c.Name,
			Description: c.Description,
			Keywords:    a.ClusterKeywords[c.Label],
		})
		for _, member := range c.Members {
			microID, ok := nameIndex[member]
			if !ok {
				unmatched++
				continue
			}
			hierarchy = append(hierarchy, graph.Link{From: microID, To: id})
		}
	}
	if n, err = s.store.UpsertMacroTopics(ctx, project, macro); err != nil {
		return outcome.FromError(err)
	}
	counters[outcome.Macro] = n
	if n, err = s.store.LinkSubTopics(ctx, hierarchy); err != nil {
		return outcome.FromError(err)
	}
	counters[outcome.Hierarchy] = n
	if unmatched > 0 {
		log.Debug("Macro members without a matching micro topic", zap.Int("unmatched", unmatched))
	}

	// 4. post associations, batched
	linked, err := s.linkPosts(ctx, project, a.Documents)
	if err != nil {
		return outcome.FromError(err)
	}
	counters[outcome.PostLinks] = linked

	log.Info("Topic sync completed",
		zap.Int("micro", counters[outcome.Micro]),
		zap.Int("macro", counters[outcome.Macro]),
		zap.Int("hierarchy", counters[outcome.Hierarchy]),
		zap.Int("post_links", linked),
	)
	return outcome.OK(fmt.Sprintf("synced %d micro and %d macro topics", counters[outcome.Micro], counters[outcome.Macro]), counters)
}

func (s *Syncer) linkPosts(ctx context.Context, project string, docs []Assignment) (int, error) {
	size := s.cfg.SyncBatchSize
	if size <= 0 {
		size = constants.DefaultBatchSize
	}

	total := 0
	batch := make([]graph.Link, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.store.LinkPostTopics(ctx, batch)
		if err != nil {
			return err
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for _, d := range docs {
		if d.PostID == "" || d.Channel == "" || d.ClusterID == constants.NoiseClusterID {
			continue
		}
		batch = append(batch, graph.Link{
			From: identity.PostID(project, d.Channel, d.PostID),
			To:   identity.MicroTopicID(project, d.ClusterID),
		})
		if len(batch) >= size {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
