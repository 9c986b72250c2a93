package extraction

import (
	"context"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/evidence"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// Writer is the graph surface used for mentions and classification topics
type Writer interface {
	UpsertMentions(ctx context.Context, postID string, entities []graph.EntityRecord) (int, error)
	UpsertClassificationTopic(ctx context.Context, postID, topicID, topic, label string) error
	UpsertFrames(ctx context.Context, postID string, frames []graph.TagRecord) (int, error)
	UpsertEvents(ctx context.Context, postID string, events []graph.TagRecord) (int, error)
}

// Result counts what one post's extraction wrote
type Result struct {
	Mentions int
	Claims   int
	Frames   int
	Events   int
	Omitted  int
}

// Enricher runs extraction for one post and writes the results
type Enricher struct {
	extractor TextExtractor
	writer    Writer
	linker    *evidence.Linker
	logger    *zap.Logger
}

// NewEnricher creates an extraction enricher. A nil extractor means
// NoopExtractor; a nil linker disables claim writing.
func NewEnricher(extractor TextExtractor, writer Writer, linker *evidence.Linker) *Enricher {
	if extractor == nil {
		extractor = NoopExtractor{}
	}
	return &Enricher{
		extractor: extractor,
		writer:    writer,
		linker:    linker,
		logger:    logger.Component(nil, "extraction"),
	}
}

// Enrich writes the post's classification topic, its entity mentions and,
// when the extractor supports them, its frames, events and claims. Claims that
// fail validation are counted as omitted without failing the post.
func (e *Enricher) Enrich(ctx context.Context, post graph.PostRecord) (Result, error) {
	var res Result

	label := identity.NormalizeClassification(post.Classification)
	topicID := identity.ClassificationTopicID(post.Topic, label)
	if err := e.writer.UpsertClassificationTopic(ctx, post.ID, topicID, post.Topic, label); err != nil {
		return res, apperrors.NewEnrichmentFailed("classification", post.ID, err)
	}

	entities, err := e.extractor.Extract(ctx, post.Contents)
	if err != nil {
		return res, apperrors.NewEnrichmentFailed("entity extraction", post.ID, err)
	}
	if unique := Dedupe(entities); len(unique) > 0 {
		records := make([]graph.EntityRecord, 0, len(unique))
		for _, ent := range unique {
			records = append(records, graph.EntityRecord{
				ID:    identity.EntityID(post.Topic, ent.Name, ent.Type),
				Name:  ent.Name,
				Type:  ent.Type,
				Topic: post.Topic,
			})
		}
		n, err := e.writer.UpsertMentions(ctx, post.ID, records)
		if err != nil {
			return res, apperrors.NewEnrichmentFailed("mentions", post.ID, err)
		}
		res.Mentions = n
	}

	if fe, ok := e.extractor.(FrameExtractor); ok {
		names, err := fe.ExtractFrames(ctx, post.Contents)
		if err != nil {
			return res, apperrors.NewEnrichmentFailed("frame extraction", post.ID, err)
		}
		n, err := e.writeTags(ctx, post, names, identity.FrameID, e.writer.UpsertFrames)
		if err != nil {
			return res, apperrors.NewEnrichmentFailed("frames", post.ID, err)
		}
		res.Frames = n
	}

	if ee, ok := e.extractor.(EventExtractor); ok {
		names, err := ee.ExtractEvents(ctx, post.Contents)
		if err != nil {
			return res, apperrors.NewEnrichmentFailed("event extraction", post.ID, err)
		}
		eventID := func(name string) string { return identity.EventID(post.Topic, name) }
		n, err := e.writeTags(ctx, post, names, eventID, e.writer.UpsertEvents)
		if err != nil {
			return res, apperrors.NewEnrichmentFailed("events", post.ID, err)
		}
		res.Events = n
	}

	claimExtractor, ok := e.extractor.(ClaimExtractor)
	if !ok || e.linker == nil {
		return res, nil
	}
	assertions, err := claimExtractor.ExtractClaims(ctx, post.Contents)
	if err != nil {
		return res, apperrors.NewEnrichmentFailed("claim extraction", post.ID, err)
	}
	for _, a := range assertions {
		if _, err := e.linker.Assert(ctx, post.ID, post.Topic, a); err != nil {
			e.logger.Warn("Claim omitted",
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			res.Omitted++
			continue
		}
		res.Claims++
	}
	return res, nil
}

type tagWriter func(ctx context.Context, postID string, tags []graph.TagRecord) (int, error)

func (e *Enricher) writeTags(ctx context.Context, post graph.PostRecord, names []string, id func(string) string, write tagWriter) (int, error) {
	unique := UniqueNames(names)
	if len(unique) == 0 {
		return 0, nil
	}
	tags := make([]graph.TagRecord, 0, len(unique))
	for _, name := range unique {
		tags = append(tags, graph.TagRecord{ID: id(name), Name: name, Topic: post.Topic})
	}
	return write(ctx, post.ID, tags)
}
