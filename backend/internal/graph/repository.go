package graph

import (
	"context"
	"fmt"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Repository handles all Neo4j write operations. Every write is a MERGE on the
// node's identity key, and relationship writes MATCH both endpoints first.
type Repository struct {
	client *Client
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(client *Client) *Repository {
	return &Repository{
		client: client,
		logger: logger.Component(nil, "graph.repository"),
	}
}

// Connect verifies the backend is reachable
func (r *Repository) Connect(ctx context.Context) error {
	return r.client.Connect(ctx)
}

// Close closes the underlying client
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close(ctx)
}

// write runs one statement in a managed write transaction and returns the
// integer in column "n" when the statement returns one
func (r *Repository) write(ctx context.Context, operation, query string, params map[string]any) (int, error) {
	out, err := r.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			n := getIntFromRecord(result.Record(), "n")
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
			return n, nil
		}
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		return 0, nil
	})
	if err != nil {
		if apperrors.IsConfigMissing(err) || apperrors.IsErrorType(err, apperrors.ErrorTypeGraph) {
			return 0, err
		}
		return 0, apperrors.NewGraphQueryFailed(operation, err)
	}
	n, _ := out.(int)
	return n, nil
}

// ============================================================================
// Core graph: Platform / Account / Post
// ============================================================================

// UpsertPosts writes one batch of posts with their accounts, platforms and
// POSTED / IN_PLATFORM edges in a single transaction
func (r *Repository) UpsertPosts(ctx context.Context, posts []PostRecord) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	batch := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		batch = append(batch, p.params())
	}

	query := `
		UNWIND $batch AS row
		MERGE (p:Platform {name: row.channel})

		MERGE (a:Account {id: row.account_id})
		SET a.topic = row.topic, a.author = row.author

		MERGE (post:Post {id: row.post_id})
		SET post.topic = row.topic,
		    post.channel = row.channel,
		    post.title = row.title,
		    post.contents = row.contents,
		    post.platform = row.platform,
		    post.author = row.author,
		    post.published_at = row.published_at,
		    post.url = row.url,
		    post.region = row.region,
		    post.hit_words = row.hit_words,
		    post.polarity = row.polarity,
		    post.classification = row.classification

		MERGE (a)-[:POSTED]->(post)
		MERGE (post)-[:IN_PLATFORM]->(p)
		RETURN count(DISTINCT post) AS n
	`

	n, err := r.write(ctx, "upsert posts", query, map[string]any{"batch": batch})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("Posts upserted", zap.Int("count", n))
	return n, nil
}

// ============================================================================
// Enrichment: Chunk / Entity / classification Topic
// ============================================================================

// UpsertChunks writes a post's chunks and HAS_CHUNK edges
func (r *Repository) UpsertChunks(ctx context.Context, postID string, chunks []ChunkRecord) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, map[string]any{
			"id":          c.ID,
			"chunk_index": c.Index,
			"text":        c.Text,
		})
	}

	query := `
		UNWIND $chunks AS row
		MERGE (c:Chunk {id: row.id})
		SET c.post_id = $post_id, c.chunk_index = row.chunk_index, c.text = row.text
		WITH c
		MATCH (p:Post {id: $post_id})
		MERGE (p)-[:HAS_CHUNK]->(c)
	`

	if _, err := r.write(ctx, "upsert chunks", query, map[string]any{
		"post_id": postID,
		"chunks":  rows,
	}); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// UpsertMentions writes entities and the post's MENTIONS edges. Callers
// de-duplicate entities first.
func (r *Repository) UpsertMentions(ctx context.Context, postID string, entities []EntityRecord) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]any{
			"id":    e.ID,
			"name":  e.Name,
			"type":  e.Type,
			"topic": e.Topic,
		})
	}

	query := `
		UNWIND $entities AS row
		MERGE (e:Entity {id: row.id})
		SET e.name = row.name, e.type = row.type, e.topic = row.topic
		WITH e
		MATCH (p:Post {id: $post_id})
		MERGE (p)-[:MENTIONS]->(e)
	`

	if _, err := r.write(ctx, "upsert mentions", query, map[string]any{
		"post_id":  postID,
		"entities": rows,
	}); err != nil {
		return 0, err
	}
	return len(entities), nil
}

// UpsertFrames writes narrative frames and the post's HAS_FRAME edges
func (r *Repository) UpsertFrames(ctx context.Context, postID string, frames []TagRecord) (int, error) {
	return r.upsertTags(ctx, "upsert frames", constants.LabelFrame, constants.RelHasFrame, postID, frames)
}

// UpsertEvents writes events and the post's PART_OF_EVENT edges
func (r *Repository) UpsertEvents(ctx context.Context, postID string, events []TagRecord) (int, error) {
	return r.upsertTags(ctx, "upsert events", constants.LabelEvent, constants.RelPartOfEvent, postID, events)
}

func (r *Repository) upsertTags(ctx context.Context, operation, label, rel, postID string, tags []TagRecord) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, map[string]any{
			"id":    tag.ID,
			"name":  tag.Name,
			"topic": tag.Topic,
		})
	}

	query := fmt.Sprintf(`
		UNWIND $tags AS row
		MERGE (n:%s {id: row.id})
		SET n.name = row.name, n.topic = row.topic
		WITH n
		MATCH (p:Post {id: $post_id})
		MERGE (p)-[:%s]->(n)
	`, label, rel)

	if _, err := r.write(ctx, operation, query, map[string]any{
		"post_id": postID,
		"tags":    rows,
	}); err != nil {
		return 0, err
	}
	return len(tags), nil
}

// UpsertClassificationTopic writes a coarse classification topic and the
// post's ABOUT_TOPIC edge to it
func (r *Repository) UpsertClassificationTopic(ctx context.Context, postID, topicID, topic, label string) error {
	query := fmt.Sprintf(`
		MERGE (t:Topic {id: $topic_id})
		SET t:%s, t.name = $name, t.topic = $topic, t.level = $level
		WITH t
		MATCH (p:Post {id: $post_id})
		MERGE (p)-[:ABOUT_TOPIC]->(t)
	`, constants.LabelClassificationTopic)

	_, err := r.write(ctx, "upsert classification topic", query, map[string]any{
		"topic_id": topicID,
		"name":     label,
		"topic":    topic,
		"level":    constants.TopicLevelClassification,
		"post_id":  postID,
	})
	return err
}

// ============================================================================
// Topic hierarchy: micro / macro topics
// ============================================================================

// UpsertMicroTopics writes one Topic node per cluster
func (r *Repository) UpsertMicroTopics(ctx context.Context, project string, topics []MicroTopic) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, map[string]any{
			"id":         t.ID,
			"cluster_id": t.ClusterID,
			"name":       t.Name,
			"count":      t.Count,
			"frequency":  t.Frequency,
			"keywords":   nonNilStrings(t.Keywords),
		})
	}

	query := fmt.Sprintf(`
		UNWIND $topics AS row
		MERGE (t:Topic {id: row.id})
		SET t:%s,
		    t.name = row.name,
		    t.cluster_id = row.cluster_id,
		    t.count = row.count,
		    t.frequency = row.frequency,
		    t.project = $project,
		    t.source = 'BERTopic',
		    t.level = $level,
		    t.keywords = row.keywords
		RETURN count(t) AS n
	`, constants.LabelMicroTopic)

	return r.write(ctx, "upsert micro topics", query, map[string]any{
		"topics":  rows,
		"project": project,
		"level":   constants.TopicLevelMicro,
	})
}

// UpsertMacroTopics writes one Topic node per macro grouping
func (r *Repository) UpsertMacroTopics(ctx context.Context, project string, topics []MacroTopic) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, map[string]any{
			"id":          t.ID,
			"label":       t.Label,
			"name":        t.Name,
			"description": t.Description,
			"keywords":    nonNilStrings(t.Keywords),
		})
	}

	query := fmt.Sprintf(`
		UNWIND $topics AS row
		MERGE (t:Topic {id: row.id})
		SET t:%s,
		    t.name = row.name,
		    t.label = row.label,
		    t.description = row.description,
		    t.project = $project,
		    t.source = 'LLM_Cluster',
		    t.level = $level,
		    t.keywords = row.keywords
		RETURN count(t) AS n
	`, constants.LabelMacroTopic)

	return r.write(ctx, "upsert macro topics", query, map[string]any{
		"topics":  rows,
		"project": project,
		"level":   constants.TopicLevelMacro,
	})
}

// LinkSubTopics writes micro -> macro hierarchy edges between existing topics
func (r *Repository) LinkSubTopics(ctx context.Context, links []Link) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		UNWIND $links AS row
		MATCH (sub:Topic {id: row.from})
		MATCH (parent:Topic {id: row.to})
		MERGE (sub)-[:%s]->(parent)
		RETURN count(*) AS n
	`, constants.RelSubTopicOf)

	return r.write(ctx, "link sub topics", query, map[string]any{"links": linkParams(links)})
}

// LinkPostTopics writes Post -> Topic ABOUT_TOPIC edges. Neither endpoint is
// created: rows whose post or topic does not exist are dropped.
func (r *Repository) LinkPostTopics(ctx context.Context, links []Link) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	query := `
		UNWIND $links AS row
		MATCH (p:Post {id: row.from})
		MATCH (t:Topic {id: row.to})
		MERGE (p)-[:ABOUT_TOPIC]->(t)
		RETURN count(*) AS n
	`
	return r.write(ctx, "link post topics", query, map[string]any{"links": linkParams(links)})
}

// ClearProjectTopics detach-deletes every clustering topic of a project
func (r *Repository) ClearProjectTopics(ctx context.Context, project string) (int, error) {
	query := `
		MATCH (t:Topic {project: $project})
		DETACH DELETE t
		RETURN count(*) AS n
	`
	n, err := r.write(ctx, "clear project topics", query, map[string]any{"project": project})
	if err != nil {
		return 0, err
	}
	r.logger.Info("Cleared project topics", zap.String("project", project), zap.Int("deleted", n))
	return n, nil
}

// ClearTopicScope detach-deletes every node carrying the topic scope. Shared
// Platform nodes never carry a topic and are kept.
func (r *Repository) ClearTopicScope(ctx context.Context, topic string) (int, error) {
	query := `
		MATCH (node) WHERE node.topic = $topic
		DETACH DELETE node
		RETURN count(*) AS n
	`
	n, err := r.write(ctx, "clear topic scope", query, map[string]any{"topic": topic})
	if err != nil {
		return 0, err
	}
	r.logger.Info("Cleared topic scope", zap.String("topic", topic), zap.Int("deleted", n))
	return n, nil
}

// ============================================================================
// Evidence: SourceDoc / Claim
// ============================================================================

// UpsertSourceDoc writes an evidence document by its caller-supplied id
func (r *Repository) UpsertSourceDoc(ctx context.Context, doc SourceDoc) error {
	query := `
		MERGE (s:SourceDoc {id: $id})
		SET s.title = $title,
		    s.content = $content,
		    s.url = $url,
		    s.author = $author,
		    s.publish_date = $publish_date,
		    s.type = $type
	`
	_, err := r.write(ctx, "upsert source doc", query, map[string]any{
		"id":           doc.ID,
		"title":        doc.Title,
		"content":      doc.Content,
		"url":          doc.URL,
		"author":       doc.Author,
		"publish_date": doc.PublishDate,
		"type":         doc.Type,
	})
	return err
}

// UpsertClaim writes a claim and, when postID is set, the post's ASSERTS edge
func (r *Repository) UpsertClaim(ctx context.Context, postID string, claim Claim) error {
	query := `
		MERGE (c:Claim {id: $id})
		SET c.content = $content, c.topic = $topic
		WITH c
		OPTIONAL MATCH (p:Post {id: $post_id})
		FOREACH (_ IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
			MERGE (p)-[:ASSERTS]->(c))
	`
	_, err := r.write(ctx, "upsert claim", query, map[string]any{
		"id":      claim.ID,
		"content": claim.Content,
		"topic":   claim.Topic,
		"post_id": postID,
	})
	return err
}

// LinkClaimToSource writes a Claim -> SourceDoc edge of the given kind and
// reports whether both endpoints existed
func (r *Repository) LinkClaimToSource(ctx context.Context, claimID, docID string, relation Relation) (bool, error) {
	if !relation.Valid() {
		return false, apperrors.NewInvalidRelation(relation.String())
	}
	// Relationship types cannot be parameters; the closed enum keeps this safe
	query := fmt.Sprintf(`
		MATCH (c:Claim {id: $claim_id})
		MATCH (s:SourceDoc {id: $doc_id})
		MERGE (c)-[:%s]->(s)
		RETURN count(c) AS n
	`, relation.Type())

	n, err := r.write(ctx, "link claim to source", query, map[string]any{
		"claim_id": claimID,
		"doc_id":   docID,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func linkParams(links []Link) []map[string]any {
	rows := make([]map[string]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, map[string]any{"from": l.From, "to": l.To})
	}
	return rows
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
