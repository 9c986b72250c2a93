// Package graphtest provides an in-memory graph that mirrors the MERGE/MATCH
// semantics of graph.Repository for unit tests.
//
// Nodes are merged on their identity key, and relationships are only written
// when both endpoints already exist, exactly like the Cypher the repository runs.
package graphtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// Node is a stored node: its labels and properties
type Node struct {
	Labels map[string]bool
	Props  map[string]any
}

type edgeKey struct {
	rel  string
	from string
	to   string
}

// Graph is a concurrency-safe fake of the graph write surface
type Graph struct {
	mu    sync.Mutex
	nodes map[string]*Node
	edges map[edgeKey]bool

	// ConnectErr is returned by Connect when set
	ConnectErr error
	// Errors makes the named method fail, e.g. Errors["UpsertChunks"]
	Errors map[string]error
	// FailPosts makes any UpsertPosts batch containing one of these ids fail
	FailPosts map[string]bool

	// PostBatches records the size of every successful UpsertPosts call
	PostBatches []int
	// Writes counts every write call, successful or not
	Writes int
	// Connects counts Connect calls
	Connects int
	// Queries records statements passed to Exec
	Queries []string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]bool),
		Errors:    make(map[string]error),
		FailPosts: make(map[string]bool),
	}
}

func key(label, id string) string {
	return label + ":" + id
}

// merge creates or updates a node keyed by label and id. Caller holds the lock.
func (g *Graph) merge(label, id string, props map[string]any, extraLabels ...string) *Node {
	k := key(label, id)
	n, ok := g.nodes[k]
	if !ok {
		n = &Node{Labels: map[string]bool{label: true}, Props: map[string]any{}}
		g.nodes[k] = n
	}
	for _, l := range extraLabels {
		n.Labels[l] = true
	}
	for p, v := range props {
		n.Props[p] = v
	}
	return n
}

// link merges an edge when both endpoints exist. Caller holds the lock.
func (g *Graph) link(rel, from, to string) bool {
	if g.nodes[from] == nil || g.nodes[to] == nil {
		return false
	}
	g.edges[edgeKey{rel: rel, from: from, to: to}] = true
	return true
}

func (g *Graph) begin(method string) error {
	g.Writes++
	return g.Errors[method]
}

// Connect implements the connectivity check
func (g *Graph) Connect(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Connects++
	return g.ConnectErr
}

// Exec records a schema statement
func (g *Graph) Exec(_ context.Context, query string, _ map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("Exec"); err != nil {
		return err
	}
	g.Queries = append(g.Queries, query)
	return nil
}

// UpsertPosts merges posts with their accounts and platforms in one write group
func (g *Graph) UpsertPosts(_ context.Context, posts []graph.PostRecord) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertPosts"); err != nil {
		return 0, err
	}
	for _, p := range posts {
		if g.FailPosts[p.ID] {
			return 0, apperrors.NewGraphQueryFailed("upsert posts", fmt.Errorf("rejected post %s", p.ID))
		}
	}
	if len(posts) == 0 {
		return 0, nil
	}

	for _, p := range posts {
		g.merge(constants.LabelPlatform, p.Channel, map[string]any{"name": p.Channel})
		g.merge(constants.LabelAccount, p.AccountID, map[string]any{"topic": p.Topic, "author": p.Author})
		g.merge(constants.LabelPost, p.ID, map[string]any{
			"topic":          p.Topic,
			"channel":        p.Channel,
			"title":          p.Title,
			"contents":       p.Contents,
			"platform":       p.Platform,
			"author":         p.Author,
			"published_at":   p.PublishedAt,
			"url":            p.URL,
			"classification": p.Classification,
		})
		postKey := key(constants.LabelPost, p.ID)
		g.link(constants.RelPosted, key(constants.LabelAccount, p.AccountID), postKey)
		g.link(constants.RelInPlatform, postKey, key(constants.LabelPlatform, p.Channel))
	}
	g.PostBatches = append(g.PostBatches, len(posts))
	return len(posts), nil
}

// UpsertChunks merges chunks and HAS_CHUNK edges from an existing post
func (g *Graph) UpsertChunks(_ context.Context, postID string, chunks []graph.ChunkRecord) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertChunks"); err != nil {
		return 0, err
	}
	for _, c := range chunks {
		g.merge(constants.LabelChunk, c.ID, map[string]any{
			"post_id":     postID,
			"chunk_index": c.Index,
			"text":        c.Text,
		})
		g.link(constants.RelHasChunk, key(constants.LabelPost, postID), key(constants.LabelChunk, c.ID))
	}
	return len(chunks), nil
}

// UpsertMentions merges entities and MENTIONS edges from an existing post
func (g *Graph) UpsertMentions(_ context.Context, postID string, entities []graph.EntityRecord) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertMentions"); err != nil {
		return 0, err
	}
	for _, e := range entities {
		g.merge(constants.LabelEntity, e.ID, map[string]any{"name": e.Name, "type": e.Type, "topic": e.Topic})
		g.link(constants.RelMentions, key(constants.LabelPost, postID), key(constants.LabelEntity, e.ID))
	}
	return len(entities), nil
}

// UpsertFrames merges frames and HAS_FRAME edges from an existing post
func (g *Graph) UpsertFrames(_ context.Context, postID string, frames []graph.TagRecord) (int, error) {
	return g.upsertTags("UpsertFrames", constants.LabelFrame, constants.RelHasFrame, postID, frames)
}

// UpsertEvents merges events and PART_OF_EVENT edges from an existing post
func (g *Graph) UpsertEvents(_ context.Context, postID string, events []graph.TagRecord) (int, error) {
	return g.upsertTags("UpsertEvents", constants.LabelEvent, constants.RelPartOfEvent, postID, events)
}

func (g *Graph) upsertTags(method, label, rel, postID string, tags []graph.TagRecord) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(method); err != nil {
		return 0, err
	}
	for _, tag := range tags {
		g.merge(label, tag.ID, map[string]any{"name": tag.Name, "topic": tag.Topic})
		g.link(rel, key(constants.LabelPost, postID), key(label, tag.ID))
	}
	return len(tags), nil
}

// UpsertClassificationTopic merges a classification topic and its ABOUT_TOPIC edge
func (g *Graph) UpsertClassificationTopic(_ context.Context, postID, topicID, topic, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertClassificationTopic"); err != nil {
		return err
	}
	g.merge(constants.LabelTopic, topicID, map[string]any{
		"name":  label,
		"topic": topic,
		"level": constants.TopicLevelClassification,
	}, constants.LabelClassificationTopic)
	g.link(constants.RelAboutTopic, key(constants.LabelPost, postID), key(constants.LabelTopic, topicID))
	return nil
}

// UpsertMicroTopics merges clustering topics
func (g *Graph) UpsertMicroTopics(_ context.Context, project string, topics []graph.MicroTopic) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertMicroTopics"); err != nil {
		return 0, err
	}
	for _, t := range topics {
		g.merge(constants.LabelTopic, t.ID, map[string]any{
			"name":       t.Name,
			"cluster_id": t.ClusterID,
			"count":      t.Count,
			"frequency":  t.Frequency,
			"keywords":   t.Keywords,
			"project":    project,
			"level":      constants.TopicLevelMicro,
		}, constants.LabelMicroTopic)
	}
	return len(topics), nil
}

// UpsertMacroTopics merges macro groupings
func (g *Graph) UpsertMacroTopics(_ context.Context, project string, topics []graph.MacroTopic) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertMacroTopics"); err != nil {
		return 0, err
	}
	for _, t := range topics {
		g.merge(constants.LabelTopic, t.ID, map[string]any{
			"name":        t.Name,
			"label":       t.Label,
			"description": t.Description,
			"keywords":    t.Keywords,
			"project":     project,
			"level":       constants.TopicLevelMacro,
		}, constants.LabelMacroTopic)
	}
	return len(topics), nil
}

// LinkSubTopics merges hierarchy edges between existing topics
func (g *Graph) LinkSubTopics(_ context.Context, links []graph.Link) (int, error) {
	return g.linkAll("LinkSubTopics", constants.RelSubTopicOf, constants.LabelTopic, links)
}

// LinkPostTopics merges ABOUT_TOPIC edges between existing posts and topics
func (g *Graph) LinkPostTopics(_ context.Context, links []graph.Link) (int, error) {
	return g.linkAll("LinkPostTopics", constants.RelAboutTopic, constants.LabelPost, links)
}

func (g *Graph) linkAll(method, rel, fromLabel string, links []graph.Link) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(method); err != nil {
		return 0, err
	}
	n := 0
	for _, l := range links {
		if g.link(rel, key(fromLabel, l.From), key(constants.LabelTopic, l.To)) {
			n++
		}
	}
	return n, nil
}

// ClearProjectTopics detach-deletes every topic of the project
func (g *Graph) ClearProjectTopics(_ context.Context, project string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("ClearProjectTopics"); err != nil {
		return 0, err
	}
	return g.detachDelete(func(k string, n *Node) bool {
		return n.Labels[constants.LabelTopic] && n.Props["project"] == project
	}), nil
}

// ClearTopicScope detach-deletes every node carrying the topic property
func (g *Graph) ClearTopicScope(_ context.Context, topic string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("ClearTopicScope"); err != nil {
		return 0, err
	}
	return g.detachDelete(func(_ string, n *Node) bool {
		return n.Props["topic"] == topic
	}), nil
}

func (g *Graph) detachDelete(match func(string, *Node) bool) int {
	deleted := 0
	for k, n := range g.nodes {
		if !match(k, n) {
			continue
		}
		delete(g.nodes, k)
		deleted++
		for e := range g.edges {
			if e.from == k || e.to == k {
				delete(g.edges, e)
			}
		}
	}
	return deleted
}

// UpsertSourceDoc merges an evidence document
func (g *Graph) UpsertSourceDoc(_ context.Context, doc graph.SourceDoc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertSourceDoc"); err != nil {
		return err
	}
	g.merge(constants.LabelSourceDoc, doc.ID, map[string]any{
		"title":        doc.Title,
		"content":      doc.Content,
		"url":          doc.URL,
		"author":       doc.Author,
		"publish_date": doc.PublishDate,
		"type":         doc.Type,
	})
	return nil
}

// UpsertClaim merges a claim and the ASSERTS edge from an existing post
func (g *Graph) UpsertClaim(_ context.Context, postID string, claim graph.Claim) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpsertClaim"); err != nil {
		return err
	}
	g.merge(constants.LabelClaim, claim.ID, map[string]any{"content": claim.Content, "topic": claim.Topic})
	if postID != "" {
		g.link(constants.RelAsserts, key(constants.LabelPost, postID), key(constants.LabelClaim, claim.ID))
	}
	return nil
}

// LinkClaimToSource merges a Claim -> SourceDoc edge of the given kind
func (g *Graph) LinkClaimToSource(_ context.Context, claimID, docID string, relation graph.Relation) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("LinkClaimToSource"); err != nil {
		return false, err
	}
	if !relation.Valid() {
		return false, apperrors.NewInvalidRelation(relation.String())
	}
	return g.link(relation.Type(), key(constants.LabelClaim, claimID), key(constants.LabelSourceDoc, docID)), nil
}

// ============================================================================
// Assertions
// ============================================================================

// CountNodes returns the number of nodes carrying label
func (g *Graph) CountNodes(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, node := range g.nodes {
		if node.Labels[label] {
			n++
		}
	}
	return n
}

// CountEdges returns the number of relationships of type rel
func (g *Graph) CountEdges(rel string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for e := range g.edges {
		if e.rel == rel {
			n++
		}
	}
	return n
}

// Node returns the node with the given primary label and id, or nil
func (g *Graph) Node(label, id string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[key(label, id)]
}

// HasEdge reports whether rel exists between the two nodes
func (g *Graph) HasEdge(rel, fromLabel, fromID, toLabel, toID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[edgeKey{rel: rel, from: key(fromLabel, fromID), to: key(toLabel, toID)}]
}

// WriteCount returns the number of write calls made so far
func (g *Graph) WriteCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Writes
}
