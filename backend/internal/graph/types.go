package graph

import (
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// ============================================================================
// Graph Records
// ============================================================================

// PostRecord is one channel row projected onto Post, Account and Platform
type PostRecord struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	Topic          string `json:"topic"`
	Channel        string `json:"channel"`
	Title          string `json:"title"`
	Contents       string `json:"contents"`
	Platform       string `json:"platform"`
	Author         string `json:"author"`
	PublishedAt    string `json:"published_at,omitempty"`
	URL            string `json:"url"`
	Region         string `json:"region"`
	HitWords       string `json:"hit_words"`
	Polarity       string `json:"polarity"`
	Classification string `json:"classification"`
}

func (p PostRecord) params() map[string]any {
	var published any
	if p.PublishedAt != "" {
		published = p.PublishedAt
	}
	return map[string]any{
		"post_id":        p.ID,
		"account_id":     p.AccountID,
		"topic":          p.Topic,
		"channel":        p.Channel,
		"title":          p.Title,
		"contents":       p.Contents,
		"platform":       p.Platform,
		"author":         p.Author,
		"published_at":   published,
		"url":            p.URL,
		"region":         p.Region,
		"hit_words":      p.HitWords,
		"polarity":       p.Polarity,
		"classification": p.Classification,
	}
}

// ChunkRecord is one text window of a post
type ChunkRecord struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	Index  int    `json:"chunk_index"`
	Text   string `json:"text"`
}

// EntityRecord is a named entity scoped to a topic
type EntityRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// TagRecord is a named Frame or Event attached to posts
type TagRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

// MicroTopic is one cluster of the external clustering run
type MicroTopic struct {
	ID        string   `json:"id"`
	ClusterID int      `json:"cluster_id"`
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	Frequency float64  `json:"frequency"`
	Keywords  []string `json:"keywords"`
}

// MacroTopic is a labeled grouping of micro topics
type MacroTopic struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Link is a directed edge between two already-existing nodes, by id
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SourceDoc is an evidence document
type SourceDoc struct {
	ID          string `json:"id" binding:"required"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	PublishDate string `json:"publish_date"`
	Type        string `json:"type"`
}

// Claim is an assertion made by a post
type Claim struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Topic   string `json:"topic"`
}

// Relation is the closed set of Claim -> SourceDoc edge kinds
type Relation int

const (
	SupportedBy Relation = iota + 1
	RefutedBy
)

// ParseRelation accepts the relationship type name or the camel-case kind.
// Anything else is rejected rather than coerced.
func ParseRelation(s string) (Relation, error) {
	switch s {
	case constants.RelSupportedBy, "SupportedBy":
		return SupportedBy, nil
	case constants.RelRefutedBy, "RefutedBy":
		return RefutedBy, nil
	}
	return 0, apperrors.NewInvalidRelation(s)
}

// Type returns the relationship type written to the graph
func (r Relation) Type() string {
	switch r {
	case SupportedBy:
		return constants.RelSupportedBy
	case RefutedBy:
		return constants.RelRefutedBy
	}
	return ""
}

func (r Relation) String() string {
	switch r {
	case SupportedBy:
		return "SupportedBy"
	case RefutedBy:
		return "RefutedBy"
	}
	return "Relation(invalid)"
}

// Valid reports whether r is one of the declared kinds
func (r Relation) Valid() bool {
	return r == SupportedBy || r == RefutedBy
}
