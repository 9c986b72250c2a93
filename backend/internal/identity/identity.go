// Package identity derives the deterministic node keys used by every graph writer.
//
// All functions are pure: the same inputs always yield the same key, across
// processes and over time, so re-running a sync merges onto existing nodes.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
)

// PostID keys a post by topic scope, channel table and the raw row id.
func PostID(topic, channel, rawID string) string {
	return fmt.Sprintf("%s_%s_%s", topic, channel, strings.TrimSpace(rawID))
}

// NormalizeAuthor trims the author and substitutes the sentinel when blank.
func NormalizeAuthor(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return constants.UnknownAuthor
	}
	return author
}

// AccountID keys an account by topic scope and author, never with an empty author.
func AccountID(topic, author string) string {
	return fmt.Sprintf("%s_%s", topic, NormalizeAuthor(author))
}

// ChunkID keys a chunk by its parent post and position.
func ChunkID(postID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", postID, index)
}

// NormalizeEntity trims name and type; a blank type becomes the default type.
// ok is false when the name is blank and the entity must be dropped.
func NormalizeEntity(name, entityType string) (string, string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		entityType = constants.DefaultEntityType
	}
	return name, entityType, true
}

// EntityID keys an entity within a topic scope.
func EntityID(topic, name, entityType string) string {
	return fmt.Sprintf("%s_%s_%s", topic, name, entityType)
}

// NormalizeClassification trims the label and substitutes the sentinel when blank.
func NormalizeClassification(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return constants.UnknownClassification
	}
	return label
}

// ClassificationTopicID keys a coarse classification topic by a hash of its
// label. The key always ends in "_class_<32 hex>", a suffix no MicroTopicID or
// MacroTopicID can produce, whatever the project name.
func ClassificationTopicID(topic, label string) string {
	return fmt.Sprintf("%s_class_%s", topic, contentHash(NormalizeClassification(label)))
}

// MicroTopicID keys a clustering topic by its numeric cluster id.
func MicroTopicID(project string, clusterID int) string {
	return fmt.Sprintf("%s_topic_%d", project, clusterID)
}

// MacroTopicID keys a macro grouping by a hash of its label, so long or
// unusually encoded labels still produce a compact stable key.
func MacroTopicID(project, label string) string {
	return fmt.Sprintf("%s_cluster_%s", project, contentHash(label))
}

// FrameID keys a narrative frame by its name. Frames are shared across topics.
func FrameID(name string) string {
	return "frame_" + strings.TrimSpace(name)
}

// EventID keys an event within a topic by a hash of its name.
func EventID(topic, name string) string {
	return "event_" + contentHash(topic+"_"+strings.TrimSpace(name))
}

// ClaimID keys a claim by its content.
func ClaimID(content string) string {
	return "claim_" + contentHash(strings.TrimSpace(content))
}

// SourceDocID keys an evidence document derived from extracted content.
func SourceDocID(content string) string {
	return "doc_" + contentHash(content)
}

func contentHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
