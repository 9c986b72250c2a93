package topics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// Artifact file names written by the clustering run
const (
	StatsFile           = "1主题统计结果.json"
	KeywordsFile        = "2主题关键词.json"
	DocumentsFile       = "3文档2D坐标.json"
	ClustersFile        = "4大模型再聚类结果.json"
	ClusterKeywordsFile = "5大模型主题关键词.json"
)

// TopicStat is one micro cluster of the statistics artifact
type TopicStat struct {
	ID        int
	Name      string
	Count     int
	Frequency float64
}

// Assignment places one document into a micro cluster
type Assignment struct {
	PostID    string
	Channel   string
	ClusterID int
}

// Cluster is one macro grouping: its label, display name, description and
// the names of its member micro clusters
type Cluster struct {
	Label       string
	Name        string
	Description string
	Members     []string
}

// Artifacts is the decoded output of one clustering run
type Artifacts struct {
	Topics          []TopicStat
	Keywords        map[string][]string
	Documents       []Assignment
	Clusters        []Cluster
	ClusterKeywords map[string][]string
}

// ArtifactDir is where the clustering run of (topic, date) writes its files
func ArtifactDir(dataRoot, topic, date string) string {
	return filepath.Join(dataRoot, "topic", topic, date)
}

// LoadArtifacts reads a clustering output directory. The statistics file is
// required; the other four are optional and default to empty.
func LoadArtifacts(dir string) (*Artifacts, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.NewArtifactMissing(dir, "topic artifact directory")
	}

	a := &Artifacts{
		Keywords:        map[string][]string{},
		ClusterKeywords: map[string][]string{},
	}

	var stats any
	found, err := readJSON(filepath.Join(dir, StatsFile), &stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewArtifactMissing(filepath.Join(dir, StatsFile), "topic statistics")
	}
	a.Topics = parseStats(stats)

	var raw any
	if found, err = readJSON(filepath.Join(dir, KeywordsFile), &raw); err != nil {
		return nil, err
	} else if found {
		a.Keywords = parseKeywordMap(raw)
	}

	raw = nil
	if found, err = readJSON(filepath.Join(dir, DocumentsFile), &raw); err != nil {
		return nil, err
	} else if found {
		a.Documents = parseDocuments(raw)
	}

	raw = nil
	if found, err = readJSON(filepath.Join(dir, ClustersFile), &raw); err != nil {
		return nil, err
	} else if found {
		a.Clusters = parseClusters(raw)
	}

	raw = nil
	if found, err = readJSON(filepath.Join(dir, ClusterKeywordsFile), &raw); err != nil {
		return nil, err
	} else if found {
		a.ClusterKeywords = parseKeywordMap(raw)
	}

	return a, nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.NewArtifactInvalid(path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, apperrors.NewArtifactInvalid(path, err)
	}
	return true, nil
}

// parseStats accepts {"topics": [{topic_id, topic_name, count, frequency}]}
// or {"主题文档统计": {"主题N": {"文档数": n}}}
func parseStats(raw any) []TopicStat {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	var out []TopicStat
	if list, ok := obj["topics"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, ok := toInt(m["topic_id"])
			if !ok || id == constants.NoiseClusterID {
				continue
			}
			name := toString(m["topic_name"])
			if name == "" {
				name = fmt.Sprintf("Topic_%d", id)
			}
			count, _ := toInt(m["count"])
			freq, _ := m["frequency"].(float64)
			out = append(out, TopicStat{ID: id, Name: name, Count: count, Frequency: freq})
		}
		return out
	}

	if stats, ok := obj["主题文档统计"].(map[string]any); ok {
		for key, v := range stats {
			id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(key, "主题")))
			if err != nil || id == constants.NoiseClusterID {
				continue
			}
			count := 0
			if m, ok := v.(map[string]any); ok {
				count, _ = toInt(m["文档数"])
			}
			out = append(out, TopicStat{ID: id, Name: key, Count: count})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out
}

// parseKeywordMap accepts values shaped [[word, weight]], [word] or {"关键词": [...]}
func parseKeywordMap(raw any) map[string][]string {
	out := map[string][]string{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for key, v := range obj {
		if m, ok := v.(map[string]any); ok {
			v = m["关键词"]
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		words := make([]string, 0, len(list))
		for _, item := range list {
			if pair, ok := item.([]any); ok {
				if len(pair) > 0 {
					words = append(words, toString(pair[0]))
				}
				continue
			}
			words = append(words, toString(item))
		}
		out[key] = words
	}
	return out
}

// parseDocuments accepts {"documents": [...]} or a bare list. The post id is
// read from post_id or doc_id and the cluster from topic_id or cluster_id.
func parseDocuments(raw any) []Assignment {
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["documents"]
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]Assignment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		postID := toString(m["post_id"])
		if postID == "" {
			postID = toString(m["doc_id"])
		}
		clusterID, ok := toInt(m["topic_id"])
		if !ok {
			clusterID, ok = toInt(m["cluster_id"])
		}
		if !ok {
			continue
		}
		out = append(out, Assignment{PostID: postID, Channel: toString(m["channel"]), ClusterID: clusterID})
	}
	return out
}

// parseClusters accepts {"clusters": [...]}, a label-keyed map with
// 主题命名 / 主题描述 / 原始主题集合, or a bare list
func parseClusters(raw any) []Cluster {
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		if clusters, ok := v["clusters"].([]any); ok {
			list = clusters
			break
		}
		var out []Cluster
		for label, item := range v {
			m, _ := item.(map[string]any)
			name := toString(m["主题命名"])
			if name == "" {
				name = label
			}
			out = append(out, Cluster{
				Label:       label,
				Name:        name,
				Description: toString(m["主题描述"]),
				Members:     toStrings(m["原始主题集合"]),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
		return out
	}

	out := make([]Cluster, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label := toString(m["cluster_name"])
		name := toString(m["name"])
		if label == "" {
			label = name
		}
		if label == "" {
			continue
		}
		if name == "" {
			name = label
		}
		out = append(out, Cluster{
			Label:       label,
			Name:        name,
			Description: toString(m["description"]),
			Members:     toStrings(m["topics"]),
		})
	}
	return out
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func toStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := toString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	}
	return 0, false
}
