package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// Plan describes where the rows of one sync come from
type Plan struct {
	Tables     []string
	Dir        string
	Bucket     string
	Database   string
	FileSource bool
}

// Resolver discovers channel tables under a data root and opens the matching source
type Resolver struct {
	DataRoot string
	Bucket   string
	DBURL    string
}

// Discover finds the channel tables produced for (topic, date). Tables are the
// stems of the *.jsonl files in <data_root>/<bucket>/<topic>/<date>; when the
// filter bucket has no output for the date the clean bucket is tried. A dataset
// naming an existing directory is used as the table directory directly.
func (r *Resolver) Discover(topic, date, dataset string) (Plan, error) {
	bucket := r.Bucket
	if bucket == "" {
		bucket = constants.DefaultSourceBucket
	}

	plan := Plan{Bucket: bucket, Database: topic}
	if dataset != "" {
		plan.Database = dataset
	}

	if dataset != "" && isDir(dataset) {
		plan.Dir = dataset
		plan.FileSource = true
	} else {
		plan.Dir = filepath.Join(r.DataRoot, bucket, topic, date)
		if !isDir(plan.Dir) && bucket == constants.DefaultSourceBucket {
			plan.Bucket = constants.FallbackSourceBucket
			plan.Dir = filepath.Join(r.DataRoot, plan.Bucket, topic, date)
		}
		plan.FileSource = plan.Bucket == "filter" || plan.Bucket == "merge"
	}

	tables, err := listTables(plan.Dir)
	if err != nil {
		return plan, err
	}
	if len(tables) == 0 {
		return plan, apperrors.NewArtifactMissing(plan.Dir, plan.Bucket+" channel tables")
	}
	plan.Tables = tables
	return plan, nil
}

// Open returns the source a plan reads from
func (r *Resolver) Open(ctx context.Context, plan Plan) (Source, error) {
	if plan.FileSource {
		return NewJSONLSource(plan.Dir), nil
	}
	if strings.TrimSpace(r.DBURL) == "" {
		return nil, apperrors.NewSourceConnectionFailed(plan.Database, errors.New("DB_URL is not set"))
	}
	return OpenSQL(ctx, r.DBURL, plan.Database)
}

func listTables(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, apperrors.NewArtifactInvalid(dir, err)
	}
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	sort.Strings(tables)
	return tables, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
