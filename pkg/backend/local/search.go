package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/trove-storage/trove/pkg/storage"
)

// indexDoc is the shape of one file in the bleve index, keyed by the
// backend-local file ID.
type indexDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Folder      string   `json:"folder"`
}

// searchIndex wraps the bleve index of one store.
type searchIndex struct {
	index bleve.Index
}

// newSearchIndex opens the index at path, creating it when missing. An
// empty path runs the index in memory.
func newSearchIndex(path string) (*searchIndex, error) {
	m := createIndexMapping()
	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, err
		}
		return &searchIndex{index: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, err
	}
	return &searchIndex{index: idx}, nil
}

func createIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textField := bleve.NewTextFieldMapping()
	keywordField := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", textField)
	doc.AddFieldMappingsAt("description", textField)
	doc.AddFieldMappingsAt("categories", keywordField)
	doc.AddFieldMappingsAt("folder", keywordField)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

func (i *searchIndex) update(fileID string, meta *fileMeta) error {
	return i.index.Index(fileID, indexDoc{
		Name:        meta.Name,
		Description: meta.Description,
		Categories:  meta.Categories,
		Folder:      folderOf(fileID),
	})
}

func (i *searchIndex) remove(fileID string) error {
	return i.index.Delete(fileID)
}

func (i *searchIndex) Close() error {
	return i.index.Close()
}

func folderOf(fileID string) string {
	if idx := strings.LastIndex(fileID, "/"); idx >= 0 {
		return fileID[:idx]
	}
	return RootFolder
}

// Search runs a metadata query against the bleve index and resolves the
// hits back to file metadata.
func (s *Store) Search(ctx context.Context, q *storage.Query) ([]*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bq query.Query
	if q.Pattern == "" {
		bq = bleve.NewMatchAllQuery()
	} else {
		match := bleve.NewMatchQuery(q.Pattern)
		wildcard := bleve.NewWildcardQuery(fmt.Sprintf("*%s*", strings.ToLower(q.Pattern)))
		wildcard.SetField("name")
		bq = bleve.NewDisjunctionQuery(match, wildcard)
	}

	if len(q.Folders) > 0 {
		scope := bleve.NewDisjunctionQuery()
		for _, folder := range q.Folders {
			clean, err := cleanID("Search", folder)
			if err != nil {
				return nil, err
			}
			term := bleve.NewTermQuery(clean)
			term.SetField("folder")
			scope.AddQuery(term)
		}
		bq = bleve.NewConjunctionQuery(bq, scope)
	}

	request := bleve.NewSearchRequestOptions(bq, maxSearchHits, 0, false)
	result, err := s.index.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, err
	}

	files := make([]*storage.File, 0, len(result.Hits))
	for _, hit := range result.Hits {
		meta, err := s.readMeta("Search", hit.ID)
		if err != nil {
			if storage.IsNotFound(err) {
				continue // stale index entry
			}
			return nil, err
		}
		ver, err := meta.version("Search", hit.ID, storage.CurrentVersion)
		if err != nil {
			continue
		}
		files = append(files, toStorageFile(hit.ID, meta, ver))
	}

	storage.SortFiles(files, q.Sort, q.Order)
	if q.Offset > 0 {
		if q.Offset >= len(files) {
			return nil, nil
		}
		files = files[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(files) {
		files = files[:q.Limit]
	}
	return files, nil
}

// maxSearchHits bounds one index query. Results are sorted and windowed
// after metadata resolution, so the request always fetches the full
// candidate set.
const maxSearchHits = 1000
