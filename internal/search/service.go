package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to the Postgres matcher.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		records, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(records), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	records, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Record{}, Query: q.Text}
	}
	return Response{Results: nonNil(records), Total: total, Query: q.Text}
}

// Index pushes one frame into the index, fire and forget.
func (s *Service) Index(rec Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecord(rec); err != nil {
			log.Printf("search: index %s: %v", rec.ID, err)
		}
	}()
}

// Delete removes one frame from the index, fire and forget.
func (s *Service) Delete(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRecord(id); err != nil {
			log.Printf("search: delete %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reloads every frame from Postgres into Meilisearch.
// Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexRecords(records); err != nil {
		log.Printf("search: reindex push failed: %v", err)
	}
}

func nonNil(r []Record) []Record {
	if r == nil {
		return []Record{}
	}
	return r
}
