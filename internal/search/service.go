package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexHabit indexes a habit (fire-and-forget to Meilisearch).
func (s *Service) IndexHabit(h HabitRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexHabit(h); err != nil {
			log.Printf("search: index habit %s: %v", h.ID, err)
		}
	}()
}

// IndexRoutine indexes a routine (fire-and-forget to Meilisearch).
func (s *Service) IndexRoutine(r RoutineRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRoutine(r); err != nil {
			log.Printf("search: index routine %s: %v", r.ID, err)
		}
	}()
}

// DeleteHabit removes a habit from the search index (fire-and-forget).
func (s *Service) DeleteHabit(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteHabit(id); err != nil {
			log.Printf("search: delete habit %s: %v", id, err)
		}
	}()
}

// DeleteRoutine removes a routine from the search index (fire-and-forget).
func (s *Service) DeleteRoutine(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRoutine(id); err != nil {
			log.Printf("search: delete routine %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into
// Meilisearch. Called at startup when Meilisearch is configured.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	habits, routines, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexHabits(habits); err != nil {
		log.Printf("search: reindex habits: %v", err)
	}
	if err := s.meili.IndexRoutines(routines); err != nil {
		log.Printf("search: reindex routines: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
