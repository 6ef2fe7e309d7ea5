package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RequestStore implements port.RequestStore in memory
type RequestStore struct {
	db *DB
}

// NewRequestStore creates a request store over db
func NewRequestStore(db *DB) *RequestStore {
	return &RequestStore{db: db}
}

// Get returns a copy of the stored request, or nil when absent
func (s *RequestStore) Get(_ context.Context, id string) (*entity.ReimbursementRequest, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.requests[id].Clone(), nil
}

// Create inserts a new request
func (s *RequestStore) Create(ctx context.Context, req *entity.ReimbursementRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	s.db.requests[req.ID] = req.Clone()
	record(ctx, func() { delete(s.db.requests, req.ID) })
	return nil
}

// CompareAndSwap replaces the request when its version is unchanged
func (s *RequestStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, req *entity.ReimbursementRequest) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	previous, exists := s.db.requests[id]
	if !exists || previous.Version != expectedVersion {
		return false, nil
	}

	next := req.Clone()
	next.Version = expectedVersion + 1
	s.db.requests[id] = next
	record(ctx, func() { s.db.requests[id] = previous })
	return true, nil
}

// List returns matching requests newest first
func (s *RequestStore) List(_ context.Context, filter port.RequestFilter) ([]*entity.ReimbursementRequest, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	submitters := toSet(filter.SubmitterIDs)
	statuses := toSet(filter.Statuses)

	var result []*entity.ReimbursementRequest
	for _, req := range s.db.requests {
		if len(submitters) > 0 && !submitters[req.SubmitterID] {
			continue
		}
		if len(statuses) > 0 && !statuses[req.Status] {
			continue
		}
		result = append(result, req.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return paginate(result, filter.Limit, filter.Offset), nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func paginate(reqs []*entity.ReimbursementRequest, limit, offset int) []*entity.ReimbursementRequest {
	if offset >= len(reqs) {
		return []*entity.ReimbursementRequest{}
	}
	reqs = reqs[offset:]
	if limit > 0 && limit < len(reqs) {
		reqs = reqs[:limit]
	}
	return reqs
}

// Verify interface compliance
var _ port.RequestStore = (*RequestStore)(nil)
