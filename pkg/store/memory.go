package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/tree"
)

// MemoryStore is the in-process Store backend. All methods copy on the
// way in and out, so callers can never mutate stored records in place.
type MemoryStore struct {
	mu             sync.RWMutex
	incidents      map[int]Incident
	diagrams       map[int]Diagram
	users          map[string]User
	nextIncidentID int
	nextDiagramID  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents:      make(map[int]Incident),
		diagrams:       make(map[int]Diagram),
		users:          make(map[string]User),
		nextIncidentID: 1,
		nextDiagramID:  1,
	}
}

func (s *MemoryStore) SaveIncident(ctx context.Context, owner string, in NewIncident) (*Incident, error) {
	if err := errors.ValidateUsername(owner); err != nil {
		return nil, err
	}
	if err := errors.ValidateTitle(in.Title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Incident{
		ID:            s.nextIncidentID,
		Owner:         owner,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Details:       in.Details,
		AnalysisLevel: generate.FormatLevelLabel(in.Level),
		RecordedAt:    time.Now().UTC(),
		Version:       1,
	}
	s.nextIncidentID++
	s.incidents[rec.ID] = rec
	return &rec, nil
}

func (s *MemoryStore) GetIncident(ctx context.Context, id int) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.incidents[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", id)
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateIncident(ctx context.Context, id int, patch IncidentPatch) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.incidents[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", id)
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != rec.Version {
		return nil, errors.New(errors.ErrCodeConflict, "incident %d version %d, expected %d", id, rec.Version, patch.ExpectedVersion)
	}

	if patch.Title != nil {
		if err := errors.ValidateTitle(*patch.Title); err != nil {
			return nil, err
		}
		rec.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Details != nil {
		rec.Details = *patch.Details
	}
	if patch.Level != nil {
		rec.AnalysisLevel = generate.FormatLevelLabel(*patch.Level)
	}
	rec.Version++
	s.incidents[id] = rec
	return &rec, nil
}

func (s *MemoryStore) DeleteIncident(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[id]; !ok {
		return errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", id)
	}
	delete(s.incidents, id)
	for did, d := range s.diagrams {
		if d.IncidentID == id {
			delete(s.diagrams, did)
		}
	}
	return nil
}

func (s *MemoryStore) ListIncidents(ctx context.Context, owner string) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Incident
	for _, rec := range s.incidents {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	sortIncidents(out)
	return out, nil
}

func (s *MemoryStore) ListAllIncidents(ctx context.Context) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Incident, 0, len(s.incidents))
	for _, rec := range s.incidents {
		out = append(out, rec)
	}
	sortIncidents(out)
	return out, nil
}

// sortIncidents orders newest first, ID as tiebreaker for stable output.
func sortIncidents(list []Incident) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].RecordedAt.Equal(list[j].RecordedAt) {
			return list[i].RecordedAt.After(list[j].RecordedAt)
		}
		return list[i].ID > list[j].ID
	})
}

func (s *MemoryStore) CreateDiagram(ctx context.Context, incidentID int, title string, nodes []tree.Node) (*Diagram, error) {
	if err := tree.Validate(nodes); err != nil {
		return nil, err
	}
	data, err := tree.Marshal(nodes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[incidentID]; !ok {
		return nil, errors.New(errors.ErrCodeIncidentNotFound, "incident %d not found", incidentID)
	}

	d := Diagram{
		ID:         s.nextDiagramID,
		IncidentID: incidentID,
		Title:      title,
		NodesJSON:  string(data),
		CreatedAt:  time.Now().UTC(),
		Version:    1,
	}
	s.nextDiagramID++
	s.diagrams[d.ID] = d
	return &d, nil
}

func (s *MemoryStore) GetDiagram(ctx context.Context, id int) (*Diagram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diagrams[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDiagramNotFound, "diagram %d not found", id)
	}
	return &d, nil
}

func (s *MemoryStore) UpdateDiagram(ctx context.Context, id int, patch DiagramPatch) (*Diagram, error) {
	var nodesJSON string
	if patch.Nodes != nil {
		if err := tree.Validate(patch.Nodes); err != nil {
			return nil, err
		}
		data, err := tree.Marshal(patch.Nodes)
		if err != nil {
			return nil, err
		}
		nodesJSON = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diagrams[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDiagramNotFound, "diagram %d not found", id)
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != d.Version {
		return nil, errors.New(errors.ErrCodeConflict, "diagram %d version %d, expected %d", id, d.Version, patch.ExpectedVersion)
	}

	if patch.Title != nil {
		d.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Nodes != nil {
		d.NodesJSON = nodesJSON
	}
	d.Version++
	s.diagrams[id] = d
	return &d, nil
}

func (s *MemoryStore) ListDiagrams(ctx context.Context, incidentID int) ([]Diagram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Diagram
	for _, d := range s.diagrams {
		if d.IncidentID == incidentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u User) error {
	if err := errors.ValidateUsername(u.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Name]; ok {
		return errors.New(errors.ErrCodeConflict, "user %q already exists", u.Name)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.Name] = u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, name string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUserNotFound, "user %q not found", name)
	}
	return &u, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[name]; !ok {
		return errors.New(errors.ErrCodeUserNotFound, "user %q not found", name)
	}
	delete(s.users, name)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
