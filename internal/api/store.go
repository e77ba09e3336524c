package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerationStore keeps finished and running generations in memory.
type GenerationStore struct {
	mu          sync.Mutex
	generations map[string]*Generation
}

func NewGenerationStore() *GenerationStore {
	return &GenerationStore{
		generations: make(map[string]*Generation),
	}
}

func (s *GenerationStore) Create(prompt string, now time.Time) Generation {
	gen := Generation{
		ID:        newGenerationID(),
		Object:    "generation",
		CreatedAt: now.Unix(),
		Status:    StatusInProgress,
		Prompt:    prompt,
		Tokens:    []uint32{},
	}
	s.mu.Lock()
	s.generations[gen.ID] = &gen
	s.mu.Unlock()
	return gen
}

// Save replaces the stored copy. Deleted generations are not resurrected.
func (s *GenerationStore) Save(gen Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[gen.ID]; !ok {
		return
	}
	s.generations[gen.ID] = &gen
}

func (s *GenerationStore) Get(id string) (Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.generations[id]
	if !ok {
		return Generation{}, false
	}
	return *gen, true
}

func (s *GenerationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[id]; !ok {
		return false
	}
	delete(s.generations, id)
	return true
}

func newGenerationID() string {
	return "gen_" + uuid.NewString()
}
