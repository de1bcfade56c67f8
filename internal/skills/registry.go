package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Registry is a thread-safe set of skills keyed by name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// Register adds a skill. Returns error on duplicate name.
func (r *Registry) Register(s *Skill) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeValidation, "skill is nil")
	}
	if s.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "skill name is empty")
	}
	if strings.TrimSpace(s.Template) == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "skill %q has an empty template", s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[s.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "skill %q already registered", s.Name)
	}
	r.skills[s.Name] = s
	return nil
}

// RegisterNamespace bulk-registers skills under a prefix, so "pods" in
// namespace "k8s" becomes "k8s.pods". The input skills are not modified.
func (r *Registry) RegisterNamespace(prefix string, skills []*Skill) (int, error) {
	if prefix == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "skill namespace is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered := 0
	for _, s := range skills {
		cp := *s
		cp.Name = fmt.Sprintf("%s.%s", prefix, s.Name)
		if _, exists := r.skills[cp.Name]; exists {
			return registered, schema.NewErrorf(schema.ErrCodeConflict, "skill %q already registered", cp.Name)
		}
		r.skills[cp.Name] = &cp
		registered++
	}
	return registered, nil
}

// Get retrieves a skill by name.
func (r *Registry) Get(name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.skills[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "skill %q not registered", name)
	}
	return s, nil
}

// List returns info for all skills, sorted by name. A non-empty tool keeps
// only the skills that shell out to it.
func (r *Registry) List(tool string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.skills))
	for _, s := range r.skills {
		if tool != "" && s.Tool != tool {
			continue
		}
		infos = append(infos, Info{Name: s.Name, Tool: s.Tool, Description: s.Description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}
