package settings

import (
	"slices"
	"sync"
	"time"
)

// ProgramSource is an extra directory scanned for native executables
type ProgramSource struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Enabled  bool   `yaml:"enabled"`
}

// DisabledProgramSource records a program the user excluded from results
type DisabledProgramSource struct {
	Name             string `yaml:"name"`
	Location         string `yaml:"location"`
	UniqueIdentifier string `yaml:"unique_identifier"`
	Enabled          bool   `yaml:"enabled"`
}

// Settings is the persisted plugin state. The zero value is ready to use.
type Settings struct {
	mu sync.RWMutex

	LastIndexTime          time.Time               `yaml:"last_index_time"`
	ProgramSources         []ProgramSource         `yaml:"program_sources"`
	DisabledProgramSources []DisabledProgramSource `yaml:"disabled_program_sources"`
}

// LastIndexed returns when the catalog was last fully indexed
func (s *Settings) LastIndexed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastIndexTime
}

// SetLastIndexed records the date of the last full index
func (s *Settings) SetLastIndexed(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastIndexTime = t
}

// EnabledSources returns the program sources that should be scanned
func (s *Settings) EnabledSources() []ProgramSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProgramSource
	for _, src := range s.ProgramSources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// AddSource adds or updates a program source by name
func (s *Settings) AddSource(src ProgramSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ProgramSources {
		if s.ProgramSources[i].Name == src.Name {
			s.ProgramSources[i] = src
			return
		}
	}
	s.ProgramSources = append(s.ProgramSources, src)
}

// IsDisabled reports whether the identifier has an exclusion record
func (s *Settings) IsDisabled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// Disable adds an exclusion record. It returns false if one already exists.
func (s *Settings) Disable(name, location, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) >= 0 {
		return false
	}
	s.DisabledProgramSources = append(s.DisabledProgramSources, DisabledProgramSource{
		Name:             name,
		Location:         location,
		UniqueIdentifier: id,
		Enabled:          false,
	})
	return true
}

// Enable removes the exclusion record. It returns false if there was none.
func (s *Settings) Enable(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.DisabledProgramSources = slices.Delete(s.DisabledProgramSources, i, i+1)
	return true
}

// DisabledSet returns the identifiers of all excluded programs
func (s *Settings) DisabledSet() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{}, len(s.DisabledProgramSources))
	for _, d := range s.DisabledProgramSources {
		set[d.UniqueIdentifier] = struct{}{}
	}
	return set
}

// Disabled returns a copy of the exclusion records
func (s *Settings) Disabled() []DisabledProgramSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.DisabledProgramSources)
}

// normalize enforces one record per identifier, keeping the first
func (s *Settings) normalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.DisabledProgramSources))
	kept := s.DisabledProgramSources[:0]
	for _, d := range s.DisabledProgramSources {
		if d.UniqueIdentifier == "" {
			continue
		}
		if _, ok := seen[d.UniqueIdentifier]; ok {
			continue
		}
		seen[d.UniqueIdentifier] = struct{}{}
		d.Enabled = false
		kept = append(kept, d)
	}
	s.DisabledProgramSources = kept
}

// must be called with mu held
func (s *Settings) indexOf(id string) int {
	return slices.IndexFunc(s.DisabledProgramSources, func(d DisabledProgramSource) bool {
		return d.UniqueIdentifier == id
	})
}
