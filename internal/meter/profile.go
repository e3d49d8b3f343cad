package meter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownMeterType is returned by Lookup for ids that are not registered
var ErrUnknownMeterType = errors.New("unknown meter type")

// Profile describes the display layout of a class of physical meter
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DigitCount    int    `json:"digit_count"`    // significant digits, separator excluded
	DecimalPlaces int    `json:"decimal_places"` // digits after the separator
}

// Validate checks DigitCount >= DecimalPlaces >= 0
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("meter type id is required")
	}
	if p.DigitCount <= 0 {
		return fmt.Errorf("meter type %s: digit count must be positive", p.ID)
	}
	if p.DecimalPlaces < 0 || p.DecimalPlaces > p.DigitCount {
		return fmt.Errorf("meter type %s: decimal places must be between 0 and %d", p.ID, p.DigitCount)
	}
	return nil
}

// Built-in profiles
var (
	Digital = Profile{
		ID:            "digital",
		Name:          "Digital",
		Description:   "Electronic display with six digits and one decimal place",
		DigitCount:    6,
		DecimalPlaces: 1,
	}
	Analog = Profile{
		ID:            "analog",
		Name:          "Analog",
		Description:   "Mechanical roller counter with five digits and two decimal places",
		DigitCount:    5,
		DecimalPlaces: 2,
	}
	Water = Profile{
		ID:            "water",
		Name:          "Water",
		Description:   "Water meter with five black and three red rollers",
		DigitCount:    8,
		DecimalPlaces: 3,
	}
	Gas = Profile{
		ID:            "gas",
		Name:          "Gas",
		Description:   "Bellows gas meter with five black and three red rollers",
		DigitCount:    8,
		DecimalPlaces: 3,
	}
)

// Registry is a catalog of meter type profiles.
// Profiles are registered at startup and only read afterwards.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry holding the given profiles
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry with the built-in profiles
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Digital, Analog, Water, Gas)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a profile, rejecting invalid layouts and duplicate ids
func (r *Registry) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[p.ID]; exists {
		return fmt.Errorf("meter type %s already registered", p.ID)
	}
	r.profiles[p.ID] = p
	return nil
}

// Lookup returns the profile registered under id
func (r *Registry) Lookup(id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownMeterType, id)
	}
	return p, nil
}

// List returns all profiles ordered by id
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
