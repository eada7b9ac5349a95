// Package persona defines the synthetic chat identity model and a local
// fallback provider used when no external identity source is wired in.
package persona

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Region groups personas by the slang vocabulary they draw from.
type Region string

const (
	RegionWestern Region = "western"
	RegionAfrican Region = "african"
	RegionAsian   Region = "asian"
	RegionLatin   Region = "latin"
	RegionEastern Region = "eastern"
)

// Regions lists every known region in a stable order.
var Regions = []Region{RegionWestern, RegionAfrican, RegionAsian, RegionLatin, RegionEastern}

// Persona is an immutable synthetic chat identity.
type Persona struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Region Region `json:"region"`
}

// Provider supplies personas for generated messages and joins. External
// identity sources implement this; Generator is the local fallback.
type Provider interface {
	RandomPersona() Persona
}

var firstNames = []string{
	"Daniel", "Amara", "Wei", "Sofia", "Igor", "Tunde", "Mika", "Lucas",
	"Priya", "Nadia", "Kofi", "Elena", "Hiro", "Mateo", "Olga", "Sanjay",
	"Fatima", "Jake", "Chioma", "Dmitri", "Ana", "Ken", "Rosa", "Viktor",
	"Leila", "Sam", "Yuki", "Diego", "Ivana", "Emeka",
}

var lastNames = []string{
	"Okafor", "Smith", "Tan", "Garcia", "Petrov", "Mensah", "Sato", "Silva",
	"Novak", "Khan", "Adeyemi", "Lopez", "Kim", "Ivanov", "Brown", "Osei",
	"Martinez", "Chen", "Kowalski", "Diallo",
}

// Generator is the local fallback Provider. It synthesizes display names and
// avatar references similar to what the external identity service hands out.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a fallback provider. A nil rng seeds from the clock.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		//nolint:gosec // G404: math/rand is sufficient for synthetic identities, not used for security
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// RandomPersona synthesizes a persona with a display name, avatar reference
// and slang region.
func (g *Generator) RandomPersona() Persona {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := fmt.Sprintf("%s %s", firstNames[g.rng.Intn(len(firstNames))], lastNames[g.rng.Intn(len(lastNames))])
	// A slice of personas keep the bare "UserNNNN" handle the real crowd has.
	if g.rng.Float64() < 0.15 {
		name = fmt.Sprintf("User%04d", g.rng.Intn(10000))
	}
	return Persona{
		Name:   name,
		Avatar: fmt.Sprintf("assets/avatars/avatar%d.jpg", g.rng.Intn(300)),
		Region: Regions[g.rng.Intn(len(Regions))],
	}
}
