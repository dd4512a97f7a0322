package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPersona is returned when a persona has no registered adapter weights.
var ErrUnknownPersona = errors.New("workflow: no adapter weights registered for persona")

// PersonaWeights are the two video adapter files for one persona, one per
// noise band of the two-pass sampler.
type PersonaWeights struct {
	HighNoise string
	LowNoise  string
}

// PersonaRegistry is a read-only persona -> weights table. It is safe for
// concurrent use because nothing mutates it after construction.
type PersonaRegistry struct {
	weights map[string]PersonaWeights
}

// NewPersonaRegistry copies entries into a new registry. Keys are matched
// case-insensitively.
func NewPersonaRegistry(entries map[string]PersonaWeights) *PersonaRegistry {
	w := make(map[string]PersonaWeights, len(entries))
	for id, pw := range entries {
		w[normalizePersona(id)] = pw
	}
	return &PersonaRegistry{weights: w}
}

// DefaultPersonas returns the registry of personas shipped with the service.
func DefaultPersonas() *PersonaRegistry {
	return NewPersonaRegistry(map[string]PersonaWeights{
		"ava": {
			HighNoise: "ava_wan22_high_noise.safetensors",
			LowNoise:  "ava_wan22_low_noise.safetensors",
		},
		"mila": {
			HighNoise: "mila_wan22_high_noise.safetensors",
			LowNoise:  "mila_wan22_low_noise.safetensors",
		},
		"sofia": {
			HighNoise: "sofia_wan22_high_noise.safetensors",
			LowNoise:  "sofia_wan22_low_noise.safetensors",
		},
		"leo": {
			HighNoise: "leo_wan22_high_noise.safetensors",
			LowNoise:  "leo_wan22_low_noise.safetensors",
		},
	})
}

// Lookup returns the weights for personaID.
func (r *PersonaRegistry) Lookup(personaID string) (PersonaWeights, error) {
	key := normalizePersona(personaID)
	if key == "" {
		return PersonaWeights{}, fmt.Errorf("%w: persona id is empty", ErrUnknownPersona)
	}
	pw, ok := r.weights[key]
	if !ok || pw.HighNoise == "" || pw.LowNoise == "" {
		return PersonaWeights{}, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}
	return pw, nil
}

// Has reports whether personaID is registered.
func (r *PersonaRegistry) Has(personaID string) bool {
	_, err := r.Lookup(personaID)
	return err == nil
}

func normalizePersona(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
