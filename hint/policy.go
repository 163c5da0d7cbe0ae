package hint

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/npillmayer/schuko/gconf"
	"github.com/npillmayer/tinct/flow"
)

// Policy controls the analysis.
type Policy struct {
	Oopspec            bool     `toml:"oopspec"`            // treat oopspec functions as built-in operations
	NoVirtualContainer bool     `toml:"novirtualcontainer"` // allocations are always red
	EntryReturnsRed    bool     `toml:"entry_returns_red"`  // force the result of the entry graph red
	DontLookInside     []string `toml:"dont_look_inside"`   // names of graphs not to analyze
	Pure               []string `toml:"pure"`               // names of functions declared pure
	MaxSpecializations int      `toml:"max_specializations"`
}

// DefaultPolicy returns the default policy: virtual containers are enabled,
// oopspecs are ignored and the entry graph returns red.
func DefaultPolicy() Policy {
	return Policy{
		EntryReturnsRed:    true,
		MaxSpecializations: 32,
	}
}

// PolicyFromConfig returns the default policy, modified by the global
// configuration keys 'tinct.hint.oopspec' and 'tinct.hint.novirtualcontainer'.
func PolicyFromConfig() Policy {
	p := DefaultPolicy()
	p.Oopspec = gconf.GetBool("tinct.hint.oopspec")
	p.NoVirtualContainer = gconf.GetBool("tinct.hint.novirtualcontainer")
	return p
}

// LoadPolicy reads a policy in TOML format. Keys not present keep the values
// of the default policy.
func LoadPolicy(r io.Reader) (Policy, error) {
	p := DefaultPolicy()
	if _, err := toml.NewDecoder(r).Decode(&p); err != nil {
		return p, fmt.Errorf("reading annotation policy: %w", err)
	}
	return p, nil
}

// LookInside is false for graphs the analysis should treat as opaque.
func (p Policy) LookInside(g *flow.Graph) bool {
	for _, name := range p.DontLookInside {
		if name == g.Name {
			return false
		}
	}
	return true
}

func (p Policy) isDeclaredPure(name string) bool {
	for _, n := range p.Pure {
		if n == name {
			return true
		}
	}
	return false
}
