// Package instancetype holds the static per-type tables the threshold engine
// reads: credit capacity and vCPU count, t2 launch credits, and baseline
// utilization.
package instancetype

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Table names reported in lookup errors.
const (
	CreditTable       = "credit table"
	LaunchCreditTable = "launch credit table"
	BaselineTable     = "baseline table"
)

// Spec describes one burstable instance type.
type Spec struct {
	Type         string  `yaml:"type" json:"type"`
	MaxCPUCredit float64 `yaml:"max_cpu_credit" json:"max_cpu_credit"`
	VCPUs        int     `yaml:"vcpus" json:"vcpus"`
}

type document struct {
	Credit       []Spec             `yaml:"credit"`
	LaunchCredit map[string]float64 `yaml:"launch_credit"`
	Baseline     map[string]float64 `yaml:"baseline"`
}

// Catalog is an immutable set of lookup tables.
type Catalog struct {
	specs        map[string]Spec
	launchCredit map[string]float64
	baseline     map[string]float64
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("instancetype: embedded catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		specs:        make(map[string]Spec, len(doc.Credit)),
		launchCredit: doc.LaunchCredit,
		baseline:     doc.Baseline,
	}
	for _, s := range doc.Credit {
		if s.Type == "" || s.MaxCPUCredit <= 0 || s.VCPUs <= 0 {
			return nil, fmt.Errorf("invalid credit entry %+v", s)
		}
		if _, dup := c.specs[s.Type]; dup {
			return nil, fmt.Errorf("duplicate credit entry %q", s.Type)
		}
		c.specs[s.Type] = s
	}
	if c.launchCredit == nil {
		c.launchCredit = map[string]float64{}
	}
	if c.baseline == nil {
		c.baseline = map[string]float64{}
	}
	return c, nil
}

// Lookup returns the credit spec for a non-t2 type.
func (c *Catalog) Lookup(instanceType string) (Spec, error) {
	s, ok := c.specs[instanceType]
	if !ok {
		return Spec{}, apperrors.NewConfigurationLookup(CreditTable, instanceType)
	}
	return s, nil
}

// LaunchCredit returns the flat launch credit for a t2 type.
func (c *Catalog) LaunchCredit(instanceType string) (float64, error) {
	v, ok := c.launchCredit[instanceType]
	if !ok {
		return 0, apperrors.NewConfigurationLookup(LaunchCreditTable, instanceType)
	}
	return v, nil
}

// Baseline returns the baseline CPU utilization percentage for a type.
func (c *Catalog) Baseline(instanceType string) (float64, error) {
	v, ok := c.baseline[instanceType]
	if !ok {
		return 0, apperrors.NewConfigurationLookup(BaselineTable, instanceType)
	}
	return v, nil
}

// Entry is a flattened view of every table for one type.
type Entry struct {
	Type         string   `json:"type"`
	MaxCPUCredit float64  `json:"max_cpu_credit,omitempty"`
	VCPUs        int      `json:"vcpus,omitempty"`
	LaunchCredit float64  `json:"launch_credit,omitempty"`
	Baseline     *float64 `json:"baseline_percent,omitempty"`
}

// Entries lists every known type, sorted by name.
func (c *Catalog) Entries() []Entry {
	seen := map[string]*Entry{}
	get := func(t string) *Entry {
		if e, ok := seen[t]; ok {
			return e
		}
		e := &Entry{Type: t}
		seen[t] = e
		return e
	}
	for t, s := range c.specs {
		e := get(t)
		e.MaxCPUCredit = s.MaxCPUCredit
		e.VCPUs = s.VCPUs
	}
	for t, v := range c.launchCredit {
		get(t).LaunchCredit = v
	}
	for t, v := range c.baseline {
		b := v
		get(t).Baseline = &b
	}

	out := make([]Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
