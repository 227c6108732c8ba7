// Package catalog loads the badge catalog, the single source of badge
// definitions, from a YAML document.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/internal/domain/requirement"
)

//go:embed badges.yaml
var defaultCatalog []byte

// document is the YAML layout of a catalog file.
type document struct {
	Version string                  `yaml:"version"`
	Badges  []model.BadgeDefinition `yaml:"badges"`
}

// Catalog is an immutable, ordered set of badge definitions.
type Catalog struct {
	version string
	badges  []model.BadgeDefinition
	bySlug  map[string]int
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// Load reads a catalog from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and structurally validates a catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(doc.Version, doc.Badges)
}

// New builds a catalog from definitions in insertion order.
func New(version string, defs []model.BadgeDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no badges defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		version: version,
		badges:  make([]model.BadgeDefinition, len(defs)),
		bySlug:  make(map[string]int, len(defs)),
	}
	var errs []error
	for i, def := range defs {
		def.Position = i
		if err := checkDefinition(def); err != nil {
			errs = append(errs, err)
		}
		if _, dup := c.bySlug[def.Slug]; dup && def.Slug != "" {
			errs = append(errs, fmt.Errorf("%w: duplicate slug %q", ErrInvalidCatalog, def.Slug))
		}
		c.bySlug[def.Slug] = i
		c.badges[i] = def.Clone()
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(c.badges, func(i, j int) bool {
		return c.badges[i].Less(c.badges[j])
	})
	for i, def := range c.badges {
		c.bySlug[def.Slug] = i
	}
	return c, nil
}

func checkDefinition(def model.BadgeDefinition) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: badge %q: %s", ErrInvalidCatalog, def.Slug, fmt.Sprintf(format, args...))
	}
	switch {
	case def.Slug == "":
		return fmt.Errorf("%w: badge at position %d has no slug", ErrInvalidCatalog, def.Position)
	case def.Name == "":
		return fail("name is required")
	case !def.Family.Valid():
		return fail("unknown family %q", def.Family)
	case !def.CalculationMethod.Valid():
		return fail("unknown calculation method %q", def.CalculationMethod)
	case def.CalculationMethod != model.MethodManual && len(def.Requirements) == 0:
		return fail("%s badges need at least one requirement", def.CalculationMethod)
	}
	if d := def.DecayRules; d != nil {
		if d.PeriodDays < 0 {
			return fail("decay period cannot be negative")
		}
		if len(d.Conditions) == 0 {
			return fail("decay rules need at least one condition")
		}
	}
	return nil
}

// Validate checks every requirement and decay condition against registry
// and reports all unknown identifiers at once.
func (c *Catalog) Validate(registry *requirement.Registry) error {
	var errs []error
	for _, def := range c.badges {
		ids := def.Requirements
		if def.DecayRules != nil {
			ids = append(append([]string(nil), ids...), def.DecayRules.Conditions...)
		}
		for _, id := range ids {
			if !registry.Has(id) {
				errs = append(errs, fmt.Errorf("%w: badge %q references %q", ErrUnknownRequirement, def.Slug, id))
			}
		}
	}
	return errors.Join(errs...)
}

// All returns the definitions ordered by priority, ties by insertion order.
func (c *Catalog) All() []model.BadgeDefinition {
	out := make([]model.BadgeDefinition, len(c.badges))
	for i, def := range c.badges {
		out[i] = def.Clone()
	}
	return out
}

// Get returns the definition for slug.
func (c *Catalog) Get(slug string) (model.BadgeDefinition, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return model.BadgeDefinition{}, false
	}
	return c.badges[i].Clone(), true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.badges) }

// Version returns the catalog version string, if any.
func (c *Catalog) Version() string { return c.version }

// Slugs returns the slugs in catalog order.
func (c *Catalog) Slugs() []string {
	out := make([]string, len(c.badges))
	for i, def := range c.badges {
		out[i] = def.Slug
	}
	return out
}
