package rules

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/data-export/internal/types"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

// Catalog holds the built-in default rules per record type
type Catalog struct {
	instance []Rule
	holdings []Rule
	byID     map[string]Rule
}

// LoadCatalog parses the embedded default rule files
func LoadCatalog() (*Catalog, error) {
	instance, err := readDefaults("defaults/instance.yaml")
	if err != nil {
		return nil, err
	}
	holdings, err := readDefaults("defaults/holdings.yaml")
	if err != nil {
		return nil, err
	}
	return NewCatalog(instance, holdings)
}

// NewCatalog builds a catalog from explicit rule lists. Rule ids must be unique.
func NewCatalog(instance, holdings []Rule) (*Catalog, error) {
	c := &Catalog{
		instance: cloneAll(instance),
		holdings: cloneAll(holdings),
		byID:     make(map[string]Rule, len(instance)+len(holdings)),
	}
	for _, r := range append(cloneAll(instance), holdings...) {
		if r.ID == "" || r.Field == "" {
			return nil, &CatalogError{Source: "rules", Message: fmt.Sprintf("rule %q has no id or field", r.ID)}
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, &CatalogError{Source: "rules", Message: fmt.Sprintf("duplicate rule id %q", r.ID)}
		}
		c.byID[r.ID] = r.Clone()
	}
	return c, nil
}

// Defaults returns a copy of the default rules for a record type
func (c *Catalog) Defaults(rt types.RecordType) []Rule {
	switch rt {
	case types.RecordTypeInstance:
		return cloneAll(c.instance)
	case types.RecordTypeHoldings:
		return cloneAll(c.holdings)
	default:
		return nil
	}
}

// Find returns a copy of the default rule with the given id
func (c *Catalog) Find(id string) (Rule, bool) {
	r, ok := c.byID[id]
	if !ok {
		return Rule{}, false
	}
	return r.Clone(), true
}

func readDefaults(name string) ([]Rule, error) {
	data, err := defaultFiles.ReadFile(name)
	if err != nil {
		return nil, &CatalogError{Source: name, Message: "cannot read", Cause: err}
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, &CatalogError{Source: name, Message: "cannot parse", Cause: err}
	}
	return rules, nil
}
