// Package ontology loads and validates the versioned process ontology: the
// node labels, relationship types and endpoint constraints every graph write
// is checked against. The loaded ontology is an immutable snapshot; updates
// swap the whole snapshot at once and only ever move the version forward.
package ontology

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed ontology.yaml
var defaultYAML []byte

type NodeType struct {
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	Extractable bool   `yaml:"extractable"`
}

type RelationshipType struct {
	Description string   `yaml:"description"`
	ValidFrom   []string `yaml:"valid_from"`
	ValidTo     []string `yaml:"valid_to"`
}

type ControlRule struct {
	ElementKind string   `yaml:"element_kind"`
	Requires    string   `yaml:"requires"`
	Targets     []string `yaml:"targets"`
}

type Ontology struct {
	Version           string                      `yaml:"version"`
	NodeTypes         map[string]NodeType         `yaml:"node_types"`
	RelationshipTypes map[string]RelationshipType `yaml:"relationship_types"`
	Bidirectional     []string                    `yaml:"bidirectional"`
	Acyclic           []string                    `yaml:"acyclic"`
	ControlRules      []ControlRule               `yaml:"control_rules"`

	labelByKind map[string]string
}

func Parse(raw []byte) (*Ontology, error) {
	var o Ontology
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("ontology: parse: %w", err)
	}
	o.labelByKind = map[string]string{}
	for label, nt := range o.NodeTypes {
		o.labelByKind[nt.Kind] = label
	}
	if issues := o.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("ontology: invalid: %s", strings.Join(issues, "; "))
	}
	return &o, nil
}

func LoadDefault() (*Ontology, error) {
	return Parse(defaultYAML)
}

func LoadFile(path string) (*Ontology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ontology: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Validate returns structural problems in the ontology definition. A valid
// ontology returns nil.
func (o *Ontology) Validate() []string {
	var issues []string
	if strings.TrimSpace(o.Version) == "" {
		issues = append(issues, "missing version")
	}
	if len(o.NodeTypes) == 0 {
		issues = append(issues, "no node types defined")
	}
	seenKinds := map[string]string{}
	for label, nt := range o.NodeTypes {
		if strings.TrimSpace(nt.Kind) == "" {
			issues = append(issues, fmt.Sprintf("node type %s has no kind", label))
			continue
		}
		if prev, dup := seenKinds[nt.Kind]; dup {
			issues = append(issues, fmt.Sprintf("kind %s mapped by both %s and %s", nt.Kind, prev, label))
		}
		seenKinds[nt.Kind] = label
	}
	for rel, rt := range o.RelationshipTypes {
		if len(rt.ValidFrom) == 0 || len(rt.ValidTo) == 0 {
			issues = append(issues, fmt.Sprintf("relationship %s missing endpoint constraints", rel))
		}
		for _, l := range rt.ValidFrom {
			if _, ok := o.NodeTypes[l]; !ok {
				issues = append(issues, fmt.Sprintf("relationship %s valid_from references unknown label %s", rel, l))
			}
		}
		for _, l := range rt.ValidTo {
			if _, ok := o.NodeTypes[l]; !ok {
				issues = append(issues, fmt.Sprintf("relationship %s valid_to references unknown label %s", rel, l))
			}
		}
	}
	for _, rel := range o.Bidirectional {
		if _, ok := o.RelationshipTypes[rel]; !ok {
			issues = append(issues, fmt.Sprintf("bidirectional list references unknown relationship %s", rel))
		}
	}
	for _, rel := range o.Acyclic {
		if _, ok := o.RelationshipTypes[rel]; !ok {
			issues = append(issues, fmt.Sprintf("acyclic list references unknown relationship %s", rel))
		}
	}
	for i, cr := range o.ControlRules {
		if _, ok := o.labelByKind[cr.ElementKind]; !ok {
			issues = append(issues, fmt.Sprintf("control rule %d references unknown kind %s", i, cr.ElementKind))
		}
		if _, ok := o.RelationshipTypes[cr.Requires]; !ok {
			issues = append(issues, fmt.Sprintf("control rule %d requires unknown relationship %s", i, cr.Requires))
		}
		for _, t := range cr.Targets {
			if _, ok := o.NodeTypes[t]; !ok {
				issues = append(issues, fmt.Sprintf("control rule %d targets unknown label %s", i, t))
			}
		}
	}
	sort.Strings(issues)
	return issues
}

// LabelForKind maps an element kind to its graph node label.
func (o *Ontology) LabelForKind(kind string) (string, bool) {
	label, ok := o.labelByKind[kind]
	return label, ok
}

func (o *Ontology) ExtractableKinds() []string {
	var kinds []string
	for _, nt := range o.NodeTypes {
		if nt.Extractable {
			kinds = append(kinds, nt.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// EdgeAllowed checks a relationship against its directional endpoint
// constraints. Bidirectional relationships are checked in both orders.
func (o *Ontology) EdgeAllowed(rel, fromLabel, toLabel string) error {
	rt, ok := o.RelationshipTypes[rel]
	if !ok {
		return fmt.Errorf("unknown relationship type %s", rel)
	}
	if contains(rt.ValidFrom, fromLabel) && contains(rt.ValidTo, toLabel) {
		return nil
	}
	if o.IsBidirectional(rel) && contains(rt.ValidFrom, toLabel) && contains(rt.ValidTo, fromLabel) {
		return nil
	}
	return fmt.Errorf("%s not allowed from %s to %s", rel, fromLabel, toLabel)
}

func (o *Ontology) IsBidirectional(rel string) bool { return contains(o.Bidirectional, rel) }
func (o *Ontology) IsAcyclic(rel string) bool       { return contains(o.Acyclic, rel) }

// ControlRuleFor returns the control requirement for an element kind, if any.
func (o *Ontology) ControlRuleFor(kind string) (ControlRule, bool) {
	for _, cr := range o.ControlRules {
		if cr.ElementKind == kind {
			return cr, true
		}
	}
	return ControlRule{}, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Store holds the live ontology snapshot. Readers get a consistent view for
// the duration of one pipeline run; Swap only accepts a newer version.
type Store struct {
	ptr atomic.Pointer[Ontology]
}

func NewStore(o *Ontology) *Store {
	s := &Store{}
	s.ptr.Store(o)
	return s
}

func (s *Store) Current() *Ontology { return s.ptr.Load() }

func (s *Store) Swap(next *Ontology) error {
	cur := s.ptr.Load()
	if cur != nil && compareVersions(next.Version, cur.Version) <= 0 {
		return fmt.Errorf("ontology: refusing swap from %s to %s", cur.Version, next.Version)
	}
	s.ptr.Store(next)
	return nil
}

func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return 0
}
