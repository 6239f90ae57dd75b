package kb

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Facts is the serialisable form of a knowledge base. It is produced by the
// Java indexer, by hand-written test fixtures, and by the fact store.
type Facts struct {
	TestRoots   []string         `yaml:"test_roots,omitempty" json:"test_roots,omitempty"`
	Types       []TypeFact       `yaml:"types,omitempty" json:"types,omitempty"`
	Methods     []MethodFact     `yaml:"methods,omitempty" json:"methods,omitempty"`
	Calls       []CallFact       `yaml:"calls,omitempty" json:"calls,omitempty"`
	Functionals []FunctionalFact `yaml:"functionals,omitempty" json:"functionals,omitempty"`
	DocComments []DocFact        `yaml:"doc_comments,omitempty" json:"doc_comments,omitempty"`
}

// TypeFact declares a type. Types referenced only as owners or supertypes are
// declared implicitly.
type TypeFact struct {
	Name          string      `yaml:"name" json:"name"`
	QualifiedName string      `yaml:"qualified_name,omitempty" json:"qualified_name,omitempty"`
	Kind          string      `yaml:"kind,omitempty" json:"kind,omitempty"`
	Supertypes    []string    `yaml:"supertypes,omitempty" json:"supertypes,omitempty"`
	TypeParams    []TypeParam `yaml:"type_params,omitempty" json:"type_params,omitempty"`
	External      bool        `yaml:"external,omitempty" json:"external,omitempty"`

	// DefinedAt locates the declaration. Anonymous types may instead name the
	// method containing their creation expression with In.
	DefinedAt *Location `yaml:"defined_at,omitempty" json:"defined_at,omitempty"`
	In        string    `yaml:"in,omitempty" json:"in,omitempty"`
}

// MethodFact declares a method. A missing line places the method in a
// synthetic block of its owner's file.
type MethodFact struct {
	Owner       string   `yaml:"owner" json:"owner"`
	Name        string   `yaml:"name" json:"name"`
	Params      []string `yaml:"params,omitempty" json:"params,omitempty"`
	Returns     string   `yaml:"returns,omitempty" json:"returns,omitempty"`
	Annotations []string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Static      bool     `yaml:"static,omitempty" json:"static,omitempty"`
	Constructor bool     `yaml:"constructor,omitempty" json:"constructor,omitempty"`
	Overrides   []string `yaml:"overrides,omitempty" json:"overrides,omitempty"`

	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty"`
	Column    int    `yaml:"column,omitempty" json:"column,omitempty"`
	EndLine   int    `yaml:"end_line,omitempty" json:"end_line,omitempty"`
	EndColumn int    `yaml:"end_column,omitempty" json:"end_column,omitempty"`
}

// Ref returns the textual reference of the declared method.
func (f MethodFact) Ref() string {
	return f.Owner + "." + f.Name + "(" + strings.Join(f.Params, ",") + ")"
}

// CallFact is one reference to Target. Either In or File/Line must be set.
type CallFact struct {
	Target   string   `yaml:"target" json:"target"`
	In       string   `yaml:"in,omitempty" json:"in,omitempty"`
	File     string   `yaml:"file,omitempty" json:"file,omitempty"`
	Line     int      `yaml:"line,omitempty" json:"line,omitempty"`
	Column   int      `yaml:"column,omitempty" json:"column,omitempty"`
	Receiver *TypeRef `yaml:"receiver,omitempty" json:"receiver,omitempty"`

	// Doc marks a reference written inside a documentation comment.
	Doc bool `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// FunctionalFact is a lambda or method reference whose target type is Interface.
type FunctionalFact struct {
	Interface string `yaml:"interface" json:"interface"`
	Kind      string `yaml:"kind,omitempty" json:"kind,omitempty"`
	In        string `yaml:"in,omitempty" json:"in,omitempty"`
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty"`
	Column    int    `yaml:"column,omitempty" json:"column,omitempty"`
	Doc       bool   `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// DocFact is the span of one documentation comment.
type DocFact struct {
	File  string   `yaml:"file" json:"file"`
	Start Position `yaml:"start" json:"start"`
	End   Position `yaml:"end" json:"end"`
}

// UnmarshalYAML accepts either a bare type name or a mapping.
func (t *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = TypeRef{Name: value.Value}
		return nil
	}
	type plain TypeRef
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = TypeRef(p)
	return nil
}

// Merge appends the contents of other to f.
func (f *Facts) Merge(other *Facts) {
	if other == nil {
		return
	}
	f.TestRoots = append(f.TestRoots, other.TestRoots...)
	f.Types = append(f.Types, other.Types...)
	f.Methods = append(f.Methods, other.Methods...)
	f.Calls = append(f.Calls, other.Calls...)
	f.Functionals = append(f.Functionals, other.Functionals...)
	f.DocComments = append(f.DocComments, other.DocComments...)
}

// ParseFacts decodes YAML (or JSON, which is a subset) facts.
func ParseFacts(data []byte) (*Facts, error) {
	var f Facts
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse facts: %w", err)
	}
	return &f, nil
}

// LoadFacts reads a facts file from disk.
func LoadFacts(path string) (*Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	f, err := ParseFacts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// MethodRef is a parsed textual method reference.
type MethodRef struct {
	Owner string
	Name  string

	// Params is nil when the reference omits the parameter list, which
	// selects every overload.
	Params []string
}

// ParseMethodRef parses "Owner.name" or "Owner.name(P1,P2)". "Owner#name" is
// accepted as well.
func ParseMethodRef(ref string) (MethodRef, error) {
	ref = strings.TrimSpace(ref)
	head := ref
	var params []string
	if open := strings.IndexByte(ref, '('); open >= 0 {
		if !strings.HasSuffix(ref, ")") {
			return MethodRef{}, fmt.Errorf("malformed method reference %q", ref)
		}
		head = ref[:open]
		params = SplitParams(ref[open+1 : len(ref)-1])
		if params == nil {
			params = []string{}
		}
	}
	sep := strings.LastIndexByte(head, '#')
	if sep < 0 {
		sep = strings.LastIndexByte(head, '.')
	}
	if sep <= 0 || sep == len(head)-1 {
		return MethodRef{}, fmt.Errorf("malformed method reference %q", ref)
	}
	return MethodRef{Owner: head[:sep], Name: head[sep+1:], Params: params}, nil
}

// SplitParams splits a comma separated parameter list, ignoring commas nested
// in generic arguments.
func SplitParams(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// SimpleName strips the package and enclosing type prefix from a type id.
func SimpleName(name string) string {
	name = EraseGenerics(name)
	if i := strings.LastIndexAny(name, ".$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// EraseGenerics removes type arguments: "List<String>" becomes "List".
func EraseGenerics(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		suffix := ""
		if j := strings.LastIndexByte(name, '>'); j >= 0 {
			suffix = name[j+1:]
		}
		return name[:i] + suffix
	}
	return name
}

// OwnerFile guesses the conventional source path of a type id.
func OwnerFile(owner string) string {
	if i := strings.IndexByte(owner, '$'); i >= 0 {
		owner = owner[:i]
	}
	return strings.ReplaceAll(owner, ".", "/") + ".java"
}
