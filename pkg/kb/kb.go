// Package kb defines the code knowledge base consumed by the top-caller search
// and provides an immutable, in-memory implementation built from Facts.
package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ObjectType is the root of every class hierarchy.
const ObjectType = "java.lang.Object"

var (
	// ErrNotReady is returned by lookups against an index that is still building.
	ErrNotReady = errors.New("knowledge base not ready")

	// ErrStaleReference is returned when a symbol no longer resolves in the snapshot.
	ErrStaleReference = errors.New("stale symbol reference")

	// ErrUnknownMethod is returned when a method reference matches nothing.
	ErrUnknownMethod = errors.New("unknown method")
)

// IsTransient reports whether err is a recoverable single-lookup failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrStaleReference)
}

// TypeKind classifies a declared type.
type TypeKind int

const (
	KindClass TypeKind = iota
	KindInterface
	KindEnum
	KindAnonymous
	KindLocal
)

var kindNames = map[TypeKind]string{
	KindClass:     "class",
	KindInterface: "interface",
	KindEnum:      "enum",
	KindAnonymous: "anonymous",
	KindLocal:     "local",
}

func (k TypeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// ParseTypeKind converts a kind name ("class", "interface", ...) into a TypeKind.
// Records are treated as classes.
func ParseTypeKind(s string) (TypeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "class", "record":
		return KindClass, nil
	case "interface", "annotation":
		return KindInterface, nil
	case "enum":
		return KindEnum, nil
	case "anonymous":
		return KindAnonymous, nil
	case "local":
		return KindLocal, nil
	}
	return KindClass, fmt.Errorf("unknown type kind %q", s)
}

// Concrete reports whether instances of the kind are created directly.
func (k TypeKind) Concrete() bool {
	return k != KindInterface
}

// Position is a 1-based line/column pair.
type Position struct {
	Line   int `yaml:"line" json:"line"`
	Column int `yaml:"column,omitempty" json:"column,omitempty"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Location is a point in a source file.
type Location struct {
	File     string `yaml:"file" json:"file"`
	Position `yaml:",inline"`
}

func (l Location) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Range is a closed span of source positions within a single file.
type Range struct {
	Start Position `yaml:"start" json:"start"`
	End   Position `yaml:"end" json:"end"`
}

// Contains reports whether p lies within r, bounds included.
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && !r.End.Before(p)
}

// Span is a rough size measure used to pick the innermost of nested ranges.
func (r Range) Span() int {
	return (r.End.Line-r.Start.Line)*10_000 + (r.End.Column - r.Start.Column)
}

// MethodSymbol is a method or constructor definition. Symbols are handed out
// as pointers that stay stable for the lifetime of one snapshot.
type MethodSymbol struct {
	// Owner is the id of the declaring type. Named types use their qualified
	// name; anonymous and local classes use a binary name such as "a.B$1".
	Owner string

	// Name is the method name. Constructors carry the simple type name.
	Name string

	// Params holds the presentable parameter types in declaration order.
	Params []string

	// ReturnType is empty for constructors.
	ReturnType string

	// Annotations holds annotation simple names without the leading '@'.
	Annotations []string

	Static bool

	// Location is where the method name is declared.
	Location Location

	// Range spans the whole declaration including the body.
	Range Range
}

// Ref renders the textual reference "Owner.name(P1,P2)" used by Facts.
func (m *MethodSymbol) Ref() string {
	var b strings.Builder
	b.Grow(len(m.Owner) + len(m.Name) + 16)
	b.WriteString(m.Owner)
	b.WriteByte('.')
	b.WriteString(m.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(m.Params, ","))
	b.WriteByte(')')
	return b.String()
}

func (m *MethodSymbol) String() string {
	return m.Ref()
}

// HasAnnotation reports whether the method carries the named annotation.
func (m *MethodSymbol) HasAnnotation(name string) bool {
	for _, a := range m.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

// TypeParam is a declared type variable with its upper bounds.
type TypeParam struct {
	Name   string   `yaml:"name" json:"name"`
	Bounds []string `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

// TypeInfo describes a declared (or referenced external) type.
type TypeInfo struct {
	// Name is the type id, see MethodSymbol.Owner.
	Name string

	// QualifiedName is empty for types without a stable name.
	QualifiedName string

	Kind       TypeKind
	Supertypes []string
	TypeParams []TypeParam

	// DefinedAt is where the type is declared; for anonymous classes it is the
	// instance creation expression.
	DefinedAt Location

	// External types are referenced by the code base but not declared in it.
	External bool
}

// Anonymous reports whether the type has no stable qualified name.
func (t *TypeInfo) Anonymous() bool {
	return t.Kind == KindAnonymous || t.Kind == KindLocal || t.QualifiedName == ""
}

// TypeRef is a static type as written at a use site. A type variable carries
// its upper bounds.
type TypeRef struct {
	Name      string   `yaml:"name" json:"name"`
	Bounds    []string `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	TypeParam bool     `yaml:"type_param,omitempty" json:"type_param,omitempty"`
}

// NamedType returns a TypeRef for a plain named type.
func NamedType(name string) TypeRef {
	return TypeRef{Name: name}
}

// IsTypeParam reports whether the reference denotes a type variable.
func (t TypeRef) IsTypeParam() bool {
	return t.TypeParam || len(t.Bounds) > 0
}

// Erasure returns the named types the reference may stand for.
func (t TypeRef) Erasure() []string {
	if !t.IsTypeParam() {
		return []string{t.Name}
	}
	if len(t.Bounds) == 0 {
		return []string{ObjectType}
	}
	return t.Bounds
}

func (t TypeRef) String() string {
	if !t.IsTypeParam() {
		return t.Name
	}
	if len(t.Bounds) == 0 {
		return t.Name
	}
	return t.Name + " extends " + strings.Join(t.Bounds, " & ")
}

// CallSite is an occurrence of a method reference.
type CallSite struct {
	Location Location

	// Receiver is the static type the method is invoked on; nil when it could
	// not be resolved.
	Receiver *TypeRef
}

// FunctionalKind distinguishes lambdas from method references.
type FunctionalKind int

const (
	FunctionalLambda FunctionalKind = iota
	FunctionalMethodRef
)

func (k FunctionalKind) String() string {
	if k == FunctionalMethodRef {
		return "methodRef"
	}
	return "lambda"
}

// ParseFunctionalKind converts "lambda" or "methodRef" into a FunctionalKind.
func ParseFunctionalKind(s string) (FunctionalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lambda":
		return FunctionalLambda, nil
	case "methodref", "method_ref", "method-ref":
		return FunctionalMethodRef, nil
	}
	return FunctionalLambda, fmt.Errorf("unknown functional kind %q", s)
}

// FunctionalRef is a lambda or method reference instantiating an interface.
type FunctionalRef struct {
	Kind      FunctionalKind
	Interface string
	Location  Location
}

// Scope restricts searches to a subset of source files.
type Scope interface {
	Contains(file string) bool
}

// KnowledgeBase is a consistent, read-only view of the indexed code.
type KnowledgeBase interface {
	// FindCallSites returns all references to m within scope, in source order.
	FindCallSites(ctx context.Context, m *MethodSymbol, scope Scope) ([]CallSite, error)

	// FindOverriddenRootMethods returns the deepest super-methods m overrides.
	FindOverriddenRootMethods(ctx context.Context, m *MethodSymbol) ([]*MethodSymbol, error)

	// FindFunctionalImplementations returns lambdas and method references
	// whose target type is iface.
	FindFunctionalImplementations(ctx context.Context, iface string, scope Scope) ([]FunctionalRef, error)

	// EnclosingMethod returns the innermost method containing loc.
	EnclosingMethod(loc Location) (*MethodSymbol, bool)

	// TypeInfo returns the declaration of the named type.
	TypeInfo(name string) (*TypeInfo, bool)

	// IsRelatedType reports whether either type is an ancestor of the other.
	IsRelatedType(a, b TypeRef) bool

	// IsSubtypeOrSelf reports whether sub is sup or one of its descendants.
	IsSubtypeOrSelf(sub, sup string) bool

	// IsInDocComment reports whether loc is inside a documentation comment.
	IsInDocComment(loc Location) bool

	// ProductionScope returns the scope excluding test sources.
	ProductionScope() Scope

	// LookupMethods resolves "Owner.name" or "Owner.name(P1,P2)".
	LookupMethods(ref string) ([]*MethodSymbol, error)

	// Methods returns every method symbol in the snapshot.
	Methods() []*MethodSymbol
}

// Index is a possibly still-building code index.
type Index interface {
	Ready() bool

	// WaitUntilReady blocks until the index is ready or ctx is done.
	WaitUntilReady(ctx context.Context) error

	// Snapshot returns the current consistent view, or nil if not ready.
	Snapshot() KnowledgeBase
}
