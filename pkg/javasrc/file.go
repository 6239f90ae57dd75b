// Package javasrc indexes Java source trees into knowledge base facts.
//
// Indexing runs in two phases. Extraction parses each file on its own with
// tree-sitter and records declarations and references with type names exactly
// as written. Linking then resolves those names against every extracted file
// and emits kb.Facts.
package javasrc

import "github.com/715d/topcallers/pkg/kb"

// File is everything extracted from one compilation unit. It is serialised
// by the fact store, so it holds only plain data.
type File struct {
	Path        string       `json:"path"`
	Package     string       `json:"package,omitempty"`
	Imports     []Import     `json:"imports,omitempty"`
	Types       []Type       `json:"types,omitempty"`
	Methods     []Method     `json:"methods,omitempty"`
	Calls       []Call       `json:"calls,omitempty"`
	Functionals []Functional `json:"functionals,omitempty"`
	Docs        []Doc        `json:"docs,omitempty"`
}

// Import is one import declaration.
type Import struct {
	Name     string `json:"name"`
	Static   bool   `json:"static,omitempty"`
	OnDemand bool   `json:"on_demand,omitempty"`
}

// Type is a class, interface, enum, record, anonymous or local class.
type Type struct {
	// ID is unique within the file: the dotted nesting path for named types
	// ("Outer.Inner"), "<enclosing>$<n>" for anonymous classes and
	// "<enclosing>$<n><Name>" for local classes.
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Outer      string         `json:"outer,omitempty"`
	Supertypes []string       `json:"supertypes,omitempty"`
	TypeParams []kb.TypeParam `json:"type_params,omitempty"`
	Fields     []Var          `json:"fields,omitempty"`
	Start      kb.Position    `json:"start"`
	End        kb.Position    `json:"end"`

	// In is the index of the method containing the declaration of an
	// anonymous or local class, or -1.
	In int `json:"in"`
}

// Var is a declared variable, parameter or field.
type Var struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Static bool   `json:"static,omitempty"`
}

// Method is a method, constructor or class initializer.
type Method struct {
	Owner       string         `json:"owner"`
	Name        string         `json:"name"`
	Params      []Var          `json:"params,omitempty"`
	Returns     string         `json:"returns,omitempty"`
	Annotations []string       `json:"annotations,omitempty"`
	TypeParams  []kb.TypeParam `json:"type_params,omitempty"`
	Static      bool           `json:"static,omitempty"`
	Constructor bool           `json:"constructor,omitempty"`
	Override    bool           `json:"override,omitempty"`
	Initializer bool           `json:"initializer,omitempty"`
	Abstract    bool           `json:"abstract,omitempty"`
	NameAt      kb.Position    `json:"name_at"`
	Start       kb.Position    `json:"start"`
	End         kb.Position    `json:"end"`
}

// Arity returns the number of declared parameters.
func (m *Method) Arity() int {
	return len(m.Params)
}

// Varargs reports whether the last parameter is variadic.
func (m *Method) Varargs() bool {
	return len(m.Params) > 0 && isVarargs(m.Params[len(m.Params)-1].Type)
}

// ReceiverKind classifies the expression a method is invoked on.
type ReceiverKind string

const (
	ReceiverImplicit ReceiverKind = "implicit"
	ReceiverThis     ReceiverKind = "this"
	ReceiverSuper    ReceiverKind = "super"
	ReceiverVar      ReceiverKind = "var"
	ReceiverType     ReceiverKind = "type"
	ReceiverUnknown  ReceiverKind = "unknown"
)

// Receiver is the receiver of a call. For ReceiverVar, Type is the declared
// type of the variable; for ReceiverType, Type is the type name as written.
type Receiver struct {
	Kind ReceiverKind `json:"kind"`
	Type string       `json:"type,omitempty"`

	// Qualifier names an outer class for Outer.this and Outer.super.
	Qualifier string `json:"qualifier,omitempty"`
}

// CallKind distinguishes the reference forms that link to a method.
type CallKind string

const (
	CallInvoke    CallKind = "invoke"
	CallNew       CallKind = "new"
	CallThisCtor  CallKind = "this"
	CallSuperCtor CallKind = "super"
	CallMethodRef CallKind = "ref"
)

// Call is a method invocation, object creation, explicit constructor
// invocation or method reference. Owner is the innermost type around the
// call and In the enclosing method index, or -1. Args is -1 when the arity is
// not known.
type Call struct {
	Kind     CallKind    `json:"kind"`
	Name     string      `json:"name"`
	Args     int         `json:"args"`
	Receiver Receiver    `json:"receiver"`
	Owner    string      `json:"owner,omitempty"`
	In       int         `json:"in"`
	At       kb.Position `json:"at"`

	// Anonymous is the type id of the class body of an anonymous creation.
	Anonymous string `json:"anonymous,omitempty"`

	// Doc marks a {@link} or @see reference inside a Javadoc comment.
	Doc bool `json:"doc,omitempty"`
}

// HintKind is the syntactic context that fixes a functional expression's
// target type.
type HintKind string

const (
	HintNone     HintKind = ""
	HintArgument HintKind = "argument"
	HintDeclared HintKind = "declared"
	HintAssign   HintKind = "assign"
	HintReturn   HintKind = "return"
	HintCast     HintKind = "cast"
)

// Functional is a lambda or method reference expression.
type Functional struct {
	Kind   string      `json:"kind"`
	Params int         `json:"params"`
	Owner  string      `json:"owner,omitempty"`
	In     int         `json:"in"`
	At     kb.Position `json:"at"`
	Hint   HintKind    `json:"hint,omitempty"`

	// Type is the written target type for declared and cast hints, or the
	// assigned variable's declared type.
	Type string `json:"type,omitempty"`

	// Call and Arg locate the enclosing argument list for argument hints.
	Call int `json:"call,omitempty"`
	Arg  int `json:"arg,omitempty"`
}

// Doc is a Javadoc comment.
type Doc struct {
	Start kb.Position `json:"start"`
	End   kb.Position `json:"end"`
}
