package javasrc

import (
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"

	"github.com/715d/topcallers/pkg/kb"
)

// initializerName names the synthetic method holding field initializers,
// initializer blocks and enum constant creations of a type.
const initializerName = "<clinit>"

var typeKinds = map[string]string{
	"class_declaration":           "class",
	"interface_declaration":       "interface",
	"enum_declaration":            "enum",
	"record_declaration":          "record",
	"annotation_type_declaration": "annotation",
}

// ParseSource extracts the declarations and references of one Java file.
func ParseSource(path string, src []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(sitter.NewLanguage(java.Language())); err != nil {
		return nil, fmt.Errorf("set java language: %w", err)
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no syntax tree", path)
	}
	defer tree.Close()

	e := &extractor{
		src:      src,
		file:     &File{Path: path},
		method:   -1,
		counters: make(map[string]int),
		inits:    make(map[string]int),
		calls:    make(map[span]int),
	}
	e.visit(tree.RootNode())
	return e.file, nil
}

type span struct {
	start, end uint
}

func spanOf(n *sitter.Node) span {
	return span{start: n.StartByte(), end: n.EndByte()}
}

type extractor struct {
	src  []byte
	file *File

	// types is the stack of enclosing type indexes into file.Types.
	types  []int
	method int
	scopes []map[string]string

	counters map[string]int
	inits    map[string]int
	calls    map[span]int
}

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(e.src[n.StartByte():n.EndByte()])
}

func start(n *sitter.Node) kb.Position {
	p := n.StartPosition()
	return kb.Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func end(n *sitter.Node) kb.Position {
	p := n.EndPosition()
	return kb.Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (e *extractor) visitChildren(n *sitter.Node) {
	for i := uint(0); i < n.ChildCount(); i++ {
		e.visit(n.Child(i))
	}
}

func (e *extractor) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch kind := n.Kind(); kind {
	case "package_declaration":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if c := n.NamedChild(i); c.Kind() == "scoped_identifier" || c.Kind() == "identifier" {
				e.file.Package = e.text(c)
			}
		}
	case "import_declaration":
		e.importDecl(n)
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration", "annotation_type_declaration":
		e.typeDecl(n, typeKinds[kind])
	case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
		e.methodDecl(n)
	case "field_declaration", "constant_declaration":
		e.fieldDecl(n)
	case "static_initializer":
		e.initializer(func() { e.visitChildren(n) })
	case "block":
		if p := n.Parent(); p != nil && (p.Kind() == "class_body" || p.Kind() == "enum_body_declarations") {
			e.initializer(func() { e.visitChildren(n) })
			return
		}
		e.scoped(func() { e.visitChildren(n) })
	case "enum_constant":
		e.enumConstant(n)
	case "local_variable_declaration":
		e.localVars(n)
	case "for_statement", "try_with_resources_statement", "switch_block_statement_group", "switch_rule":
		e.scoped(func() { e.visitChildren(n) })
	case "resource":
		e.visit(n.ChildByFieldName("value"))
		if name := n.ChildByFieldName("name"); name != nil {
			e.declare(e.text(name), e.declaredType(n.ChildByFieldName("type"), n.ChildByFieldName("value")))
		}
	case "enhanced_for_statement":
		e.scoped(func() {
			e.visit(n.ChildByFieldName("value"))
			e.declare(e.text(n.ChildByFieldName("name")), normalizeType(e.text(n.ChildByFieldName("type"))))
			e.visit(n.ChildByFieldName("body"))
		})
	case "catch_clause":
		e.scoped(func() {
			for i := uint(0); i < n.NamedChildCount(); i++ {
				if c := n.NamedChild(i); c.Kind() == "catch_formal_parameter" {
					e.catchParam(c)
				}
			}
			e.visit(n.ChildByFieldName("body"))
		})
	case "instanceof_expression":
		e.visitChildren(n)
		if name := n.ChildByFieldName("name"); name != nil {
			e.declare(e.text(name), normalizeType(e.text(n.ChildByFieldName("right"))))
		}
	case "lambda_expression":
		e.lambda(n)
	case "method_reference":
		e.methodRef(n)
	case "method_invocation":
		e.invocation(n)
	case "object_creation_expression":
		e.creation(n)
	case "explicit_constructor_invocation":
		e.ctorInvocation(n)
	case "block_comment":
		if text := e.text(n); strings.HasPrefix(text, "/**") {
			e.javadoc(n, text)
		}
	default:
		e.visitChildren(n)
	}
}

func (e *extractor) importDecl(n *sitter.Node) {
	imp := Import{}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		switch c.Kind() {
		case "static":
			imp.Static = true
		case "asterisk":
			imp.OnDemand = true
		case "scoped_identifier", "identifier":
			imp.Name = e.text(c)
		}
	}
	if imp.Name != "" {
		e.file.Imports = append(e.file.Imports, imp)
	}
}

func (e *extractor) currentType() string {
	if len(e.types) == 0 {
		return ""
	}
	return e.file.Types[e.types[len(e.types)-1]].ID
}

func (e *extractor) nextNested(outer string) string {
	e.counters[outer]++
	return fmt.Sprintf("%s$%d", outer, e.counters[outer])
}

// enterType records t and visits body with t as the innermost type.
func (e *extractor) enterType(t Type, body *sitter.Node) string {
	idx := len(e.file.Types)
	e.file.Types = append(e.file.Types, t)
	e.types = append(e.types, idx)
	saved := e.method
	e.method = -1

	e.visit(body)

	e.method = saved
	e.types = e.types[:len(e.types)-1]
	return t.ID
}

func (e *extractor) typeDecl(n *sitter.Node, kind string) {
	name := e.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	t := Type{
		Name:       name,
		Kind:       kind,
		Outer:      e.currentType(),
		Supertypes: e.supertypes(n),
		TypeParams: e.typeParams(n.ChildByFieldName("type_parameters")),
		Start:      start(n),
		End:        end(n),
		In:         -1,
	}
	switch {
	case t.Outer == "":
		t.ID = name
	case e.method >= 0:
		t.ID = e.nextNested(t.Outer) + name
		t.In = e.method
		if kind == "class" {
			t.Kind = "local"
		}
	default:
		t.ID = t.Outer + "." + name
	}
	if kind == "record" {
		t.Fields = e.params(n.ChildByFieldName("parameters"))
	}
	e.enterType(t, n.ChildByFieldName("body"))
}

func (e *extractor) supertypes(n *sitter.Node) []string {
	var out []string
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		switch c.Kind() {
		case "superclass":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				out = append(out, normalizeType(e.text(c.NamedChild(j))))
			}
		case "super_interfaces", "extends_interfaces":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				list := c.NamedChild(j)
				if list.Kind() != "type_list" {
					continue
				}
				for k := uint(0); k < list.NamedChildCount(); k++ {
					out = append(out, normalizeType(e.text(list.NamedChild(k))))
				}
			}
		}
	}
	return out
}

func (e *extractor) typeParams(n *sitter.Node) []kb.TypeParam {
	if n == nil {
		return nil
	}
	var out []kb.TypeParam
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "type_parameter" {
			continue
		}
		var tp kb.TypeParam
		for j := uint(0); j < c.NamedChildCount(); j++ {
			part := c.NamedChild(j)
			switch part.Kind() {
			case "type_identifier", "identifier":
				if tp.Name == "" {
					tp.Name = e.text(part)
				}
			case "type_bound":
				for k := uint(0); k < part.NamedChildCount(); k++ {
					tp.Bounds = append(tp.Bounds, normalizeType(e.text(part.NamedChild(k))))
				}
			}
		}
		if tp.Name != "" {
			out = append(out, tp)
		}
	}
	return out
}

type modifiers struct {
	annotations []string
	static      bool
	abstract    bool
	dflt        bool
}

func (e *extractor) modifiers(n *sitter.Node) modifiers {
	var mods modifiers
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c.Kind() != "modifiers" {
			continue
		}
		for j := uint(0); j < c.ChildCount(); j++ {
			m := c.Child(j)
			switch m.Kind() {
			case "marker_annotation", "annotation":
				mods.annotations = append(mods.annotations, kb.SimpleName(e.text(m.ChildByFieldName("name"))))
			case "static":
				mods.static = true
			case "abstract":
				mods.abstract = true
			case "default":
				mods.dflt = true
			}
		}
	}
	return mods
}

func (e *extractor) methodDecl(n *sitter.Node) {
	if len(e.types) == 0 {
		return
	}
	owner := &e.file.Types[e.types[len(e.types)-1]]
	nameNode := n.ChildByFieldName("name")
	mods := e.modifiers(n)
	m := Method{
		Owner:       owner.ID,
		Name:        e.text(nameNode),
		Returns:     normalizeType(e.text(n.ChildByFieldName("type"))),
		Annotations: mods.annotations,
		TypeParams:  e.typeParams(n.ChildByFieldName("type_parameters")),
		Static:      mods.static,
		Start:       start(n),
		End:         end(n),
	}
	if nameNode != nil {
		m.NameAt = start(nameNode)
	} else {
		m.NameAt = m.Start
	}
	switch n.Kind() {
	case "constructor_declaration":
		m.Constructor = true
		m.Params = e.params(n.ChildByFieldName("parameters"))
	case "compact_constructor_declaration":
		m.Constructor = true
		m.Params = owner.Fields
	default:
		m.Params = e.params(n.ChildByFieldName("parameters"))
	}
	for _, a := range m.Annotations {
		if a == "Override" {
			m.Override = true
		}
	}
	body := n.ChildByFieldName("body")
	m.Abstract = body == nil && !m.Constructor

	idx := len(e.file.Methods)
	e.file.Methods = append(e.file.Methods, m)

	saved := e.method
	e.method = idx
	e.scoped(func() {
		for _, p := range m.Params {
			e.declare(p.Name, p.Type)
		}
		e.visit(body)
	})
	e.method = saved
}

func (e *extractor) params(n *sitter.Node) []Var {
	if n == nil {
		return nil
	}
	var out []Var
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "formal_parameter":
			out = append(out, Var{
				Name: e.text(c.ChildByFieldName("name")),
				Type: normalizeType(e.text(c.ChildByFieldName("type"))),
			})
		case "spread_parameter":
			var v Var
			for j := uint(0); j < c.NamedChildCount(); j++ {
				part := c.NamedChild(j)
				switch part.Kind() {
				case "modifiers":
				case "variable_declarator":
					v.Name = e.text(part.ChildByFieldName("name"))
				default:
					if v.Type == "" {
						v.Type = normalizeType(e.text(part)) + "..."
					}
				}
			}
			out = append(out, v)
		}
	}
	return out
}

func (e *extractor) fieldDecl(n *sitter.Node) {
	if len(e.types) == 0 {
		return
	}
	typ := normalizeType(e.text(n.ChildByFieldName("type")))
	static := e.modifiers(n).static
	owner := e.types[len(e.types)-1]
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "variable_declarator" {
			continue
		}
		name := e.text(c.ChildByFieldName("name"))
		e.file.Types[owner].Fields = append(e.file.Types[owner].Fields, Var{Name: name, Type: typ, Static: static})
		if value := c.ChildByFieldName("value"); value != nil {
			e.initializer(func() { e.visit(value) })
		}
	}
}

// initializer runs fn with the type's synthetic initializer method as the
// enclosing method.
func (e *extractor) initializer(fn func()) {
	if len(e.types) == 0 {
		return
	}
	t := e.file.Types[e.types[len(e.types)-1]]
	idx, ok := e.inits[t.ID]
	if !ok {
		idx = len(e.file.Methods)
		e.file.Methods = append(e.file.Methods, Method{
			Owner:       t.ID,
			Name:        initializerName,
			Static:      true,
			Initializer: true,
			NameAt:      t.Start,
			Start:       t.Start,
			End:         t.End,
		})
		e.inits[t.ID] = idx
	}
	saved := e.method
	e.method = idx
	e.scoped(fn)
	e.method = saved
}

func (e *extractor) enumConstant(n *sitter.Node) {
	if len(e.types) == 0 {
		return
	}
	enum := e.file.Types[e.types[len(e.types)-1]]
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	e.initializer(func() {
		args := n.ChildByFieldName("arguments")
		idx := e.addCall(n, Call{
			Kind:     CallNew,
			Name:     enum.Name,
			Args:     countArgs(args),
			Receiver: Receiver{Kind: ReceiverType, Type: enum.Name},
			At:       start(name),
		})
		e.visit(args)
		if body := n.ChildByFieldName("body"); body != nil {
			e.file.Calls[idx].Anonymous = e.anonymous(n, enum.Name, body)
		}
	})
}

func (e *extractor) anonymous(at *sitter.Node, super string, body *sitter.Node) string {
	outer := e.currentType()
	t := Type{
		ID:         e.nextNested(outer),
		Kind:       "anonymous",
		Outer:      outer,
		Supertypes: []string{super},
		Start:      start(at),
		End:        end(body),
		In:         e.method,
	}
	return e.enterType(t, body)
}

func (e *extractor) scoped(fn func()) {
	e.scopes = append(e.scopes, make(map[string]string))
	fn()
	e.scopes = e.scopes[:len(e.scopes)-1]
}

func (e *extractor) declare(name, typ string) {
	if name == "" || len(e.scopes) == 0 {
		return
	}
	e.scopes[len(e.scopes)-1][name] = typ
}

// lookupVar returns the declared type of a local variable, parameter or
// field of an enclosing type.
func (e *extractor) lookupVar(name string) (string, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if t, ok := e.scopes[i][name]; ok {
			return t, true
		}
	}
	for i := len(e.types) - 1; i >= 0; i-- {
		for _, f := range e.file.Types[e.types[i]].Fields {
			if f.Name == name {
				return f.Type, true
			}
		}
	}
	return "", false
}

func (e *extractor) fieldType(name string) (string, bool) {
	if len(e.types) == 0 {
		return "", false
	}
	for _, f := range e.file.Types[e.types[len(e.types)-1]].Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// declaredType returns the written type, or the type inferred from value
// for "var" declarations.
func (e *extractor) declaredType(typ, value *sitter.Node) string {
	t := normalizeType(e.text(typ))
	if t != "var" {
		return t
	}
	if value == nil {
		return ""
	}
	switch value.Kind() {
	case "object_creation_expression", "cast_expression":
		return normalizeType(e.text(value.ChildByFieldName("type")))
	}
	return ""
}

func (e *extractor) localVars(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "variable_declarator" {
			continue
		}
		value := c.ChildByFieldName("value")
		e.visit(value)
		e.declare(e.text(c.ChildByFieldName("name")), e.declaredType(typ, value))
	}
}

func (e *extractor) catchParam(n *sitter.Node) {
	var typ, name string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "catch_type":
			if c.NamedChildCount() > 0 {
				typ = normalizeType(e.text(c.NamedChild(0)))
			}
		case "identifier":
			name = e.text(c)
		}
	}
	if n := n.ChildByFieldName("name"); n != nil {
		name = e.text(n)
	}
	e.declare(name, typ)
}

func (e *extractor) addCall(n *sitter.Node, c Call) int {
	c.Owner = e.currentType()
	c.In = e.method
	idx := len(e.file.Calls)
	e.file.Calls = append(e.file.Calls, c)
	e.calls[spanOf(n)] = idx
	return idx
}

func countArgs(args *sitter.Node) int {
	if args == nil {
		return 0
	}
	count := 0
	for i := uint(0); i < args.NamedChildCount(); i++ {
		if !isComment(args.NamedChild(i)) {
			count++
		}
	}
	return count
}

func isComment(n *sitter.Node) bool {
	return n.Kind() == "line_comment" || n.Kind() == "block_comment"
}

func (e *extractor) invocation(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	obj := n.ChildByFieldName("object")
	args := n.ChildByFieldName("arguments")

	recv := e.receiver(obj)
	for i := uint(0); i < n.ChildCount(); i++ {
		// Outer.super.m()
		if c := n.Child(i); c.Kind() == "super" && obj != nil && !sameNode(c, obj) {
			recv = Receiver{Kind: ReceiverSuper, Qualifier: e.text(obj)}
		}
	}
	e.addCall(n, Call{
		Kind:     CallInvoke,
		Name:     e.text(name),
		Args:     countArgs(args),
		Receiver: recv,
		At:       start(name),
	})
	e.visit(obj)
	e.visit(args)
}

func (e *extractor) creation(n *sitter.Node) {
	typNode := n.ChildByFieldName("type")
	typ := normalizeType(e.text(typNode))
	args := n.ChildByFieldName("arguments")
	idx := e.addCall(n, Call{
		Kind:     CallNew,
		Name:     kb.SimpleName(typ),
		Args:     countArgs(args),
		Receiver: Receiver{Kind: ReceiverType, Type: typ},
		At:       start(typNode),
	})
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "class_body":
			e.file.Calls[idx].Anonymous = e.anonymous(n, typ, c)
		case "argument_list":
			e.visit(c)
		default:
			if !sameNode(c, typNode) {
				e.visit(c)
			}
		}
	}
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && spanOf(a) == spanOf(b) && a.Kind() == b.Kind()
}

func (e *extractor) ctorInvocation(n *sitter.Node) {
	kind := CallThisCtor
	if c := n.ChildByFieldName("constructor"); c != nil && c.Kind() == "super" {
		kind = CallSuperCtor
	}
	args := n.ChildByFieldName("arguments")
	e.addCall(n, Call{Kind: kind, Args: countArgs(args), At: start(n)})
	e.visit(n.ChildByFieldName("object"))
	e.visit(args)
}

func (e *extractor) methodRef(n *sitter.Node) {
	var (
		recvNode *sitter.Node
		name     string
		nameAt   = start(n)
		after    bool
	)
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		switch {
		case c.Kind() == "::":
			after = true
		case !after && recvNode == nil && (c.IsNamed() || c.Kind() == "super" || c.Kind() == "this"):
			recvNode = c
		case after && (c.Kind() == "identifier" || c.Kind() == "new"):
			name = e.text(c)
			nameAt = start(c)
		}
	}
	e.functional(n, "methodRef", 0)

	recv := e.refReceiver(recvNode)
	if name == "new" {
		typ := normalizeType(e.text(recvNode))
		e.addCall(n, Call{Kind: CallNew, Name: kb.SimpleName(typ), Args: -1, Receiver: Receiver{Kind: ReceiverType, Type: typ}, At: nameAt})
	} else if name != "" {
		e.addCall(n, Call{Kind: CallMethodRef, Name: name, Args: -1, Receiver: recv, At: nameAt})
	}
	if recvNode != nil && recv.Kind == ReceiverUnknown {
		e.visit(recvNode)
	}
}

func (e *extractor) refReceiver(n *sitter.Node) Receiver {
	if n == nil {
		return Receiver{Kind: ReceiverUnknown}
	}
	switch n.Kind() {
	case "type_identifier", "scoped_type_identifier", "generic_type", "array_type":
		return Receiver{Kind: ReceiverType, Type: normalizeType(e.text(n))}
	}
	return e.receiver(n)
}

func (e *extractor) lambda(n *sitter.Node) {
	params := n.ChildByFieldName("parameters")
	count := 0
	var typed []Var
	if params != nil {
		switch params.Kind() {
		case "identifier":
			count = 1
		case "formal_parameters":
			typed = e.params(params)
			count = len(typed)
		default:
			for i := uint(0); i < params.NamedChildCount(); i++ {
				if params.NamedChild(i).Kind() == "identifier" {
					count++
				}
			}
		}
	}
	e.functional(n, "lambda", count)
	e.scoped(func() {
		for _, p := range typed {
			e.declare(p.Name, p.Type)
		}
		e.visit(n.ChildByFieldName("body"))
	})
}

func (e *extractor) functional(n *sitter.Node, kind string, params int) {
	f := Functional{
		Kind:   kind,
		Params: params,
		Owner:  e.currentType(),
		In:     e.method,
		At:     start(n),
	}
	e.targetHint(n, &f)
	e.file.Functionals = append(e.file.Functionals, f)
}

// targetHint records the syntactic context that determines the target type
// of the functional expression n.
func (e *extractor) targetHint(n *sitter.Node, f *Functional) {
	p := n.Parent()
	for p != nil && p.Kind() == "parenthesized_expression" {
		n, p = p, p.Parent()
	}
	if p == nil {
		return
	}
	switch p.Kind() {
	case "argument_list":
		call, ok := e.calls[spanOf(p.Parent())]
		if !ok {
			return
		}
		f.Hint, f.Call, f.Arg = HintArgument, call, argIndex(p, n)
	case "variable_declarator":
		if decl := p.Parent(); decl != nil {
			if t := normalizeType(e.text(decl.ChildByFieldName("type"))); t != "" && t != "var" {
				f.Hint, f.Type = HintDeclared, t
			}
		}
	case "assignment_expression":
		left := p.ChildByFieldName("left")
		var t string
		switch {
		case left == nil:
		case left.Kind() == "identifier":
			t, _ = e.lookupVar(e.text(left))
		case left.Kind() == "field_access":
			t, _ = e.fieldType(e.text(left.ChildByFieldName("field")))
		}
		if t != "" {
			f.Hint, f.Type = HintAssign, t
		}
	case "return_statement":
		f.Hint = HintReturn
	case "cast_expression":
		f.Hint, f.Type = HintCast, normalizeType(e.text(p.ChildByFieldName("type")))
	}
}

func argIndex(list, arg *sitter.Node) int {
	idx := 0
	for i := uint(0); i < list.NamedChildCount(); i++ {
		c := list.NamedChild(i)
		if isComment(c) {
			continue
		}
		if sameNode(c, arg) {
			return idx
		}
		idx++
	}
	return -1
}

// receiver classifies the object expression of a method invocation.
func (e *extractor) receiver(obj *sitter.Node) Receiver {
	if obj == nil {
		return Receiver{Kind: ReceiverImplicit}
	}
	switch obj.Kind() {
	case "this":
		return Receiver{Kind: ReceiverThis}
	case "super":
		return Receiver{Kind: ReceiverSuper}
	case "identifier":
		name := e.text(obj)
		if t, ok := e.lookupVar(name); ok {
			if t == "" {
				return Receiver{Kind: ReceiverUnknown}
			}
			return Receiver{Kind: ReceiverVar, Type: t}
		}
		if isTypeName(name) {
			return Receiver{Kind: ReceiverType, Type: name}
		}
	case "field_access":
		object := obj.ChildByFieldName("object")
		field := obj.ChildByFieldName("field")
		if field != nil && field.Kind() == "this" {
			return Receiver{Kind: ReceiverThis, Qualifier: e.text(object)}
		}
		if object != nil && object.Kind() == "this" {
			if t, ok := e.fieldType(e.text(field)); ok && t != "" {
				return Receiver{Kind: ReceiverVar, Type: t}
			}
			return Receiver{Kind: ReceiverUnknown}
		}
		if e.isQualifiedName(obj) && isTypeName(e.text(field)) {
			return Receiver{Kind: ReceiverType, Type: normalizeType(e.text(obj))}
		}
	case "object_creation_expression", "cast_expression":
		if t := normalizeType(e.text(obj.ChildByFieldName("type"))); t != "" {
			return Receiver{Kind: ReceiverVar, Type: t}
		}
	case "parenthesized_expression":
		if obj.NamedChildCount() > 0 {
			return e.receiver(obj.NamedChild(0))
		}
	}
	return Receiver{Kind: ReceiverUnknown}
}

// isQualifiedName reports whether n is a dotted chain of identifiers that
// does not start with a variable.
func (e *extractor) isQualifiedName(n *sitter.Node) bool {
	switch n.Kind() {
	case "identifier":
		_, isVar := e.lookupVar(e.text(n))
		return !isVar
	case "field_access":
		object := n.ChildByFieldName("object")
		field := n.ChildByFieldName("field")
		return object != nil && field != nil && field.Kind() == "identifier" && e.isQualifiedName(object)
	}
	return false
}

// isTypeName applies the Java naming convention: types are capitalised,
// constants are upper case with underscores.
func isTypeName(name string) bool {
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return false
	}
	return strings.IndexFunc(name, unicode.IsLower) >= 0 || !strings.Contains(name, "_")
}

// normalizeType collapses the whitespace of a type as written, keeping only
// the spaces that separate words.
func normalizeType(s string) string {
	fields := strings.Fields(s)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			prev := fields[i-1]
			if !strings.ContainsAny(prev[len(prev)-1:], "<,[") && !strings.ContainsAny(f[:1], "<>,[].") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(f)
	}
	return b.String()
}

func isVarargs(t string) bool {
	return strings.HasSuffix(t, "...")
}
