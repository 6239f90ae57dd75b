package javasrc

import (
	"log/slog"
	"strings"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

var primitives = map[string]struct{}{
	"void": {}, "boolean": {}, "byte": {}, "char": {}, "short": {},
	"int": {}, "long": {}, "float": {}, "double": {}, "var": {},
}

// javaLang lists the implicitly imported types that show up as receivers,
// supertypes or functional targets.
var javaLang = map[string]struct{}{
	"Object": {}, "String": {}, "Runnable": {}, "Thread": {}, "Iterable": {},
	"Comparable": {}, "AutoCloseable": {}, "CharSequence": {}, "StringBuilder": {},
	"Integer": {}, "Long": {}, "Boolean": {}, "Double": {}, "Float": {},
	"Short": {}, "Byte": {}, "Character": {}, "Number": {}, "Math": {},
	"System": {}, "Class": {}, "Enum": {}, "Record": {}, "Void": {},
	"Throwable": {}, "Exception": {}, "RuntimeException": {}, "Error": {},
	"IllegalArgumentException": {}, "IllegalStateException": {},
	"UnsupportedOperationException": {}, "InterruptedException": {},
	"Cloneable": {}, "ThreadLocal": {},
}

type linkedType struct {
	id     string
	file   *File
	decl   *Type
	outer  string
	supers []string
}

func (t *linkedType) isInterface() bool {
	return t.decl.Kind == "interface" || t.decl.Kind == "annotation"
}

type linkedMethod struct {
	owner  string
	name   string
	params []string
	ctor   bool
	ref    string

	// decl and lx are nil for methods of external types.
	decl *Method
	lx   *lexical
}

func (m *linkedMethod) arityMatches(args int) bool {
	n := len(m.params)
	if args < 0 || args == n {
		return true
	}
	return n > 0 && isVarargs(m.params[n-1]) && args >= n-1
}

// lexical is the scope a type name is written in.
type lexical struct {
	file   *File
	typ    string
	method *Method
}

type callKey struct {
	file *File
	call int
}

type linker struct {
	table   *functional.Table
	facts   *kb.Facts
	types   map[string]*linkedType
	order   []*linkedType
	dropped map[*File]map[string]bool

	methods  map[string][]*linkedMethod
	byName   map[string][]*linkedMethod
	refs     map[string]*linkedMethod
	external map[string]bool
	targets  map[callKey][]*linkedMethod

	unresolved int
}

// Link resolves the names of the extracted files against each other and
// returns the resulting knowledge base facts. Files are processed in order;
// a type declared again in a later file is ignored.
func Link(files []*File, table *functional.Table) *kb.Facts {
	l := &linker{
		table:    table,
		facts:    &kb.Facts{},
		types:    make(map[string]*linkedType),
		dropped:  make(map[*File]map[string]bool),
		methods:  make(map[string][]*linkedMethod),
		byName:   make(map[string][]*linkedMethod),
		refs:     make(map[string]*linkedMethod),
		external: make(map[string]bool),
		targets:  make(map[callKey][]*linkedMethod),
	}
	l.registerTypes(files)
	l.linkHierarchy()
	l.registerMethods(files)
	l.registerExternalOverrides()
	for _, f := range files {
		l.linkCalls(f)
	}
	for _, f := range files {
		l.linkFunctionals(f)
		for _, d := range f.Docs {
			l.facts.DocComments = append(l.facts.DocComments, kb.DocFact{File: f.Path, Start: d.Start, End: d.End})
		}
	}
	slog.Debug("linked java sources",
		"files", len(files),
		"types", len(l.order),
		"methods", len(l.refs),
		"calls", len(l.facts.Calls),
		"functionals", len(l.facts.Functionals),
		"unresolved_calls", l.unresolved)
	return l.facts
}

func qualify(pkg, id string) string {
	if pkg == "" {
		return id
	}
	return pkg + "." + id
}

func (l *linker) known(name string) bool {
	_, ok := l.types[name]
	return ok
}

func (l *linker) registerTypes(files []*File) {
	for _, f := range files {
		for i := range f.Types {
			decl := &f.Types[i]
			id := qualify(f.Package, decl.ID)
			if prev, dup := l.types[id]; dup {
				slog.Warn("type declared twice, keeping first", "type", id, "file", f.Path, "first", prev.file.Path)
				if l.dropped[f] == nil {
					l.dropped[f] = make(map[string]bool)
				}
				l.dropped[f][decl.ID] = true
				continue
			}
			t := &linkedType{id: id, file: f, decl: decl}
			if decl.Outer != "" {
				t.outer = qualify(f.Package, decl.Outer)
			}
			l.types[id] = t
			l.order = append(l.order, t)
		}
	}
}

func (l *linker) linkHierarchy() {
	for _, t := range l.order {
		lx := lexical{file: t.file, typ: t.outer}
		for _, raw := range t.decl.Supertypes {
			ref, _ := l.resolveType(raw, lx)
			if ref.IsTypeParam() || ref.Name == "" || ref.Name == t.id {
				continue
			}
			if _, prim := primitives[ref.Name]; prim {
				continue
			}
			t.supers = append(t.supers, ref.Name)
		}
	}
	for _, t := range l.order {
		fact := kb.TypeFact{
			Name:       t.id,
			Kind:       t.decl.Kind,
			Supertypes: t.supers,
			TypeParams: t.decl.TypeParams,
			DefinedAt:  &kb.Location{File: t.file.Path, Position: t.decl.Start},
		}
		if t.decl.Kind != "anonymous" && t.decl.Kind != "local" {
			fact.QualifiedName = t.id
		}
		l.facts.Types = append(l.facts.Types, fact)
	}
}

func (l *linker) registerMethods(files []*File) {
	for _, f := range files {
		for i := range f.Methods {
			decl := &f.Methods[i]
			if l.dropped[f][decl.Owner] {
				continue
			}
			owner := qualify(f.Package, decl.Owner)
			m := &linkedMethod{
				owner:  owner,
				name:   decl.Name,
				params: make([]string, len(decl.Params)),
				ctor:   decl.Constructor,
				decl:   decl,
				lx:     &lexical{file: f, typ: owner, method: decl},
			}
			for j, p := range decl.Params {
				m.params[j] = p.Type
			}
			m.ref = owner + "." + m.name + "(" + strings.Join(m.params, ",") + ")"
			if _, dup := l.refs[m.ref]; dup {
				slog.Debug("method declared twice", "method", m.ref, "file", f.Path)
				continue
			}
			l.refs[m.ref] = m
			l.methods[owner] = append(l.methods[owner], m)
			if !m.ctor && !decl.Initializer {
				l.byName[m.name] = append(l.byName[m.name], m)
			}
			l.facts.Methods = append(l.facts.Methods, kb.MethodFact{
				Owner:       owner,
				Name:        decl.Name,
				Params:      m.params,
				Returns:     decl.Returns,
				Annotations: decl.Annotations,
				Static:      decl.Static,
				Constructor: decl.Constructor,
				File:        f.Path,
				Line:        decl.NameAt.Line,
				Column:      decl.NameAt.Column,
				EndLine:     decl.End.Line,
				EndColumn:   decl.End.Column,
			})
		}
	}
}

// registerExternal declares a method of a type outside the indexed sources.
func (l *linker) registerExternal(owner, name string, params []string) *linkedMethod {
	ref := owner + "." + name + "(" + strings.Join(params, ",") + ")"
	if m, ok := l.refs[ref]; ok {
		return m
	}
	if !l.external[owner] {
		l.external[owner] = true
		l.facts.Types = append(l.facts.Types, kb.TypeFact{Name: owner, Kind: "interface", External: true})
	}
	m := &linkedMethod{owner: owner, name: name, params: params, ref: ref}
	l.refs[ref] = m
	l.methods[owner] = append(l.methods[owner], m)
	l.facts.Methods = append(l.facts.Methods, kb.MethodFact{Owner: owner, Name: name, Params: params})
	return m
}

// registerExternalOverrides declares the external super-methods that source
// methods override, so that calls through the external type reach them.
func (l *linker) registerExternalOverrides() {
	for _, t := range l.order {
		anonymous := t.decl.Kind == "anonymous"
		for _, m := range l.methods[t.id] {
			if m.decl == nil || m.ctor || m.decl.Static || m.decl.Initializer {
				continue
			}
			if !m.decl.Override && !anonymous {
				continue
			}
			if l.hasSuperMethod(t.id, m) {
				continue
			}
			exts := l.externalAncestors(t.id)
			var owners []string
			for _, ext := range exts {
				if l.table.IsAbstractMethod(ext, m.name) {
					owners = []string{ext}
					break
				}
			}
			if owners == nil && len(exts) == 1 {
				owners = exts
			}
			for _, owner := range owners {
				l.registerExternal(owner, m.name, m.params)
			}
		}
	}
}

func (l *linker) supersOf(name string) []string {
	if t, ok := l.types[name]; ok {
		return t.supers
	}
	return nil
}

// ancestors lists the proper supertypes of name breadth first.
func (l *linker) ancestors(name string) []string {
	var (
		out   []string
		queue = []string{name}
		seen  = map[string]bool{name: true}
	)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, sup := range l.supersOf(cur) {
			if seen[sup] {
				continue
			}
			seen[sup] = true
			out = append(out, sup)
			queue = append(queue, sup)
		}
	}
	return out
}

func (l *linker) externalAncestors(name string) []string {
	var out []string
	for _, a := range l.ancestors(name) {
		if !l.known(a) {
			out = append(out, a)
		}
	}
	return out
}

func (l *linker) hasSuperMethod(owner string, m *linkedMethod) bool {
	for _, a := range l.ancestors(owner) {
		for _, cand := range l.methods[a] {
			if !cand.ctor && cand.name == m.name && len(cand.params) == len(m.params) {
				return true
			}
		}
	}
	return false
}

// findMethods returns the methods matching name and arity declared by the
// nearest type in the hierarchy of owner. Constructors are not inherited.
func (l *linker) findMethods(owner, name string, args int, ctor bool) []*linkedMethod {
	queue := []string{owner}
	seen := map[string]bool{owner: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		var found []*linkedMethod
		for _, m := range l.methods[cur] {
			if m.ctor != ctor || !m.arityMatches(args) {
				continue
			}
			if ctor || (m.name == name && (m.decl == nil || !m.decl.Initializer)) {
				found = append(found, m)
			}
		}
		if len(found) > 0 {
			return found
		}
		if ctor {
			return nil
		}
		if !l.known(cur) && l.table.IsAbstractMethod(cur, name) {
			return []*linkedMethod{l.registerExternal(cur, name, placeholderParams(args))}
		}
		for _, sup := range l.supersOf(cur) {
			if !seen[sup] {
				seen[sup] = true
				queue = append(queue, sup)
			}
		}
	}
	return nil
}

func placeholderParams(n int) []string {
	out := make([]string, max(n, 0))
	for i := range out {
		out[i] = "Object"
	}
	return out
}

func (l *linker) lexicalOf(f *File, owner string, in int) lexical {
	lx := lexical{file: f}
	if owner != "" {
		lx.typ = qualify(f.Package, owner)
	}
	if in >= 0 && in < len(f.Methods) {
		lx.method = &f.Methods[in]
	}
	return lx
}

func (l *linker) linkCalls(f *File) {
	for i := range f.Calls {
		c := &f.Calls[i]
		if c.In < 0 && !c.Doc {
			continue
		}
		if l.dropped[f][c.Owner] {
			continue
		}
		lx := l.lexicalOf(f, c.Owner, c.In)
		targets, recv := l.resolveCall(c, lx)
		if len(targets) == 0 {
			l.unresolved++
			continue
		}
		l.targets[callKey{file: f, call: i}] = targets
		for _, m := range targets {
			l.facts.Calls = append(l.facts.Calls, kb.CallFact{
				Target:   m.ref,
				File:     f.Path,
				Line:     c.At.Line,
				Column:   c.At.Column,
				Receiver: recv,
				Doc:      c.Doc,
			})
		}
	}
}

// resolveCall returns the methods a call may statically bind to and the
// static receiver type, nil when unknown.
func (l *linker) resolveCall(c *Call, lx lexical) ([]*linkedMethod, *kb.TypeRef) {
	switch c.Kind {
	case CallNew:
		owner, _ := l.resolveClass(c.Receiver.Type, lx)
		return l.findMethods(owner, "", c.Args, true), nil
	case CallThisCtor:
		return l.findMethods(lx.typ, "", c.Args, true), nil
	case CallSuperCtor:
		for _, sup := range l.supersOf(lx.typ) {
			if t, ok := l.types[sup]; ok && !t.isInterface() {
				return l.findMethods(sup, "", c.Args, true), nil
			}
		}
		return nil, nil
	}

	switch c.Receiver.Kind {
	case ReceiverImplicit:
		return l.resolveImplicit(c, lx)
	case ReceiverThis:
		owner := lx.typ
		if c.Receiver.Qualifier != "" {
			owner, _ = l.resolveClass(c.Receiver.Qualifier, lx)
		}
		return l.bind(owner, c)
	case ReceiverSuper:
		return l.resolveSuper(c, lx)
	case ReceiverVar:
		ref, _ := l.resolveType(c.Receiver.Type, lx)
		for _, owner := range ref.Erasure() {
			if ms := l.findMethods(owner, c.Name, c.Args, false); len(ms) > 0 {
				return ms, &ref
			}
		}
		return nil, nil
	case ReceiverType:
		owner, _ := l.resolveClass(c.Receiver.Type, lx)
		return l.bind(owner, c)
	}

	// Unknown receiver: link only when the name and arity are unambiguous.
	var only *linkedMethod
	for _, m := range l.byName[c.Name] {
		if !m.arityMatches(c.Args) {
			continue
		}
		if only != nil {
			return nil, nil
		}
		only = m
	}
	if only == nil {
		return nil, nil
	}
	return []*linkedMethod{only}, nil
}

func (l *linker) bind(owner string, c *Call) ([]*linkedMethod, *kb.TypeRef) {
	if owner == "" {
		return nil, nil
	}
	ms := l.findMethods(owner, c.Name, c.Args, false)
	if len(ms) == 0 {
		return nil, nil
	}
	return ms, &kb.TypeRef{Name: owner}
}

// resolveImplicit looks the method up through the enclosing classes and then
// the static imports.
func (l *linker) resolveImplicit(c *Call, lx lexical) ([]*linkedMethod, *kb.TypeRef) {
	for cur := lx.typ; cur != ""; cur = l.outerOf(cur) {
		if ms, recv := l.bind(cur, c); len(ms) > 0 {
			return ms, recv
		}
	}
	for _, imp := range lx.file.Imports {
		if !imp.Static {
			continue
		}
		owner := imp.Name
		if !imp.OnDemand {
			dot := strings.LastIndexByte(imp.Name, '.')
			if dot < 0 || imp.Name[dot+1:] != c.Name {
				continue
			}
			owner = imp.Name[:dot]
		}
		if ms, recv := l.bind(owner, c); len(ms) > 0 {
			return ms, recv
		}
	}
	return nil, nil
}

func (l *linker) resolveSuper(c *Call, lx lexical) ([]*linkedMethod, *kb.TypeRef) {
	cur := lx.typ
	if q := c.Receiver.Qualifier; q != "" {
		owner, _ := l.resolveClass(q, lx)
		// Iface.super.m() names a direct superinterface; Outer.super.m()
		// names an enclosing class.
		for _, sup := range l.supersOf(lx.typ) {
			if sup == owner {
				return l.bind(owner, c)
			}
		}
		cur = owner
	}
	for _, sup := range l.supersOf(cur) {
		if ms, recv := l.bind(sup, c); len(ms) > 0 {
			return ms, recv
		}
	}
	return nil, nil
}

func (l *linker) outerOf(name string) string {
	if t, ok := l.types[name]; ok {
		return t.outer
	}
	return ""
}

func (l *linker) linkFunctionals(f *File) {
	for i := range f.Functionals {
		fn := &f.Functionals[i]
		if l.dropped[f][fn.Owner] {
			continue
		}
		iface := l.functionalTarget(f, fn)
		if iface == "" {
			continue
		}
		if !l.known(iface) {
			if name, ok := l.table.Lookup(iface); ok && !l.declares(iface, name) {
				params := []string{}
				if fn.Kind == "lambda" {
					params = placeholderParams(fn.Params)
				}
				l.registerExternal(iface, name, params)
			}
		}
		l.facts.Functionals = append(l.facts.Functionals, kb.FunctionalFact{
			Interface: iface,
			Kind:      fn.Kind,
			File:      f.Path,
			Line:      fn.At.Line,
			Column:    fn.At.Column,
		})
	}
}

func (l *linker) declares(owner, name string) bool {
	for _, m := range l.methods[owner] {
		if m.name == name {
			return true
		}
	}
	return false
}

// functionalTarget infers the interface a lambda or method reference
// implements, or "" when the context does not determine one.
func (l *linker) functionalTarget(f *File, fn *Functional) string {
	lx := l.lexicalOf(f, fn.Owner, fn.In)
	var candidates []kb.TypeRef
	switch fn.Hint {
	case HintArgument:
		for _, m := range l.targets[callKey{file: f, call: fn.Call}] {
			if m.lx == nil || fn.Arg < 0 || len(m.params) == 0 {
				continue
			}
			idx := fn.Arg
			if idx >= len(m.params) {
				if !isVarargs(m.params[len(m.params)-1]) {
					continue
				}
				idx = len(m.params) - 1
			}
			ref, _ := l.resolveType(m.params[idx], *m.lx)
			candidates = append(candidates, ref)
		}
	case HintDeclared, HintAssign, HintCast:
		ref, _ := l.resolveType(fn.Type, lx)
		candidates = append(candidates, ref)
	case HintReturn:
		if lx.method != nil && !lx.method.Initializer {
			ref, _ := l.resolveType(lx.method.Returns, lx)
			candidates = append(candidates, ref)
		}
	}
	for _, ref := range candidates {
		if l.functionalType(ref) {
			return ref.Name
		}
	}
	return ""
}

func (l *linker) functionalType(ref kb.TypeRef) bool {
	if ref.Name == "" || ref.IsTypeParam() {
		return false
	}
	if _, prim := primitives[ref.Name]; prim {
		return false
	}
	if t, ok := l.types[ref.Name]; ok {
		return t.isInterface()
	}
	return ref.Name != kb.ObjectType
}

// cleanType strips annotations, type arguments and array dimensions.
func cleanType(raw string) string {
	fields := strings.Fields(raw)
	for len(fields) > 1 && strings.HasPrefix(fields[0], "@") {
		fields = fields[1:]
	}
	name := kb.EraseGenerics(strings.Join(fields, ""))
	for {
		switch {
		case strings.HasSuffix(name, "[]"):
			name = strings.TrimSuffix(name, "[]")
		case strings.HasSuffix(name, "..."):
			name = strings.TrimSuffix(name, "...")
		default:
			return name
		}
	}
}

// resolveType resolves a type as written at lx. Type variables carry their
// resolved bounds. The flag reports whether the type is declared in the
// indexed sources.
func (l *linker) resolveType(raw string, lx lexical) (kb.TypeRef, bool) {
	name := cleanType(raw)
	if name == "" {
		return kb.TypeRef{}, false
	}
	if _, prim := primitives[name]; prim {
		return kb.TypeRef{Name: name}, false
	}
	if tp, ok := l.typeParam(name, lx); ok {
		ref := kb.TypeRef{Name: name, TypeParam: true}
		for _, b := range tp.Bounds {
			q, _ := l.resolveClass(cleanType(b), lx)
			ref.Bounds = append(ref.Bounds, q)
		}
		return ref, true
	}
	q, ok := l.resolveClass(name, lx)
	return kb.TypeRef{Name: q}, ok
}

func (l *linker) typeParam(name string, lx lexical) (kb.TypeParam, bool) {
	if lx.method != nil {
		for _, tp := range lx.method.TypeParams {
			if tp.Name == name {
				return tp, true
			}
		}
	}
	for cur := lx.typ; cur != ""; cur = l.outerOf(cur) {
		t, ok := l.types[cur]
		if !ok {
			break
		}
		for _, tp := range t.decl.TypeParams {
			if tp.Name == name {
				return tp, true
			}
		}
	}
	return kb.TypeParam{}, false
}

func (l *linker) resolveClass(name string, lx lexical) (string, bool) {
	name = cleanType(name)
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return l.resolveSimple(name, lx)
	}
	if l.known(name) {
		return name, true
	}
	if head, ok := l.resolveSimple(name[:dot], lx); ok {
		if q := head + name[dot:]; l.known(q) {
			return q, true
		}
	}
	return name, false
}

// resolveSimple follows the Java lookup order for a simple type name:
// enclosing and inherited member types, single-type imports, the current
// package, on-demand imports and java.lang.
func (l *linker) resolveSimple(name string, lx lexical) (string, bool) {
	for cur := lx.typ; cur != ""; cur = l.outerOf(cur) {
		if t, ok := l.types[cur]; ok && t.decl.Name == name && t.decl.Kind != "anonymous" {
			return cur, true
		}
		if q, ok := l.memberType(cur, name); ok {
			return q, true
		}
	}
	if lx.file == nil {
		return name, false
	}
	for _, imp := range lx.file.Imports {
		if imp.Static || imp.OnDemand {
			continue
		}
		if imp.Name == name || strings.HasSuffix(imp.Name, "."+name) {
			return imp.Name, l.known(imp.Name)
		}
	}
	if q := qualify(lx.file.Package, name); l.known(q) {
		return q, true
	}
	for _, imp := range lx.file.Imports {
		if !imp.OnDemand || imp.Static {
			continue
		}
		q := imp.Name + "." + name
		if l.known(q) {
			return q, true
		}
		if _, ok := l.table.Lookup(q); ok {
			return q, false
		}
	}
	if _, ok := javaLang[name]; ok {
		return "java.lang." + name, false
	}
	if q, ok := l.table.QualifiedBySimpleName(name); ok {
		return q, false
	}
	return name, false
}

// memberType finds a member type declared by owner or one of its supertypes.
func (l *linker) memberType(owner, name string) (string, bool) {
	if q := owner + "." + name; l.known(q) {
		return q, true
	}
	for _, a := range l.ancestors(owner) {
		if q := a + "." + name; l.known(q) {
			return q, true
		}
	}
	return "", false
}
