package kb

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Lines reserved for a method placed without an explicit location.
const syntheticBlock = 100

// Snapshot is an immutable knowledge base. It implements both KnowledgeBase
// and an always-ready Index.
type Snapshot struct {
	types   map[string]*TypeInfo
	methods []*MethodSymbol
	byOwner map[string][]*MethodSymbol
	byRef   map[string]*MethodSymbol
	byFile  map[string][]*MethodSymbol

	calls       map[*MethodSymbol][]CallSite
	overrides   map[*MethodSymbol][]*MethodSymbol
	functionals map[string][]FunctionalRef
	docRanges   map[string][]Range
	docPoints   Set[Location]

	hier       *hierarchy
	production Scope
	roots      *xsync.Map[*MethodSymbol, []*MethodSymbol]
}

var (
	_ KnowledgeBase = (*Snapshot)(nil)
	_ Index         = (*Snapshot)(nil)
)

// Build validates facts and assembles a snapshot.
func Build(f *Facts) (*Snapshot, error) {
	testRoots := f.TestRoots
	if len(testRoots) == 0 {
		testRoots = DefaultTestRoots
	}
	production, err := NewPathScope(nil, testRoots)
	if err != nil {
		return nil, fmt.Errorf("test roots: %w", err)
	}

	b := &builder{
		s: &Snapshot{
			types:       make(map[string]*TypeInfo),
			byOwner:     make(map[string][]*MethodSymbol),
			byRef:       make(map[string]*MethodSymbol),
			byFile:      make(map[string][]*MethodSymbol),
			calls:       make(map[*MethodSymbol][]CallSite),
			overrides:   make(map[*MethodSymbol][]*MethodSymbol),
			functionals: make(map[string][]FunctionalRef),
			docRanges:   make(map[string][]Range),
			docPoints:   make(Set[Location]),
			hier:        newHierarchy(),
			production:  production,
			roots:       xsync.NewMap[*MethodSymbol, []*MethodSymbol](),
		},
		nextLine:  make(map[string]int),
		nextInner: make(map[*MethodSymbol]int),
	}
	steps := []func(*Facts) error{
		b.addTypes,
		b.addMethods,
		b.addHierarchy,
		b.addOverrides,
		b.placeAnonymous,
		b.addCalls,
		b.addFunctionals,
		b.addDocComments,
	}
	for _, step := range steps {
		if err := step(f); err != nil {
			return nil, err
		}
	}
	b.finish()
	return b.s, nil
}

// MustBuild is like Build but panics on invalid facts.
func MustBuild(f *Facts) *Snapshot {
	s, err := Build(f)
	if err != nil {
		panic(err)
	}
	return s
}

type builder struct {
	s *Snapshot

	// nextLine is the next free synthetic line per file.
	nextLine map[string]int
	// nextInner counts synthetic locations handed out inside a method.
	nextInner map[*MethodSymbol]int
	// anonIn maps anonymous types to the method containing their creation.
	anonIn []TypeFact
}

func (b *builder) declareType(name string) *TypeInfo {
	if t, ok := b.s.types[name]; ok {
		return t
	}
	t := &TypeInfo{Name: name, QualifiedName: name, Kind: KindClass}
	b.s.types[name] = t
	return t
}

func (b *builder) addTypes(f *Facts) error {
	for i, tf := range f.Types {
		if tf.Name == "" {
			return fmt.Errorf("type %d: missing name", i)
		}
		if t, ok := b.s.types[tf.Name]; ok && !t.External {
			return fmt.Errorf("type %s declared twice", tf.Name)
		}
		kind, err := ParseTypeKind(tf.Kind)
		if err != nil {
			return fmt.Errorf("type %s: %w", tf.Name, err)
		}
		t := &TypeInfo{
			Name:          tf.Name,
			QualifiedName: tf.QualifiedName,
			Kind:          kind,
			Supertypes:    tf.Supertypes,
			TypeParams:    tf.TypeParams,
			External:      tf.External,
		}
		if t.QualifiedName == "" && kind != KindAnonymous && kind != KindLocal {
			t.QualifiedName = tf.Name
		}
		if tf.DefinedAt != nil {
			t.DefinedAt = *tf.DefinedAt
		} else if tf.In != "" {
			b.anonIn = append(b.anonIn, tf)
		}
		b.s.types[tf.Name] = t
	}
	return nil
}

func (b *builder) addMethods(f *Facts) error {
	for _, mf := range f.Methods {
		if mf.Owner == "" || mf.Name == "" {
			return fmt.Errorf("method %q: missing owner or name", mf.Ref())
		}
		b.declareType(mf.Owner)
		m := &MethodSymbol{
			Owner:       mf.Owner,
			Name:        mf.Name,
			Params:      mf.Params,
			ReturnType:  mf.Returns,
			Annotations: mf.Annotations,
			Static:      mf.Static,
		}
		if m.Params == nil {
			m.Params = []string{}
		}
		if mf.Constructor || mf.Name == SimpleName(mf.Owner) {
			m.ReturnType = ""
		} else if m.ReturnType == "" {
			m.ReturnType = "void"
		}
		file := mf.File
		if file == "" {
			file = OwnerFile(mf.Owner)
		}
		m.Location = Location{File: file, Position: Position{Line: mf.Line, Column: mf.Column}}
		if mf.Line == 0 {
			line := b.nextLine[file] + 1
			b.nextLine[file] = line + syntheticBlock - 1
			m.Location.Line = line
			m.Range = Range{Start: Position{Line: line}, End: Position{Line: line + syntheticBlock - 2}}
		} else {
			end := Position{Line: mf.EndLine, Column: mf.EndColumn}
			if end.Line == 0 {
				end.Line = mf.Line
			}
			m.Range = Range{Start: Position{Line: mf.Line, Column: mf.Column}, End: end}
			if m.Range.End.Before(m.Range.Start) {
				return fmt.Errorf("method %s: range ends before it starts", m.Ref())
			}
			b.nextLine[file] = max(b.nextLine[file], end.Line)
		}

		ref := m.Ref()
		if _, dup := b.s.byRef[ref]; dup {
			return fmt.Errorf("method %s declared twice", ref)
		}
		b.s.byRef[ref] = m
		b.s.methods = append(b.s.methods, m)
		b.s.byOwner[m.Owner] = append(b.s.byOwner[m.Owner], m)
		b.s.byFile[file] = append(b.s.byFile[file], m)
	}
	return nil
}

func (b *builder) addHierarchy(*Facts) error {
	names := make([]string, 0, len(b.s.types))
	for name := range b.s.types {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t := b.s.types[name]
		if err := b.s.hier.addType(name); err != nil {
			return err
		}
		for _, sup := range t.Supertypes {
			sup = EraseGenerics(sup)
			if _, ok := b.s.types[sup]; !ok {
				b.s.types[sup] = &TypeInfo{Name: sup, QualifiedName: sup, Kind: KindInterface, External: true}
			}
			if err := b.s.hier.addSupertype(name, sup); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) addOverrides(f *Facts) error {
	for _, mf := range f.Methods {
		if len(mf.Overrides) == 0 {
			continue
		}
		m := b.s.byRef[mf.Ref()]
		for _, ref := range mf.Overrides {
			sup, err := b.s.resolveOne(ref)
			if err != nil {
				return fmt.Errorf("method %s overrides: %w", m.Ref(), err)
			}
			b.s.overrides[m] = append(b.s.overrides[m], sup)
		}
	}
	return nil
}

func (b *builder) placeAnonymous(*Facts) error {
	for _, tf := range b.anonIn {
		loc, err := b.inside(tf.In)
		if err != nil {
			return fmt.Errorf("type %s: %w", tf.Name, err)
		}
		b.s.types[tf.Name].DefinedAt = loc
	}
	return nil
}

// inside hands out a fresh location within the body of the referenced method.
func (b *builder) inside(ref string) (Location, error) {
	m, err := b.s.resolveOne(ref)
	if err != nil {
		return Location{}, err
	}
	n := b.nextInner[m] + 1
	b.nextInner[m] = n
	line := m.Range.Start.Line + n
	if line > m.Range.End.Line {
		line = m.Range.End.Line
	}
	return Location{File: m.Location.File, Position: Position{Line: line, Column: 9}}, nil
}

func (b *builder) locate(in, file string, line, column int) (Location, error) {
	if line > 0 {
		if file == "" {
			return Location{}, fmt.Errorf("line %d without file", line)
		}
		return Location{File: file, Position: Position{Line: line, Column: column}}, nil
	}
	if in == "" {
		return Location{}, fmt.Errorf("missing location: set in or file and line")
	}
	return b.inside(in)
}

func (b *builder) addCalls(f *Facts) error {
	for i, cf := range f.Calls {
		target, err := b.s.resolveOne(cf.Target)
		if err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
		loc, err := b.locate(cf.In, cf.File, cf.Line, cf.Column)
		if err != nil {
			return fmt.Errorf("call %d to %s: %w", i, cf.Target, err)
		}
		if cf.Doc {
			b.s.docPoints.Add(loc)
		}
		site := CallSite{Location: loc}
		if cf.Receiver != nil {
			recv := *cf.Receiver
			site.Receiver = &recv
		}
		b.s.calls[target] = append(b.s.calls[target], site)
	}
	return nil
}

func (b *builder) addFunctionals(f *Facts) error {
	for i, ff := range f.Functionals {
		if ff.Interface == "" {
			return fmt.Errorf("functional %d: missing interface", i)
		}
		kind, err := ParseFunctionalKind(ff.Kind)
		if err != nil {
			return fmt.Errorf("functional %d: %w", i, err)
		}
		loc, err := b.locate(ff.In, ff.File, ff.Line, ff.Column)
		if err != nil {
			return fmt.Errorf("functional %d: %w", i, err)
		}
		if ff.Doc {
			b.s.docPoints.Add(loc)
		}
		iface := EraseGenerics(ff.Interface)
		b.s.functionals[iface] = append(b.s.functionals[iface], FunctionalRef{Kind: kind, Interface: iface, Location: loc})
	}
	return nil
}

func (b *builder) addDocComments(f *Facts) error {
	for _, d := range f.DocComments {
		r := Range{Start: d.Start, End: d.End}
		if r.End.Before(r.Start) {
			return fmt.Errorf("doc comment in %s: range ends before it starts", d.File)
		}
		b.s.docRanges[d.File] = append(b.s.docRanges[d.File], r)
	}
	return nil
}

func (b *builder) finish() {
	byLocation := func(a, c CallSite) int { return compareLocations(a.Location, c.Location) }
	for m := range b.s.calls {
		slices.SortStableFunc(b.s.calls[m], byLocation)
	}
	for iface := range b.s.functionals {
		slices.SortStableFunc(b.s.functionals[iface], func(a, c FunctionalRef) int {
			return compareLocations(a.Location, c.Location)
		})
	}
}

func compareLocations(a, b Location) int {
	return cmp.Or(
		strings.Compare(a.File, b.File),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.Column, b.Column),
	)
}

func (s *Snapshot) Ready() bool { return true }

func (s *Snapshot) WaitUntilReady(context.Context) error { return nil }

func (s *Snapshot) Snapshot() KnowledgeBase { return s }

// FindCallSites implements KnowledgeBase.
func (s *Snapshot) FindCallSites(ctx context.Context, m *MethodSymbol, scope Scope) ([]CallSite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.owns(m); err != nil {
		return nil, err
	}
	sites := s.calls[m]
	out := make([]CallSite, 0, len(sites))
	for _, site := range sites {
		if scope == nil || scope.Contains(site.Location.File) {
			out = append(out, site)
		}
	}
	return out, nil
}

// FindOverriddenRootMethods implements KnowledgeBase.
func (s *Snapshot) FindOverriddenRootMethods(ctx context.Context, m *MethodSymbol) ([]*MethodSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.owns(m); err != nil {
		return nil, err
	}
	if roots, ok := s.roots.Load(m); ok {
		return roots, nil
	}
	var roots []*MethodSymbol
	seen := make(Set[*MethodSymbol])
	for _, sup := range s.superMethods(m) {
		for _, r := range s.rootsOf(sup, make(Set[*MethodSymbol])) {
			if !seen.Has(r) {
				seen.Add(r)
				roots = append(roots, r)
			}
		}
	}
	s.roots.Store(m, roots)
	return roots, nil
}

// rootsOf returns m itself when it overrides nothing, otherwise the roots of
// its super-methods.
func (s *Snapshot) rootsOf(m *MethodSymbol, visiting Set[*MethodSymbol]) []*MethodSymbol {
	if visiting.Has(m) {
		return nil
	}
	visiting.Add(m)
	supers := s.superMethods(m)
	if len(supers) == 0 {
		return []*MethodSymbol{m}
	}
	var out []*MethodSymbol
	for _, sup := range supers {
		out = append(out, s.rootsOf(sup, visiting)...)
	}
	return out
}

// superMethods returns the methods m directly or transitively overrides,
// nearest declarations first.
func (s *Snapshot) superMethods(m *MethodSymbol) []*MethodSymbol {
	if m.Static || m.ReturnType == "" {
		return nil
	}
	out := slices.Clone(s.overrides[m])
	seen := make(Set[*MethodSymbol])
	for _, sup := range out {
		seen.Add(sup)
	}
	ancestors := s.orderedSupertypes(m.Owner)
	for _, owner := range ancestors {
		for _, cand := range s.byOwner[owner] {
			if seen.Has(cand) || cand.Static || !s.overridesSignature(m, cand) {
				continue
			}
			seen.Add(cand)
			out = append(out, cand)
		}
	}
	return out
}

// orderedSupertypes lists the proper supertypes of owner breadth first.
func (s *Snapshot) orderedSupertypes(owner string) []string {
	var (
		out   []string
		queue = []string{owner}
		seen  = Set[string]{owner: {}}
	)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := s.types[cur]
		if !ok {
			continue
		}
		for _, sup := range t.Supertypes {
			sup = EraseGenerics(sup)
			if seen.Has(sup) {
				continue
			}
			seen.Add(sup)
			out = append(out, sup)
			queue = append(queue, sup)
		}
	}
	return out
}

func (s *Snapshot) overridesSignature(m, sup *MethodSymbol) bool {
	if m.Name != sup.Name || len(m.Params) != len(sup.Params) {
		return false
	}
	for i := range m.Params {
		if !s.paramMatches(m.Owner, m.Params[i], sup.Owner, sup.Params[i]) {
			return false
		}
	}
	return true
}

func (s *Snapshot) paramMatches(owner, p, supOwner, supP string) bool {
	p, supP = EraseGenerics(p), EraseGenerics(supP)
	if p == supP || SimpleName(p) == SimpleName(supP) {
		return true
	}
	return s.isTypeParam(supOwner, supP) || s.isTypeParam(owner, p)
}

func (s *Snapshot) isTypeParam(owner, name string) bool {
	t, ok := s.types[owner]
	if !ok {
		return false
	}
	for _, tp := range t.TypeParams {
		if tp.Name == name {
			return true
		}
	}
	return false
}

// FindFunctionalImplementations implements KnowledgeBase.
func (s *Snapshot) FindFunctionalImplementations(ctx context.Context, iface string, scope Scope) ([]FunctionalRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := s.functionals[EraseGenerics(iface)]
	out := make([]FunctionalRef, 0, len(refs))
	for _, r := range refs {
		if scope == nil || scope.Contains(r.Location.File) {
			out = append(out, r)
		}
	}
	return out, nil
}

// EnclosingMethod implements KnowledgeBase. The innermost range wins.
func (s *Snapshot) EnclosingMethod(loc Location) (*MethodSymbol, bool) {
	var best *MethodSymbol
	for _, m := range s.byFile[loc.File] {
		if !m.Range.Contains(loc.Position) {
			continue
		}
		if best == nil || m.Range.Span() < best.Range.Span() {
			best = m
		}
	}
	return best, best != nil
}

// TypeInfo implements KnowledgeBase.
func (s *Snapshot) TypeInfo(name string) (*TypeInfo, bool) {
	t, ok := s.types[EraseGenerics(name)]
	return t, ok
}

// IsRelatedType implements KnowledgeBase. Type variables are compared through
// their erasure.
func (s *Snapshot) IsRelatedType(a, b TypeRef) bool {
	for _, x := range a.Erasure() {
		for _, y := range b.Erasure() {
			if s.hier.isRelated(x, y) {
				return true
			}
		}
	}
	return false
}

// IsSubtypeOrSelf implements KnowledgeBase.
func (s *Snapshot) IsSubtypeOrSelf(sub, sup string) bool {
	return s.hier.isSubtypeOrSelf(sub, sup)
}

// IsInDocComment implements KnowledgeBase.
func (s *Snapshot) IsInDocComment(loc Location) bool {
	if s.docPoints.Has(loc) {
		return true
	}
	for _, r := range s.docRanges[loc.File] {
		if r.Contains(loc.Position) {
			return true
		}
	}
	return false
}

// ProductionScope implements KnowledgeBase.
func (s *Snapshot) ProductionScope() Scope {
	return s.production
}

// LookupMethods implements KnowledgeBase. Owners may be given by simple name
// when that name is unambiguous.
func (s *Snapshot) LookupMethods(ref string) ([]*MethodSymbol, error) {
	r, err := ParseMethodRef(ref)
	if err != nil {
		return nil, err
	}
	owners := s.ownersNamed(r.Owner)
	var out []*MethodSymbol
	for _, owner := range owners {
		for _, m := range s.byOwner[owner] {
			if m.Name != r.Name {
				continue
			}
			if r.Params != nil && !paramsEqual(m.Params, r.Params) {
				continue
			}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, ref)
	}
	return out, nil
}

func (s *Snapshot) ownersNamed(name string) []string {
	if _, ok := s.byOwner[name]; ok {
		return []string{name}
	}
	var out []string
	for owner := range s.byOwner {
		if SimpleName(owner) == name || strings.HasSuffix(owner, "."+name) {
			out = append(out, owner)
		}
	}
	slices.Sort(out)
	return out
}

func paramsEqual(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		h, w := EraseGenerics(have[i]), EraseGenerics(want[i])
		if h != w && SimpleName(h) != SimpleName(w) {
			return false
		}
	}
	return true
}

// resolveOne resolves a reference that must denote exactly one method.
func (s *Snapshot) resolveOne(ref string) (*MethodSymbol, error) {
	if m, ok := s.byRef[ref]; ok {
		return m, nil
	}
	ms, err := s.LookupMethods(ref)
	if err != nil {
		return nil, err
	}
	if len(ms) > 1 {
		return nil, fmt.Errorf("ambiguous method reference %s matches %d methods", ref, len(ms))
	}
	return ms[0], nil
}

// Methods implements KnowledgeBase.
func (s *Snapshot) Methods() []*MethodSymbol {
	return s.methods
}

// owns rejects symbols that belong to a different snapshot.
func (s *Snapshot) owns(m *MethodSymbol) error {
	if m == nil {
		return fmt.Errorf("%w: nil method", ErrStaleReference)
	}
	if got, ok := s.byRef[m.Ref()]; !ok || got != m {
		return fmt.Errorf("%w: %s", ErrStaleReference, m.Ref())
	}
	return nil
}
