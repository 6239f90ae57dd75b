package javasrc

import (
	"regexp"
	"slices"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/715d/topcallers/pkg/kb"
)

// Javadoc reference patterns.
var (
	// linkPattern matches {@link Type#method(Args)} and {@linkplain ...}
	linkPattern = regexp.MustCompile(`\{@link(?:plain)?\s+([\w.$]*#[\w$]+(?:\([^)]*\))?)`)

	// seePattern matches @see Type#method(Args)
	seePattern = regexp.MustCompile(`@see\s+([\w.$]*#[\w$]+(?:\([^)]*\))?)`)
)

// DocRef is a method reference written in a Javadoc comment.
type DocRef struct {
	// Type is empty for references to a member of the documented class.
	Type   string
	Method string

	// Args is -1 when the reference has no parameter list.
	Args int

	// Offset is the byte offset of the reference within the comment.
	Offset int
}

// parseDocRefs returns the method references of a Javadoc comment in order
// of appearance.
func parseDocRefs(comment string) []DocRef {
	var refs []DocRef
	for _, pattern := range []*regexp.Regexp{linkPattern, seePattern} {
		for _, loc := range pattern.FindAllStringSubmatchIndex(comment, -1) {
			if ref, ok := parseDocRef(comment[loc[2]:loc[3]]); ok {
				ref.Offset = loc[2]
				refs = append(refs, ref)
			}
		}
	}
	slices.SortFunc(refs, func(a, b DocRef) int { return a.Offset - b.Offset })
	return refs
}

func parseDocRef(s string) (DocRef, bool) {
	hash := strings.IndexByte(s, '#')
	if hash < 0 {
		return DocRef{}, false
	}
	ref := DocRef{Type: s[:hash], Method: s[hash+1:], Args: -1}
	if open := strings.IndexByte(ref.Method, '('); open >= 0 {
		ref.Args = len(kb.SplitParams(strings.TrimSuffix(ref.Method[open+1:], ")")))
		ref.Method = ref.Method[:open]
	}
	return ref, ref.Method != ""
}

// javadoc records the comment span and links its method references.
func (e *extractor) javadoc(n *sitter.Node, text string) {
	begin := start(n)
	e.file.Docs = append(e.file.Docs, Doc{Start: begin, End: end(n)})

	for _, ref := range parseDocRefs(text) {
		recv := Receiver{Kind: ReceiverImplicit}
		if ref.Type != "" {
			recv = Receiver{Kind: ReceiverType, Type: ref.Type}
		}
		e.file.Calls = append(e.file.Calls, Call{
			Kind:     CallInvoke,
			Name:     ref.Method,
			Args:     ref.Args,
			Receiver: recv,
			Owner:    e.docOwner(n),
			In:       e.method,
			At:       offsetPosition(begin, text, ref.Offset),
			Doc:      true,
		})
	}
}

// docOwner returns the type a comment documents members of. A comment in
// front of a top-level type documents that type.
func (e *extractor) docOwner(n *sitter.Node) string {
	if owner := e.currentType(); owner != "" {
		return owner
	}
	for next := n.NextNamedSibling(); next != nil; next = next.NextNamedSibling() {
		if _, ok := typeKinds[next.Kind()]; ok {
			return e.text(next.ChildByFieldName("name"))
		}
		if !isComment(next) {
			break
		}
	}
	return ""
}

// offsetPosition returns the position of the byte at offset in text, given
// that text starts at begin.
func offsetPosition(begin kb.Position, text string, offset int) kb.Position {
	before := text[:offset]
	lines := strings.Count(before, "\n")
	if lines == 0 {
		return kb.Position{Line: begin.Line, Column: begin.Column + offset}
	}
	return kb.Position{Line: begin.Line + lines, Column: offset - strings.LastIndexByte(before, '\n')}
}
