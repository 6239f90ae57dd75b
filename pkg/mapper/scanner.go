// Package mapper scans MyBatis mapper XML files for mapped statements and
// resolves statement ids to the mapper interface methods that execute them.
package mapper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Statement is one mapped SQL statement.
type Statement struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	Line      int    `json:"line"`
}

// FullID returns "namespace.id", the id MyBatis addresses the statement by.
func (s Statement) FullID() string {
	if s.Namespace == "" {
		return s.ID
	}
	return s.Namespace + "." + s.ID
}

// Info contains the statements found in one mapper file.
type Info struct {
	Namespace  string
	Statements []Statement
}

// Compile patterns once at package initialization.
var (
	// <mapper namespace="com.acme.UserMapper">
	namespacePattern = regexp.MustCompile(`<mapper\b[^>]*\bnamespace\s*=\s*["']([^"']+)["']`)

	// <select id="findById" ...>
	statementPattern = regexp.MustCompile(`<(select|insert|update|delete)\b[^>]*\bid\s*=\s*["']([^"']+)["']`)

	// Opening tag of a statement whose attributes continue on later lines.
	statementOpenPattern = regexp.MustCompile(`<(select|insert|update|delete)\b`)

	mapperOpenPattern = regexp.MustCompile(`<mapper\b`)

	idPattern        = regexp.MustCompile(`\bid\s*=\s*["']([^"']+)["']`)
	namespaceAttrPat = regexp.MustCompile(`\bnamespace\s*=\s*["']([^"']+)["']`)
)

// ScanFile scans a single mapper file. Files without a mapper element yield
// an empty Info.
func ScanFile(filename string) (*Info, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := scanReader(file, filename)
	if err != nil {
		return nil, fmt.Errorf("scan mapper file: %s: %w", filename, err)
	}
	return info, nil
}

// scanReader scans an io.Reader for mapper statements.
func scanReader(r io.Reader, filename string) (*Info, error) {
	info := &Info{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lineNo    int
		inComment bool
		inMapper  bool
		// pending is a statement tag opened on an earlier line without its id.
		pending     string
		pendingLine int
	)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		line, inComment = stripComments(line, inComment)
		if strings.TrimSpace(line) == "" {
			continue
		}

		if info.Namespace == "" {
			if inMapper {
				if matches := namespaceAttrPat.FindStringSubmatch(line); matches != nil {
					info.Namespace = matches[1]
				}
				if strings.Contains(line, ">") {
					inMapper = false
				}
				continue
			}
			if matches := namespacePattern.FindStringSubmatch(line); matches != nil {
				info.Namespace = matches[1]
			} else if mapperOpenPattern.MatchString(line) && !strings.Contains(line, ">") {
				inMapper = true
				continue
			}
		}

		if pending != "" {
			if matches := idPattern.FindStringSubmatch(line); matches != nil {
				info.Statements = append(info.Statements, Statement{ID: matches[1], Kind: pending, File: filename, Line: pendingLine})
				pending = ""
			} else if strings.Contains(line, ">") {
				pending = ""
			}
			continue
		}

		if matches := statementPattern.FindAllStringSubmatch(line, -1); matches != nil {
			for _, m := range matches {
				info.Statements = append(info.Statements, Statement{ID: m[2], Kind: m[1], File: filename, Line: lineNo})
			}
			continue
		}
		if matches := statementOpenPattern.FindStringSubmatch(line); matches != nil {
			pending, pendingLine = matches[1], lineNo
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i := range info.Statements {
		info.Statements[i].Namespace = info.Namespace
	}
	return info, nil
}

// stripComments removes XML comments from line, tracking comments that span
// lines.
func stripComments(line string, inComment bool) (string, bool) {
	var b strings.Builder
	for line != "" {
		if inComment {
			end := strings.Index(line, "-->")
			if end < 0 {
				return b.String(), true
			}
			line = line[end+3:]
			inComment = false
			continue
		}
		start := strings.Index(line, "<!--")
		if start < 0 {
			b.WriteString(line)
			break
		}
		b.WriteString(line[:start])
		line = line[start+4:]
		inComment = true
	}
	return b.String(), inComment
}

// ScanFiles scans files concurrently and returns an index of their
// statements. Files that are not mapper documents are skipped.
func ScanFiles(ctx context.Context, files []string, workers int) (*Index, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*Info, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := ScanFile(file)
			if err != nil {
				return err
			}
			results[idx] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := NewIndex()
	for _, info := range results {
		if info.Namespace == "" {
			continue
		}
		idx.Add(info)
	}
	return idx, nil
}
