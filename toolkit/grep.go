package toolkit

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultGrepResults = 100

// GrepArgs are the arguments of the grep tool.
type GrepArgs struct {
	Pattern    string `json:"pattern" desc:"Regular expression to search for."`
	Path       string `json:"path" desc:"Directory or file to search, relative to the workspace root." default:"."`
	Glob       string `json:"glob" desc:"Filename filter, for example *.go." default:""`
	IgnoreCase bool   `json:"ignore_case" desc:"Case-insensitive matching." default:"false"`
	MaxResults int    `json:"max_results" desc:"Maximum number of matching lines." default:"100"`
}

// Grep searches file contents under a path, reporting path:line:text for
// each match. Hidden directories are skipped.
func (w *Workspace) Grep(ctx context.Context, args GrepArgs) (string, error) {
	if args.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	pattern := args.Pattern
	if args.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("compile pattern: %w", err)
	}

	max := args.MaxResults
	if max <= 0 {
		max = defaultGrepResults
	}

	root := w.resolve(args.Path)
	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if args.Glob != "" {
			if ok, _ := filepath.Match(args.Glob, d.Name()); !ok {
				return nil
			}
		}

		found, err := grepFile(path, re, max-len(matches), w.displayPath(path))
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= max {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		return "", walkErr
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return truncateHeadTail(strings.Join(matches, "\n"), w.maxOutput), nil
}

// grepFile scans one file for up to limit matches. Binary-looking files
// are skipped.
func grepFile(path string, re *regexp.Regexp, limit int, display string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, '\x00') {
			return nil, nil
		}
		if re.MatchString(line) {
			out = append(out, fmt.Sprintf("%s:%d:%s", display, lineNo, line))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, scanner.Err()
}

// displayPath renders a path relative to the workspace root when possible.
func (w *Workspace) displayPath(path string) string {
	if rel, err := filepath.Rel(w.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
