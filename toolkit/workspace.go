// Package toolkit provides a built-in workspace tool group for the agent
// engine: file reading and editing, shell execution, and content search,
// all rooted at a working directory.
//
// Workspace is designed for agent.ToolRegistry.AddInstance: every exported
// method with a declared result becomes a tool, and all tools share the
// same Workspace state.
package toolkit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultReadLimit    = 2000
	defaultShellTimeout = 10 * time.Second
	maxShellTimeout     = 10 * time.Minute
	defaultMaxOutput    = 30000
)

// Workspace exposes filesystem and shell tools rooted at one directory.
// Relative paths in tool arguments resolve against the root.
type Workspace struct {
	root         string
	shellTimeout time.Duration
	maxTimeout   time.Duration
	maxOutput    int
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithShellTimeout sets the default and maximum shell command timeouts.
func WithShellTimeout(def, max time.Duration) WorkspaceOption {
	return func(w *Workspace) {
		if def > 0 {
			w.shellTimeout = def
		}
		if max > 0 {
			w.maxTimeout = max
		}
	}
}

// WithMaxOutput caps the characters a single tool result may carry back to
// the model before truncation kicks in.
func WithMaxOutput(n int) WorkspaceOption {
	return func(w *Workspace) {
		if n > 0 {
			w.maxOutput = n
		}
	}
}

// NewWorkspace creates a Workspace rooted at dir. An empty dir uses the
// process working directory; the directory is created if missing.
func NewWorkspace(dir string, opts ...WorkspaceOption) (*Workspace, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	w := &Workspace{
		root:         dir,
		shellTimeout: defaultShellTimeout,
		maxTimeout:   maxShellTimeout,
		maxOutput:    defaultMaxOutput,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// ToolDescriptions supplies the descriptions advertised for each extracted
// tool.
func (w *Workspace) ToolDescriptions() map[string]string {
	return map[string]string{
		"read_file":  "Read a file from the workspace. Returns line-numbered content.",
		"write_file": "Write content to a file, creating it and any parent directories.",
		"edit_file":  "Replace an exact string occurrence in a file. The old string must be unique unless replace_all is set.",
		"list_dir":   "List the entries of a directory.",
		"shell":      "Execute a shell command in the workspace. Returns combined output and the exit code on failure.",
		"grep":       "Search file contents with a regular expression. Returns matching lines with paths and line numbers.",
		"glob":       "Find files matching a glob pattern relative to the workspace root.",
	}
}

func (w *Workspace) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

// ReadFileArgs are the arguments of the read_file tool.
type ReadFileArgs struct {
	Path   string `json:"path" desc:"File path, absolute or relative to the workspace root."`
	Offset int    `json:"offset" desc:"1-based line number to start reading from." default:"0"`
	Limit  int    `json:"limit" desc:"Maximum number of lines to return." default:"2000"`
}

// ReadFile returns the file's content with one-based line numbers.
func (w *Workspace) ReadFile(args ReadFileArgs) (string, error) {
	data, err := os.ReadFile(w.resolve(args.Path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args.Path, err)
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if args.Offset > 0 {
		start = args.Offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	end := len(lines)
	if start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return truncateHeadTail(sb.String(), w.maxOutput), nil
}

// WriteFileArgs are the arguments of the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path" desc:"File path to write, absolute or relative to the workspace root."`
	Content string `json:"content" desc:"Full file content."`
}

// WriteFile writes the file, creating parent directories as needed.
func (w *Workspace) WriteFile(args WriteFileArgs) (string, error) {
	resolved := w.resolve(args.Path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory for %s: %w", args.Path, err)
	}
	if err := os.WriteFile(resolved, []byte(args.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", args.Path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// EditFileArgs are the arguments of the edit_file tool.
type EditFileArgs struct {
	Path       string `json:"path" desc:"File to edit."`
	OldString  string `json:"old_string" desc:"Exact text to find."`
	NewString  string `json:"new_string" desc:"Replacement text."`
	ReplaceAll bool   `json:"replace_all" desc:"Replace every occurrence instead of requiring uniqueness." default:"false"`
}

// EditFile replaces an exact string occurrence in a file.
func (w *Workspace) EditFile(args EditFileArgs) (string, error) {
	resolved := w.resolve(args.Path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args.Path, err)
	}
	content := string(data)

	count := strings.Count(content, args.OldString)
	if count == 0 {
		return "", fmt.Errorf("old_string not found in %s", args.Path)
	}
	if count > 1 && !args.ReplaceAll {
		return "", fmt.Errorf("old_string occurs %d times in %s; add surrounding context or set replace_all", count, args.Path)
	}

	replaced := 1
	var updated string
	if args.ReplaceAll {
		updated = strings.ReplaceAll(content, args.OldString, args.NewString)
		replaced = count
	} else {
		updated = strings.Replace(content, args.OldString, args.NewString, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", args.Path, err)
	}
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, args.Path), nil
}

// ListDirArgs are the arguments of the list_dir tool.
type ListDirArgs struct {
	Path string `json:"path" desc:"Directory to list, relative to the workspace root." default:"."`
}

// ListDir lists the entries of a directory, directories suffixed with a
// slash.
func (w *Workspace) ListDir(args ListDirArgs) (string, error) {
	entries, err := os.ReadDir(w.resolve(args.Path))
	if err != nil {
		return "", fmt.Errorf("list %s: %w", args.Path, err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var sb strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			sb.WriteString(name + "/\n")
			continue
		}
		if info, err := entry.Info(); err == nil {
			fmt.Fprintf(&sb, "%s (%d bytes)\n", name, info.Size())
		} else {
			sb.WriteString(name + "\n")
		}
	}
	return sb.String(), nil
}

// GlobArgs are the arguments of the glob tool.
type GlobArgs struct {
	Path    string `json:"path" desc:"Base directory, relative to the workspace root." default:"."`
	Pattern string `json:"pattern" desc:"Glob pattern, for example *.go or cmd/*/main.go."`
}

// Glob finds files matching a pattern, paths reported relative to the
// workspace root where possible.
func (w *Workspace) Glob(args GlobArgs) (string, error) {
	matches, err := filepath.Glob(filepath.Join(w.resolve(args.Path), args.Pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", args.Pattern, err)
	}
	if len(matches) == 0 {
		return "No files matched the pattern.", nil
	}

	rel := make([]string, 0, len(matches))
	for _, m := range matches {
		if r, err := filepath.Rel(w.root, m); err == nil && !strings.HasPrefix(r, "..") {
			rel = append(rel, r)
		} else {
			rel = append(rel, m)
		}
	}
	sort.Strings(rel)
	return strings.Join(rel, "\n"), nil
}
