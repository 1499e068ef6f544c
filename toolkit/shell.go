package toolkit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// sensitiveEnvSuffixes are case-insensitive suffixes of environment
// variables withheld from shell commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through regardless of suffix filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filteredEnviron() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			out = append(out, kv)
		}
	}
	return out
}

// ShellArgs are the arguments of the shell tool.
type ShellArgs struct {
	Command   string `json:"command" desc:"The command to run."`
	TimeoutMs int    `json:"timeout_ms" desc:"Command timeout in milliseconds." default:"0"`
}

// Shell runs a command through the system shell inside the workspace root.
// Output combines stdout and stderr; a nonzero exit code or timeout is
// reported inline rather than as an error, so the model can react to it.
func (w *Workspace) Shell(ctx context.Context, args ShellArgs) (string, error) {
	if strings.TrimSpace(args.Command) == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := w.shellTimeout
	if args.TimeoutMs > 0 {
		timeout = time.Duration(args.TimeoutMs) * time.Millisecond
	}
	if timeout > w.maxTimeout {
		timeout = w.maxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell, shellArg := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, args.Command)
	cmd.Dir = w.root
	cmd.Env = filteredEnviron()
	if runtime.GOOS != "windows" {
		// Own process group so a timeout can kill spawned children too.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var sb strings.Builder
	sb.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil && runtime.GOOS != "windows" {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		fmt.Fprintf(&sb, "\n[command timed out after %s; partial output above]", timeout)
	} else if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			fmt.Fprintf(&sb, "\n[exit code: %d]", exitErr.ExitCode())
		} else {
			return "", fmt.Errorf("run command: %w", runErr)
		}
	}

	return truncateHeadTail(sb.String(), w.maxOutput), nil
}
