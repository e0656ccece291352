// Package access implements the content access policy: a file-path gate
// and a bash-command path gate, both bound at option-build time to a
// concrete allowed-directory list.
package access

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Policy gates file and bash-command access to a fixed set of allowed
// directories: the working directory, plus any caller-supplied extras.
type Policy struct {
	allowed []string // normalized, absolute, no trailing separator
}

// New builds a Policy from the working directory and any extra allowed
// directories, normalizing each to an absolute, clean path.
func New(workDir string, extra ...string) *Policy {
	dirs := append([]string{workDir}, extra...)
	allowed := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		allowed = append(allowed, normalize(d))
	}
	return &Policy{allowed: allowed}
}

func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.Clean(abs)
}

// isInside reports whether path equals or lies beneath one of p's allowed
// directories, using a separator-bounded prefix match.
func (p *Policy) isInside(path string) bool {
	for _, dir := range p.allowed {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// CheckFileTool gates {read, write, edit, glob, grep}-style operations
// against a single path argument. Unresolved relative paths are allowed —
// they resolve under the cwd, which is allowed by construction.
func (p *Policy) CheckFileTool(path string) (bool, string) {
	if path == "" || !filepath.IsAbs(path) {
		return true, ""
	}
	norm := filepath.Clean(path)
	if p.isInside(norm) {
		return true, ""
	}
	return false, fmt.Sprintf("path %q is outside the allowed directories", path)
}

// candidatePathPatterns extract absolute-path-looking arguments from a
// shell command: leading-slash bare arguments, verb-targeted arguments,
// and redirection targets.
var candidatePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|\s)(/[^\s'"]+)`),
	regexp.MustCompile(`\b(?:cat|rm|mv|cp|touch|mkdir|rmdir|chmod|chown|vi|vim|nano)\s+(?:-\S+\s+)*(/[^\s'"]+)`),
	regexp.MustCompile(`[><]{1,2}\s*(/[^\s'"]+)`),
}

// CheckBashCommand scans cmd for candidate absolute paths and denies if any
// of them escape the allowed directories.
func (p *Policy) CheckBashCommand(cmd string) (bool, string) {
	seen := make(map[string]bool)
	for _, re := range candidatePathPatterns {
		for _, m := range re.FindAllStringSubmatch(cmd, -1) {
			candidate := filepath.Clean(m[1])
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			if !p.isInside(candidate) {
				return false, fmt.Sprintf("command references %q, outside the allowed directories", candidate)
			}
		}
	}
	return true, ""
}
