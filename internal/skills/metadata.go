package skills

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Metadata is the best-effort fields extracted from a skill's SKILL.md.
type Metadata struct {
	Name        string
	Description string
	Version     string
}

var versionLine = regexp.MustCompile(`(?i)^\s*version:\s*([0-9]+\.[0-9]+\.[0-9]+)\s*$`)

// ExtractMetadata derives {name, description, version} from
// folder/SKILL.md: the first H1 becomes the name, the first paragraph
// after it becomes the description, and the first "version: X.Y.Z" line
// found anywhere becomes the version. Any field left unset by a missing
// heuristic match is returned as "".
func ExtractMetadata(folder string) Metadata {
	f, err := os.Open(filepath.Join(folder, "SKILL.md"))
	if err != nil {
		return Metadata{}
	}
	defer f.Close()

	var meta Metadata
	var descLines []string
	inDescription := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if m := versionLine.FindStringSubmatch(line); m != nil && meta.Version == "" {
			meta.Version = m[1]
			continue
		}

		trimmed := strings.TrimSpace(line)
		if meta.Name == "" && strings.HasPrefix(trimmed, "# ") {
			meta.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			inDescription = true
			continue
		}

		if inDescription {
			if trimmed == "" {
				if len(descLines) > 0 {
					inDescription = false
				}
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				inDescription = false
				continue
			}
			descLines = append(descLines, trimmed)
		}
	}
	meta.Description = strings.Join(descLines, " ")
	return meta
}
