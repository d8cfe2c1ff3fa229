package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BootstrapFile represents a file to seed in a workspace.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult captures the files and directories created or skipped.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// DefaultBootstrapFiles returns the default identity file set for a new
// ghost workspace, per spec.md §6's persistent state layout.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Name: "BOOT.md",
			Content: "# BOOT.md - Workspace Instructions\n\n" +
				"This workspace is the ghost's own working directory.\n\n" +
				"## Safety\n" +
				"- Do not exfiltrate secrets or private data.\n" +
				"- Avoid destructive actions unless explicitly approved.\n\n" +
				"## Workflow\n" +
				"- Be concise in chat; put longer output in files.\n" +
				"- Ask clarifying questions when requirements are unclear.\n",
		},
		{
			Name: "SOUL.md",
			Content: "# SOUL.md - Persona & Boundaries\n\n" +
				"- Tone: concise, direct, and friendly.\n" +
				"- Ask clarifying questions when needed.\n" +
				"- Never send partial/streaming replies to external messaging surfaces.\n",
		},
		{
			Name: "USER.md",
			Content: "# USER.md - Operator Profile\n\n" +
				"- Name:\n" +
				"- Preferred address:\n" +
				"- Timezone (optional):\n" +
				"- Notes:\n",
		},
		{
			Name: "HEARTBEAT.md",
			Content: "# HEARTBEAT.md\n\n" +
				"Only report items that are new or changed.\n" +
				"If nothing needs attention, reply HEARTBEAT_CONTINUE.\n",
		},
	}
}

// ClearWebCache removes every entry under <root>/.web-cache/ and recreates
// the empty directory, per spec.md §4.8's post-reflection cache reset.
func ClearWebCache(root string) error {
	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}
	path := filepath.Join(base, ".web-cache")
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clear web cache: %w", err)
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureWorkspaceFiles creates missing files in the workspace root, plus
// the diary/ and .web-cache/ directories every ghost workspace needs.
func EnsureWorkspaceFiles(root string, files []BootstrapFile, overwrite bool) (BootstrapResult, error) {
	result := BootstrapResult{}
	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return result, fmt.Errorf("create workspace dir: %w", err)
	}

	for _, dir := range []string{"diary", ".web-cache"} {
		path := filepath.Join(base, dir)
		if _, err := os.Stat(path); err == nil {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return result, fmt.Errorf("create %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			continue
		}
		path := filepath.Join(base, name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			} else if !os.IsNotExist(err) {
				return result, fmt.Errorf("stat %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, []byte(file.Content), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	return result, nil
}
