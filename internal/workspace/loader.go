package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghostmesh/gateway/internal/config"
)

// WorkspaceContext holds the loaded contents of a ghost's workspace files.
type WorkspaceContext struct {
	BootContent      string
	SoulContent      string
	UserContent      string
	HeartbeatContent string

	User *UserProfile
}

// UserProfile holds the parsed operator profile from USER.md.
type UserProfile struct {
	Name             string
	PreferredAddress string
	Pronouns         string
	Timezone         string
	Notes            string
}

// LoaderConfig configures the workspace loader. File names are fixed per
// spec.md §6's persistent state layout; only the root is configurable.
type LoaderConfig struct {
	Root string
}

// LoaderConfigFromConfig derives a LoaderConfig from the app config.
func LoaderConfigFromConfig(cfg *config.Config) LoaderConfig {
	if cfg == nil {
		return LoaderConfig{}
	}
	return LoaderConfig{Root: cfg.Workspace.Root}
}

// LoadWorkspace loads BOOT.md, SOUL.md, USER.md, and HEARTBEAT.md from
// cfg.Root, tolerating any of them being absent.
func LoadWorkspace(cfg LoaderConfig) (*WorkspaceContext, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}

	ctx := &WorkspaceContext{}
	loadOptional := func(name string) (string, error) {
		return readOptionalFile(filepath.Join(root, name))
	}

	var err error
	if ctx.BootContent, err = loadOptional("BOOT.md"); err != nil {
		return nil, err
	}
	if ctx.SoulContent, err = loadOptional("SOUL.md"); err != nil {
		return nil, err
	}
	if ctx.UserContent, err = loadOptional("USER.md"); err != nil {
		return nil, err
	}
	if ctx.HeartbeatContent, err = loadOptional("HEARTBEAT.md"); err != nil {
		return nil, err
	}

	if ctx.UserContent != "" {
		ctx.User = parseUserProfile(ctx.UserContent)
	}

	return ctx, nil
}

// LoadSoul loads just the SOUL.md file content.
func LoadSoul(root string) (string, error) {
	return readFile(filepath.Join(root, "SOUL.md"))
}

// LoadUser loads and parses the USER.md file.
func LoadUser(root string) (*UserProfile, error) {
	content, err := readFile(filepath.Join(root, "USER.md"))
	if err != nil {
		return nil, err
	}
	return parseUserProfile(content), nil
}

// LoadHeartbeatPrompt loads the per-ghost HEARTBEAT.md override, returning
// "" if the ghost has not customized it.
func LoadHeartbeatPrompt(root string) (string, error) {
	return readOptionalFile(filepath.Join(root, "HEARTBEAT.md"))
}

// SystemPromptContext renders the loaded workspace files into text meant to
// be folded into a chat loop's system prompt.
func (w *WorkspaceContext) SystemPromptContext() string {
	var parts []string

	if w.BootContent != "" {
		parts = append(parts, w.BootContent)
	}
	if w.SoulContent != "" {
		parts = append(parts, w.SoulContent)
	}

	if w.User != nil && w.User.Name != "" {
		addr := w.User.PreferredAddress
		if addr == "" {
			addr = w.User.Name
		}
		parts = append(parts, fmt.Sprintf("You are talking to %s (address them as %s).", w.User.Name, addr))
		if w.User.Timezone != "" {
			parts = append(parts, fmt.Sprintf("Their timezone is %s.", w.User.Timezone))
		}
	}

	return strings.Join(parts, "\n")
}

// Helper functions

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readOptionalFile(path string) (string, error) {
	content, err := readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return content, nil
}

// parseUserProfile parses USER.md's "- Key: value" lines.
func parseUserProfile(content string) *UserProfile {
	user := &UserProfile{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if key, val := parseKeyValue(line); key != "" {
			switch strings.ToLower(key) {
			case "name":
				user.Name = val
			case "preferred address":
				user.PreferredAddress = val
			case "pronouns", "pronouns (optional)":
				user.Pronouns = val
			case "timezone", "timezone (optional)":
				user.Timezone = val
			case "notes":
				user.Notes = val
			}
		}
	}
	return user
}

// parseKeyValue extracts key-value from lines like "- Key: Value" or "Key: Value".
func parseKeyValue(line string) (string, string) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "-")
	line = strings.TrimSpace(line)

	idx := strings.Index(line, ":")
	if idx == -1 {
		return "", ""
	}

	key := strings.TrimSpace(line[:idx])
	val := strings.TrimSpace(line[idx+1:])
	return key, val
}
