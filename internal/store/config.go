package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const DefaultServer = "http://127.0.0.1:8080"

type Config struct {
	// Server is the figure server root (scheme://host:port).
	Server string `json:"server,omitempty"`
	// TimeoutSeconds bounds each HTTP round trip. 0 uses the client default.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
	// DownloadDir receives data/pdf downloads. Empty means the working directory.
	DownloadDir string `json:"downloadDir,omitempty"`

	LogFile  string `json:"logFile,omitempty"`
	LogLevel string `json:"logLevel,omitempty"`

	// Journal is the local mutation history database. "off" disables it.
	Journal string `json:"journal,omitempty"`

	Editor *EditorConfig `json:"editor,omitempty"`
}

type EditorConfig struct {
	// Theme selects the viewer palette ("dark", "light", "notty", ...).
	Theme string `json:"theme,omitempty"`
	// Mode is the language used for highlighting (e.g. "r").
	Mode string `json:"mode,omitempty"`
	// Snippets points at a JSON completion list replacing the built-in one.
	Snippets string `json:"snippets,omitempty"`
	MinLines int    `json:"minLines,omitempty"`
	MaxLines int    `json:"maxLines,omitempty"`
	Wrap     *bool  `json:"wrap,omitempty"`
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.figdesk).
	if v := strings.TrimSpace(os.Getenv("FIGDESK_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".figdesk"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadConfig reads the config file; a missing file yields an empty config.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func SaveConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Keep the previous config around; ignore errors so a bad backup never blocks a save.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.json.bak.*.tmp", path+".bak", prev, 0o644)
	}
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}

func (c *Config) ServerOrDefault() string {
	if c == nil || strings.TrimSpace(c.Server) == "" {
		return DefaultServer
	}
	return strings.TrimSpace(c.Server)
}

func (c *Config) Timeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// JournalPath resolves the journal location; ok is false when disabled.
func (c *Config) JournalPath() (path string, ok bool, err error) {
	v := ""
	if c != nil {
		v = strings.TrimSpace(c.Journal)
	}
	switch strings.ToLower(v) {
	case "off", "none", "false":
		return "", false, nil
	case "":
		dir, err := ConfigDir()
		if err != nil {
			return "", false, err
		}
		return filepath.Join(dir, "journal.sqlite"), true, nil
	}
	return v, true, nil
}

func (c *Config) LogFileOrDefault() (string, error) {
	if c != nil && strings.TrimSpace(c.LogFile) != "" {
		return strings.TrimSpace(c.LogFile), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "figdesk.log"), nil
}

// EditorOrDefault fills unset editor options with the built-in choices.
func (c *Config) EditorOrDefault() EditorConfig {
	out := EditorConfig{}
	if c != nil && c.Editor != nil {
		out = *c.Editor
	}
	if strings.TrimSpace(out.Theme) == "" {
		out.Theme = "dark"
	}
	if strings.TrimSpace(out.Mode) == "" {
		out.Mode = "r"
	}
	if out.MinLines <= 0 {
		out.MinLines = 12
	}
	if out.MaxLines <= 0 {
		out.MaxLines = 36
	}
	if out.MaxLines < out.MinLines {
		out.MaxLines = out.MinLines
	}
	if out.Wrap == nil {
		wrap := true
		out.Wrap = &wrap
	}
	return out
}

// configKeys are the keys accepted by Set, in display order.
var configKeys = []string{
	"server", "timeoutSeconds", "downloadDir", "logFile", "logLevel", "journal",
	"editor.theme", "editor.mode", "editor.snippets", "editor.minLines", "editor.maxLines", "editor.wrap",
}

func ConfigKeys() []string { return append([]string(nil), configKeys...) }

// Set assigns one dotted key from its string form.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	ed := func() *EditorConfig {
		if c.Editor == nil {
			c.Editor = &EditorConfig{}
		}
		return c.Editor
	}
	atoi := func() (int, error) {
		if value == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s: want a non-negative integer, got %q", key, value)
		}
		return n, nil
	}

	switch key {
	case "server":
		c.Server = value
	case "timeoutSeconds":
		n, err := atoi()
		if err != nil {
			return err
		}
		c.TimeoutSeconds = n
	case "downloadDir":
		c.DownloadDir = value
	case "logFile":
		c.LogFile = value
	case "logLevel":
		c.LogLevel = value
	case "journal":
		c.Journal = value
	case "editor.theme":
		ed().Theme = value
	case "editor.mode":
		ed().Mode = value
	case "editor.snippets":
		ed().Snippets = value
	case "editor.minLines":
		n, err := atoi()
		if err != nil {
			return err
		}
		ed().MinLines = n
	case "editor.maxLines":
		n, err := atoi()
		if err != nil {
			return err
		}
		ed().MaxLines = n
	case "editor.wrap":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: want true|false, got %q", key, value)
		}
		ed().Wrap = &b
	default:
		return fmt.Errorf("unknown config key: %s (known: %s)", key, strings.Join(configKeys, ", "))
	}
	return nil
}

// Get returns the string form of one dotted key as stored in the file.
func (c *Config) Get(key string) (string, error) {
	ed := EditorConfig{}
	if c.Editor != nil {
		ed = *c.Editor
	}
	itoa := func(n int) string {
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	switch key {
	case "server":
		return c.Server, nil
	case "timeoutSeconds":
		return itoa(c.TimeoutSeconds), nil
	case "downloadDir":
		return c.DownloadDir, nil
	case "logFile":
		return c.LogFile, nil
	case "logLevel":
		return c.LogLevel, nil
	case "journal":
		return c.Journal, nil
	case "editor.theme":
		return ed.Theme, nil
	case "editor.mode":
		return ed.Mode, nil
	case "editor.snippets":
		return ed.Snippets, nil
	case "editor.minLines":
		return itoa(ed.MinLines), nil
	case "editor.maxLines":
		return itoa(ed.MaxLines), nil
	case "editor.wrap":
		if ed.Wrap == nil {
			return "", nil
		}
		return strconv.FormatBool(*ed.Wrap), nil
	}
	return "", fmt.Errorf("unknown config key: %s (known: %s)", key, strings.Join(configKeys, ", "))
}
