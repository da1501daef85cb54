// Package config parses Klipper-style INI files: "[section]" headers
// followed by "key: value" or "key = value" options, "#" comments and
// "[include glob]" directives. Option access is tracked so unused options
// can be reported.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gcode-anim/pkg/errors"
)

// Config provides access to a configuration file with access tracking.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates a new empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads a configuration file and the files it includes.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string. Include directives are
// not allowed.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "<string>", nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.IOError(path, err)
	}
	if visited[abs] {
		return errors.New(errors.ErrConfigValidation, "recursive include").SetFile(path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return errors.IOError(path, err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	include := func(pattern string) error {
		glob := filepath.Join(dir, pattern)
		matches, err := filepath.Glob(glob)
		if err != nil {
			return errors.Wrap(err, errors.ErrConfigValidation, "invalid include pattern").SetFile(path)
		}
		sort.Strings(matches)
		if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
			return errors.New(errors.ErrConfigValidation, "include file does not exist: "+glob).SetFile(path)
		}
		for _, m := range matches {
			if err := c.parseFile(m, visited); err != nil {
				return err
			}
		}
		return nil
	}
	return c.parse(f, path, include)
}

// parse reads sections from r. include handles "[include ...]" headers;
// when nil they are rejected.
func (c *Config) parse(r io.Reader, name string, include func(string) error) error {
	var current string
	var options map[string]string
	flush := func() {
		if current != "" {
			c.addSection(current, options)
		}
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return errors.New(errors.ErrConfigValidation, "empty section header").SetFile(name).SetLine(lineNum)
			}
			if pattern, ok := strings.CutPrefix(header, "include "); ok {
				if include == nil {
					return errors.New(errors.ErrConfigValidation, "include not supported here").SetFile(name).SetLine(lineNum)
				}
				if err := include(strings.TrimSpace(pattern)); err != nil {
					return err
				}
				current, options = "", nil
				continue
			}
			current = header
			options = make(map[string]string)
			continue
		}

		// Options before the first section are ignored
		if current == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			return errors.New(errors.ErrConfigValidation, fmt.Sprintf("malformed option %q", line)).
				SetFile(name).SetLine(lineNum).SetSection(current)
		}
		options[key] = value
	}
	flush()

	if err := scanner.Err(); err != nil {
		return errors.IOError(name, err)
	}
	return nil
}

// splitOption splits on whichever of ':' or '=' comes first.
func splitOption(line string) (string, string, bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

// addSection adds a section, merging options into an existing one.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or an error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec, ok := c.sections[name]
	if !ok {
		return nil, errors.New(errors.ErrConfigOption, "section not found").SetSection(name)
	}
	return sec, nil
}

// GetSectionOptional returns a Section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sections[name]
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in file order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// UnusedOptions lists "section.option" for every option never read.
func (c *Config) UnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for _, name := range c.order {
		for _, opt := range c.sections[name].GetUnusedOptions() {
			result = append(result, name+"."+opt)
		}
	}
	sort.Strings(result)
	return result
}
