package config

import (
	"fmt"
	"sort"
	"strings"
)

// DirectivePrefix starts a ++key=value directive on the command line.
const DirectivePrefix = "++"

// keywords are the directives a bridge accepts. The table is fixed when the
// program starts.
var keywords = map[string]bool{
	"chip_config":   true,
	"chrome_rom":    true,
	"load_files":    true,
	"load_pk":       true,
	"load_rom":      true,
	"load_to_flash": true,
	"mems":          true,
	"normal_load":   true,
	"shift_file":    true,
}

// IsKeyword tells whether key names a directive.
func IsKeyword(key string) bool {
	return keywords[key]
}

// Keywords lists the directive keys, sorted.
func Keywords() []string {
	keys := make([]string, 0, len(keywords))
	for k := range keywords {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// IsDirective tells whether a command line argument is a directive.
func IsDirective(arg string) bool {
	return strings.HasPrefix(arg, DirectivePrefix)
}

// ApplyDirective records a ++key=value argument. A mems directive also sets
// the memory layout.
func (c *Config) ApplyDirective(arg string) error {
	if !IsDirective(arg) {
		return &Error{
			Field:  "directive",
			Reason: fmt.Sprintf("%q does not start with %s", arg, DirectivePrefix),
		}
	}

	key, value, _ := strings.Cut(strings.TrimPrefix(arg, DirectivePrefix), "=")
	if !IsKeyword(key) {
		return &Error{
			Field:  "directive",
			Reason: fmt.Sprintf("unknown key %q", key),
		}
	}

	if c.Directives == nil {
		c.Directives = map[string]string{}
	}

	c.Directives[key] = value

	if key == "mems" {
		c.Memory = value
	}

	return nil
}

// SplitDirectives applies the directives among args and returns the other
// arguments in order.
func (c *Config) SplitDirectives(args []string) ([]string, error) {
	var rest []string

	for _, arg := range args {
		if !IsDirective(arg) {
			rest = append(rest, arg)
			continue
		}

		if err := c.ApplyDirective(arg); err != nil {
			return nil, err
		}
	}

	return rest, nil
}
