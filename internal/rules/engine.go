package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed spoken.rules
var spokenRules string

const defaultIterationLimit = 30

// Options controls how a rule set is assembled.
type Options struct {
	// Path is an optional user rules file applied after the built-in rules.
	// A missing file is not an error.
	Path string
	// IterationLimit caps how many passes Apply makes before giving up on
	// reaching a fixed point.
	IterationLimit int
	// SkipBuiltins disables the spoken-form rules shipped with the binary.
	SkipBuiltins bool
	// Parsers replaces the default rule syntaxes.
	Parsers []RuleParser
}

// Engine rewrites instructions into a form that reads well aloud.
type Engine struct {
	rules     []rule
	loopLimit int
}

// Load compiles the built-in spoken-form rules followed by the user's file.
func Load(opts Options) (*Engine, error) {
	if opts.IterationLimit <= 0 {
		opts.IterationLimit = defaultIterationLimit
	}
	parsers := opts.Parsers
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	var compiled []rule
	if !opts.SkipBuiltins {
		builtins, err := parseRules(spokenRules, parsers)
		if err != nil {
			return nil, fmt.Errorf("built-in spoken rules: %w", err)
		}
		compiled = append(compiled, builtins...)
	}

	if path := strings.TrimSpace(opts.Path); path != "" {
		contents, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		default:
			user, err := parseRules(string(contents), parsers)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
			}
			compiled = append(compiled, user...)
		}
	}

	return &Engine{rules: compiled, loopLimit: opts.IterationLimit}, nil
}

// Apply rewrites text until no rule changes it, then folds line breaks and
// repeated spaces so the synthesizer gets one flowing paragraph.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, r := range e.rules {
			if next, ok := r.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return flatten(result), nil
		}
	}
	return flatten(result), nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

func flatten(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			parts = append(parts, line)
		}
	}
	for i := 0; i < len(parts)-1; i++ {
		if !strings.ContainsAny(parts[i][len(parts[i])-1:], ".!?:;,") {
			parts[i] += "."
		}
	}
	return strings.Join(parts, " ")
}
