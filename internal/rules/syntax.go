package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type rule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser turns one line of a rules file into a rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (rule, error)
}

func defaultRuleParsers() []RuleParser {
	return []RuleParser{patternParser{}, literalParser{}}
}

func parseRules(contents string, parsers []RuleParser) ([]rule, error) {
	lines := strings.Split(contents, "\n")
	out := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var parsed rule
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			r, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			parsed = r
			break
		}
		if parsed == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// literalParser handles `from => to`, matched case-insensitively.
type literalParser struct{}

func (literalParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalParser) Parse(line string) (rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literal{re: re, to: strings.TrimSpace(to)}, nil
}

type literal struct {
	re *regexp.Regexp
	to string
}

func (l literal) Apply(input string) (string, bool) {
	output := l.re.ReplaceAllLiteralString(input, l.to)
	return output, output != input
}

// patternParser handles sed-style `s/pattern/replacement/flags`. Patterns are
// case-insensitive unless flags say otherwise; without `g` only the first
// match is replaced.
type patternParser struct{}

func (patternParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}

func (patternParser) Parse(line string) (rule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isWordByte(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	expr, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}
	inline, global, err := regexFlags(strings.TrimSpace(line[pos:]))
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile("(?" + inline + ")" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return pattern{re: re, replacement: replacement, global: global}, nil
}

// regexFlags translates sed flags into Go inline flags. Case folding is
// always on.
func regexFlags(flags string) (inline string, global bool, err error) {
	inline = "i"
	for _, flag := range flags {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm':
			if !strings.ContainsRune(inline, 'm') {
				inline += "m"
			}
		case 's':
			if !strings.ContainsRune(inline, 's') {
				inline += "s"
			}
		default:
			return "", false, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	return inline, global, nil
}

type pattern struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (p pattern) Apply(input string) (string, bool) {
	if p.global {
		output := p.re.ReplaceAllString(input, p.replacement)
		return output, output != input
	}

	loc := p.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := p.re.ExpandString(nil, p.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// readDelimited reads up to the next unescaped delimiter. Escapes are kept so
// the regexp compiler sees them.
func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
