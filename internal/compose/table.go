package compose

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"keypipe/internal/keysym"
)

// localeDir is where X11 installs per-locale compose tables.
const localeDir = "/usr/share/X11/locale"

// ResolveLocale returns the locale that selects the compose table, using
// the first non-empty of LC_ALL, LC_CTYPE, LANG, else "C".
func ResolveLocale() string {
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if val := os.Getenv(v); val != "" {
			return val
		}
	}
	return "C"
}

// TablePath locates the compose file for a locale: $XCOMPOSEFILE first,
// then ~/.XCompose, then the system compose.dir mapping. Returns "" when
// no table applies (e.g. the C locale with no user overrides).
func TablePath(locale string) string {
	if p := os.Getenv("XCOMPOSEFILE"); p != "" {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".XCompose")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	dir, err := parseComposeDir(filepath.Join(localeDir, "compose.dir"))
	if err != nil {
		return ""
	}
	if rel, ok := dir[locale]; ok {
		return filepath.Join(localeDir, rel)
	}
	// UTF-8 locales share one table.
	if strings.HasSuffix(locale, ".UTF-8") || strings.HasSuffix(locale, ".utf8") {
		if rel, ok := dir["en_US.UTF-8"]; ok {
			return filepath.Join(localeDir, rel)
		}
	}
	return ""
}

// parseComposeDir reads the X11 compose.dir index, mapping locale names to
// compose file paths relative to the locale directory.
func parseComposeDir(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Format: "<path>: <locale>" with the colon glued to the path.
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		rel := strings.TrimSpace(line[:idx])
		loc := strings.TrimSpace(line[idx+1:])
		if rel == "" || loc == "" {
			continue
		}
		if _, dup := out[loc]; !dup {
			out[loc] = rel
		}
	}
	return out, sc.Err()
}

// LoadForLocale builds the compose table for a locale. A missing table is
// not an error at this level; callers treat (nil, error) and an empty
// table the same way: no dead-key support.
func LoadForLocale(locale string) (*Table, error) {
	path := TablePath(locale)
	if path == "" {
		return nil, fmt.Errorf("compose: no table for locale %q", locale)
	}
	return LoadTable(path)
}

// LoadTable parses an XCompose file into a sequence trie.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("compose: open table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads XCompose syntax: lines of the form
//
//	<keysym> <keysym> ... : "text" result_keysym
//
// Comments, include directives, and modifier-qualified lines are skipped,
// as are lines naming keysyms outside the supported set.
func Parse(r io.Reader) (*Table, error) {
	table := &Table{root: &node{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.HasPrefix(line, "<") {
			continue
		}
		seq, text, result, ok := parseLine(line)
		if !ok || len(seq) == 0 {
			continue
		}
		if result == keysym.NoSymbol && text != "" {
			runes := []rune(text)
			if len(runes) == 1 {
				result = keysym.FromRune(runes[0])
			}
		}
		table.add(seq, text, result)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("compose: read table: %w", err)
	}
	return table, nil
}

func parseLine(line string) (seq []uint32, text string, result uint32, ok bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return nil, "", 0, false
	}
	lhs, rhs := line[:colon], line[colon+1:]

	for {
		open := strings.Index(lhs, "<")
		if open < 0 {
			break
		}
		closeIdx := strings.Index(lhs[open:], ">")
		if closeIdx < 0 {
			return nil, "", 0, false
		}
		name := lhs[open+1 : open+closeIdx]
		sym := keysym.FromName(name)
		if sym == keysym.NoSymbol {
			return nil, "", 0, false
		}
		seq = append(seq, sym)
		lhs = lhs[open+closeIdx+1:]
	}

	text, rest, ok := parseQuoted(strings.TrimSpace(rhs))
	if !ok {
		return nil, "", 0, false
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		// Result keysym name, possibly followed by a comment.
		if i := strings.IndexAny(rest, " \t#"); i >= 0 {
			rest = rest[:i]
		}
		result = keysym.FromName(rest)
	}
	return seq, text, result, true
}

// parseQuoted extracts a double-quoted string honoring \" and \\ escapes.
func parseQuoted(s string) (text, rest string, ok bool) {
	if len(s) == 0 || s[0] != '"' {
		return "", "", false
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		if c == '"' {
			return b.String(), s[i+1:], true
		}
		b.WriteByte(c)
		i++
	}
	return "", "", false
}
