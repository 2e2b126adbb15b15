package workspace

import (
	"fmt"
	"regexp"
	"strings"
)

var interactivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\binput\s*\(`),
	regexp.MustCompile(`\bsys\.stdin\b`),
	regexp.MustCompile(`\breadline\s*\(`),
}

// CheckPyGuardrail lexes Python source, neutralizing comments and string
// literals, and rejects content containing interactive-input patterns.
// Applies to write_code, patch_code, replace_code_block, and write_file
// targeting a .py path.
func CheckPyGuardrail(path, content string) error {
	if !strings.HasSuffix(path, ".py") {
		return nil
	}
	code := neutralizeCommentsAndStrings(content)
	for _, re := range interactivePatterns {
		if re.MatchString(code) {
			return fmt.Errorf("interactive input pattern %q is not allowed in generated Python", re.String())
		}
	}
	return nil
}

// neutralizeCommentsAndStrings replaces the contents of Python comments and
// string literals (including triple-quoted) with spaces, so a pattern
// search sees only executable tokens, never text mentioned inside a string
// or comment.
func neutralizeCommentsAndStrings(src string) string {
	var b strings.Builder
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '#':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				b.WriteString(strings.Repeat(" ", n-i))
				i = n
				continue
			}
			b.WriteString(strings.Repeat(" ", j))
			b.WriteByte('\n')
			i += j + 1
		case c == '\'' || c == '"':
			quote := c
			triple := i+2 < n && src[i+1] == quote && src[i+2] == quote
			var end int
			if triple {
				delim := string(quote) + string(quote) + string(quote)
				rel := strings.Index(src[i+3:], delim)
				if rel < 0 {
					end = n
				} else {
					end = i + 3 + rel + 3
				}
			} else {
				end = i + 1
				for end < n {
					if src[end] == '\\' {
						end += 2
						continue
					}
					if src[end] == quote {
						end++
						break
					}
					if src[end] == '\n' {
						break
					}
					end++
				}
			}
			for k := i; k < end && k < n; k++ {
				if src[k] == '\n' {
					b.WriteByte('\n')
				} else {
					b.WriteByte(' ')
				}
			}
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
