package parser

import (
	"fmt"
	"sort"
	"strings"

	"codeact/internal/codeact"
)

// Serialize renders a single action back to its canonical XML form, CDATA
// wrapping payload fields. The control loop (F) uses this to synthesize a
// single-action assistant message per action in a multi-action turn, so
// tool-call/result adjacency (and prune_hash inheritance) is preserved.
func Serialize(act codeact.Action) string {
	name := string(act.Type)
	keys := make([]string, 0, len(act.Params))
	for k := range act.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	for _, k := range keys {
		v := act.Params[k]
		text := stringifyParam(v)
		b.WriteString("<")
		b.WriteString(k)
		b.WriteString(">")
		if payloadFields[k] {
			fmt.Fprintf(&b, "<![CDATA[%s]]>", text)
		} else {
			b.WriteString(text)
		}
		b.WriteString("</")
		b.WriteString(k)
		b.WriteString(">")
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}
