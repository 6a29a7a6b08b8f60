package tor

import "strings"

// parseKeyValues extracts KEY=VALUE pairs from control-port reply lines.
// Values may be quoted; pairs may share a line separated by spaces, as in
// AUTHCHALLENGE replies.
func parseKeyValues(lines []string) map[string]string {
	out := make(map[string]string)
	for _, line := range lines {
		for _, field := range splitFields(line) {
			k, v, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			out[k] = unquote(v)
		}
	}
	return out
}

func parseProtocolInfo(lines []string) *ProtocolInfoReply {
	info := &ProtocolInfoReply{}
	for _, line := range lines {
		if !strings.HasPrefix(line, "AUTH ") {
			continue
		}
		for _, field := range splitFields(strings.TrimPrefix(line, "AUTH ")) {
			k, v, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch k {
			case "METHODS":
				info.AuthMethods = strings.Split(unquote(v), ",")
			case "COOKIEFILE":
				info.CookieFile = unquote(v)
			}
		}
	}
	return info
}

// splitFields splits a reply line on spaces, keeping quoted values intact.
func splitFields(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
		v = strings.ReplaceAll(v, `\\`, `\`)
		v = strings.ReplaceAll(v, `\"`, `"`)
	}
	return v
}

// quoted renders a value as a control-port QuotedString.
func quoted(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
