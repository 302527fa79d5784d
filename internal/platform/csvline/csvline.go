// Package csvline encodes and decodes a single record row as one
// comma-separated line.
//
// Fields containing a comma, a double quote or a line break are wrapped in
// double quotes with internal quotes doubled. Decoding is lenient: it never
// fails, and a quote that is never closed runs to the end of the line.
package csvline

import "strings"

const (
	// Separator is the field delimiter.
	Separator = ','

	// Quote wraps fields that contain special characters.
	Quote = '"'
)

// Join encodes fields into a single line without a trailing terminator.
func Join(fields ...string) string {
	// A lone empty field is quoted so it does not encode as an empty line.
	if len(fields) == 1 && fields[0] == "" {
		return `""`
	}
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(Separator)
		}
		if !needsQuoting(f) {
			sb.WriteString(f)
			continue
		}
		sb.WriteByte(Quote)
		sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
		sb.WriteByte(Quote)
	}
	return sb.String()
}

// Split decodes a line produced by Join back into its fields. An empty line
// yields no fields. Column counts are left to the caller.
func Split(line string) []string {
	if line == "" {
		return nil
	}

	var out []string
	i, n := 0, len(line)
	for i < n {
		if line[i] == Quote {
			var cell strings.Builder
			i++
			for i < n {
				c := line[i]
				i++
				if c != Quote {
					cell.WriteByte(c)
					continue
				}
				if i < n && line[i] == Quote {
					cell.WriteByte(Quote)
					i++
					continue
				}
				break
			}
			out = append(out, cell.String())
			// Skip anything between the closing quote and the next separator.
			for i < n && line[i] != Separator {
				i++
			}
			if i < n {
				i++
				if i == n {
					out = append(out, "")
				}
			}
			continue
		}

		j := strings.IndexByte(line[i:], Separator)
		if j < 0 {
			out = append(out, line[i:])
			break
		}
		out = append(out, line[i:i+j])
		i += j + 1
		if i == n {
			out = append(out, "")
		}
	}
	return out
}

// Field returns fields[i], or "" when the row is too short.
func Field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// Complete reports whether line closes every quote it opens. A physical line
// that is not complete continues on the next line of the file.
func Complete(line string) bool {
	return strings.Count(line, `"`)%2 == 0
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, ",\"\r\n")
}
