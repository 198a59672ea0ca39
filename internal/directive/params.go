package directive

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Characters outside the printable subset OPI comments may carry.
	// Forward/backward slash, colon and angle brackets stay allowed so
	// path syntax and <hex> character tags survive until cleanup.
	invalidChars  = regexp.MustCompile("[^\x20\x21\x23-\x29\x2b-\x3e\x40-\x7b\x7d\x7e]")
	psCharTags    = regexp.MustCompile("<[0-9a-fA-F]+>")
	psEscapeCodes = regexp.MustCompile(`\\\d+`)
)

// splitKeyValue splits a comment line into its leading key token and the
// remainder, both trimmed.
func splitKeyValue(line string) (key, value string) {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// cleanFileName normalizes a filename value as written in an OPI comment:
// parenthesized PostScript strings are unwrapped and their escapes
// resolved, unrepresentable characters and <hex> tags become '?'.
func cleanFileName(v string) string {
	v = strings.TrimRight(v, "\r\n")
	v = invalidChars.ReplaceAllString(v, "?")
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") && len(v) >= 2 {
		v = v[1 : len(v)-1]
		// Double backslashes are literal backslashes; hide them behind a
		// placeholder while single-backslash escapes are stripped.
		v = strings.ReplaceAll(v, `\\`, "|")
		v = psEscapeCodes.ReplaceAllString(v, "?")
		v = strings.ReplaceAll(v, `\`, "")
		v = strings.ReplaceAll(v, "|", `\`)
	}
	return psCharTags.ReplaceAllString(v, "?")
}

// floatList parses whitespace-separated floats, skipping unparsable
// tokens. Layout applications pad these lists inconsistently.
func floatList(v string) []float64 {
	var out []float64
	for _, tok := range strings.Fields(v) {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// intList parses whitespace-separated numbers, rounding fractional
// values to the nearest integer.
func intList(v string) []int {
	var out []int
	for _, tok := range strings.Fields(v) {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, int(math.Round(f)))
		}
	}
	return out
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// parseColor parses "%ALDImageColor:" values: four ink fractions
// followed by an optionally parenthesized ink name.
func parseColor(v string) (color []float64, name string) {
	fields := strings.SplitN(v, " ", 5)
	joined := strings.Join(fields[:min(4, len(fields))], " ")
	color = floatList(joined)
	if len(fields) == 5 {
		name = strings.TrimSpace(fields[4])
		name = strings.TrimPrefix(name, "(")
		name = strings.TrimSuffix(name, ")")
	}
	return color, name
}

func hypot(a, b float64) float64 { return math.Sqrt(a*a + b*b) }

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
