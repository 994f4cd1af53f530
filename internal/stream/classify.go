package stream

import "strings"

// Literal markers recognised at the start of a trimmed line. Longer markers
// that share a prefix come first.
var markers = []struct {
	prefix   string
	severity Severity
}{
	{"[ERROR]", SeverityError},
	{"[WARNING]", SeverityWarn},
	{"[WARN]", SeverityWarn},
	{"[INFO]", SeverityInfo},
}

// Classify returns the severity of line read from origin.
//
// An explicit marker at the start of the trimmed line wins. Without one,
// stderr lines are errors and everything else is informational.
func Classify(origin Origin, line string) Severity {
	trimmed := strings.TrimSpace(line)
	for _, m := range markers {
		if strings.HasPrefix(trimmed, m.prefix) {
			return m.severity
		}
	}
	if origin == OriginSecondary {
		return SeverityError
	}
	return SeverityInfo
}
