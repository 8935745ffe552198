package runner

import (
	"strings"
)

// ParseOutput splits a plugin's raw stdout into the human-readable output
// and its performance data, per spec: each line is split at its first `|`;
// everything left of it is kept as output text, everything right of it is
// parsed as semicolon-free key=value pairs and merged into performanceData.
//
// Plugins commonly emit performance data only on the final line ("OK - load
// 0.3|load1=0.3;1;5") but some emit it per line for multi-line output, so
// every line is checked independently.
func ParseOutput(raw string) (output string, performanceData map[string]string) {
	performanceData = make(map[string]string)

	lines := strings.Split(raw, "\n")
	outLines := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		idx := strings.IndexByte(line, '|')
		if idx < 0 {
			outLines = append(outLines, line)
			continue
		}

		outLines = append(outLines, line[:idx])
		parsePerfData(line[idx+1:], performanceData)
	}

	return strings.TrimRight(strings.Join(outLines, "\n"), "\n"), performanceData
}

// parsePerfData parses a Nagios-style performance data segment
// ("load1=0.3;1;5 load5=0.8") into key=value entries, keeping only the
// value up to the first `;` (warn/crit/min/max thresholds are discarded —
// performance_data here is a flat key=value map, not threshold-aware).
func parsePerfData(segment string, into map[string]string) {
	for _, field := range strings.Fields(segment) {
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		key := field[:eq]
		value := field[eq+1:]
		if semi := strings.IndexByte(value, ';'); semi >= 0 {
			value = value[:semi]
		}
		into[key] = value
	}
}
