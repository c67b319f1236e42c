package devices

import (
	"fmt"
	"strings"
)

// Container configuration keys the planner manages.
const (
	keyDeviceAllow = "lxc.cgroup2.devices.allow"
	keyMountEntry  = "lxc.mount.entry"
)

// managedPathPrefixes are the host device path prefixes whose mount entries
// belong to the passthrough planner.
var managedPathPrefixes = []string{"/dev/nvidia", "/dev/dri/"}

// wellKnownMajors are accelerator device classes whose allow rules the
// planner always owns, even when the node that produced them is gone:
// 195 is the NVIDIA compute class, 226 the DRM class.
var wellKnownMajors = map[uint32]bool{195: true, 226: true}

// Directive is one typed line of a container configuration file. Lines that
// are not key/value directives (comments, blanks, snapshot section headers)
// keep their raw text and pass through serialization untouched.
type Directive struct {
	// Key is the directive key, empty for passthrough-verbatim lines.
	Key string

	// Value is the directive value.
	Value string

	// Raw is the original line for non-directive lines.
	Raw string
}

// String renders the directive back to its config-file line.
func (d Directive) String() string {
	if d.Key == "" {
		return d.Raw
	}
	return d.Key + ": " + d.Value
}

// ParseConfig splits a container configuration into typed directives.
// Everything after the first snapshot section header is treated as verbatim:
// snapshots record history and are never rewritten.
func ParseConfig(text string) []Directive {
	var directives []Directive
	inSnapshot := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inSnapshot = true
		}
		if inSnapshot || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			directives = append(directives, Directive{Raw: line})
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			directives = append(directives, Directive{Raw: line})
			continue
		}
		directives = append(directives, Directive{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}

	// Drop a single trailing blank produced by a final newline; Serialize
	// re-adds it so repeated parse/serialize cycles are stable.
	if n := len(directives); n > 0 && directives[n-1].Key == "" && directives[n-1].Raw == "" {
		directives = directives[:n-1]
	}

	return directives
}

// SerializeConfig renders directives back into configuration text with a
// trailing newline.
func SerializeConfig(directives []Directive) string {
	var b strings.Builder
	for _, d := range directives {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// isManaged reports whether a directive was produced by a previous
// passthrough application. planMajors are the majors of the fresh plan, so
// rules from dynamically numbered device classes (e.g. UVM) are recognized
// even though their majors are not well known.
func isManaged(d Directive, planMajors map[uint32]bool) bool {
	switch d.Key {
	case keyMountEntry:
		for _, prefix := range managedPathPrefixes {
			if strings.HasPrefix(d.Value, prefix) {
				return true
			}
		}
		return false
	case keyDeviceAllow:
		major, ok := parseAllowRuleMajor(d.Value)
		if !ok {
			return false
		}
		return wellKnownMajors[major] || planMajors[major]
	default:
		return false
	}
}

// parseAllowRuleMajor extracts the major number from a character-device
// cgroup allow rule of the form "c <major>:<minor|*> <perms>".
func parseAllowRuleMajor(value string) (uint32, bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 || fields[0] != "c" {
		return 0, false
	}
	majorPart, _, found := strings.Cut(fields[1], ":")
	if !found {
		return 0, false
	}
	var major uint32
	if _, err := fmt.Sscanf(majorPart, "%d", &major); err != nil {
		return 0, false
	}
	return major, true
}

// snapshotBoundary returns the index of the first snapshot section header, or
// len(directives) when there is none. Fresh passthrough directives must land
// before it: everything after the header belongs to recorded snapshots.
func snapshotBoundary(directives []Directive) int {
	for i, d := range directives {
		if d.Key != "" {
			continue
		}
		trimmed := strings.TrimSpace(d.Raw)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			return i
		}
	}
	return len(directives)
}

// planDirectives renders a plan into the directives to append: allow rules
// first, then mount entries, both in canonical order.
func planDirectives(plan Plan) []Directive {
	directives := make([]Directive, 0, len(plan.Rules)+len(plan.Mounts))
	for _, rule := range plan.Rules {
		directives = append(directives, Directive{Key: keyDeviceAllow, Value: rule.String()})
	}
	for _, m := range plan.Mounts {
		directives = append(directives, Directive{
			Key:   keyMountEntry,
			Value: fmt.Sprintf("%s %s none bind,optional,create=file", m.HostPath, m.ContainerPath),
		})
	}
	return directives
}
