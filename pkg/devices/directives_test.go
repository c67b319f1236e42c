package devices

import (
	"testing"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	text := "# managed by hutch\n" +
		"arch: amd64\n" +
		"\n" +
		"rootfs: local-lvm:vm-901-disk-0,size=64G\n" +
		"not a directive line\n"

	directives := ParseConfig(text)
	if got := SerializeConfig(directives); got != text {
		t.Errorf("round trip changed content:\nin:\n%s\nout:\n%s", text, got)
	}

	// A second cycle is stable.
	again := SerializeConfig(ParseConfig(SerializeConfig(directives)))
	if again != text {
		t.Errorf("second round trip changed content:\n%s", again)
	}
}

func TestParseConfigTypesDirectives(t *testing.T) {
	directives := ParseConfig("cores: 8\n# comment\nlxc.mount.entry: /dev/nvidia0 dev/nvidia0 none bind\n")

	if len(directives) != 3 {
		t.Fatalf("expected 3 directives, got %d", len(directives))
	}
	if directives[0].Key != "cores" || directives[0].Value != "8" {
		t.Errorf("unexpected first directive: %+v", directives[0])
	}
	if directives[1].Key != "" || directives[1].Raw != "# comment" {
		t.Errorf("comment must stay raw: %+v", directives[1])
	}
	if directives[2].Key != keyMountEntry {
		t.Errorf("unexpected mount directive: %+v", directives[2])
	}
}

func TestParseConfigSnapshotIsVerbatim(t *testing.T) {
	text := "cores: 8\n[snap1]\ncores: 4\n"
	directives := ParseConfig(text)

	if directives[0].Key != "cores" {
		t.Errorf("pre-snapshot directive must be typed: %+v", directives[0])
	}
	for _, d := range directives[1:] {
		if d.Key != "" {
			t.Errorf("snapshot line must stay raw: %+v", d)
		}
	}
	if got := snapshotBoundary(directives); got != 1 {
		t.Errorf("expected boundary 1, got %d", got)
	}
}

func TestIsManaged(t *testing.T) {
	planMajors := map[uint32]bool{508: true}

	tests := []struct {
		name    string
		d       Directive
		managed bool
	}{
		{
			name:    "nvidia mount",
			d:       Directive{Key: keyMountEntry, Value: "/dev/nvidia0 dev/nvidia0 none bind,optional,create=file"},
			managed: true,
		},
		{
			name:    "dri mount",
			d:       Directive{Key: keyMountEntry, Value: "/dev/dri/renderD128 dev/dri/renderD128 none bind,optional,create=file"},
			managed: true,
		},
		{
			name:    "user mount untouched",
			d:       Directive{Key: keyMountEntry, Value: "/tank/data mnt/data none bind"},
			managed: false,
		},
		{
			name:    "well-known allow rule",
			d:       Directive{Key: keyDeviceAllow, Value: "c 195:* rwm"},
			managed: true,
		},
		{
			name:    "plan-major allow rule",
			d:       Directive{Key: keyDeviceAllow, Value: "c 508:* rwm"},
			managed: true,
		},
		{
			name:    "foreign allow rule untouched",
			d:       Directive{Key: keyDeviceAllow, Value: "c 10:200 rwm"},
			managed: false,
		},
		{
			name:    "block device rule untouched",
			d:       Directive{Key: keyDeviceAllow, Value: "b 8:* rwm"},
			managed: false,
		},
		{
			name:    "unrelated directive",
			d:       Directive{Key: "cores", Value: "8"},
			managed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isManaged(tt.d, planMajors); got != tt.managed {
				t.Errorf("isManaged(%+v) = %v, want %v", tt.d, got, tt.managed)
			}
		})
	}
}

func TestParseAllowRuleMajor(t *testing.T) {
	tests := []struct {
		value string
		major uint32
		ok    bool
	}{
		{"c 195:* rwm", 195, true},
		{"c 226:128 rw", 226, true},
		{"b 8:* rwm", 0, false},
		{"c malformed", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		major, ok := parseAllowRuleMajor(tt.value)
		if major != tt.major || ok != tt.ok {
			t.Errorf("parseAllowRuleMajor(%q) = %d,%v want %d,%v",
				tt.value, major, ok, tt.major, tt.ok)
		}
	}
}

func TestCgroupRuleString(t *testing.T) {
	if got := (CgroupRule{Major: 195}).String(); got != "c 195:* rwm" {
		t.Errorf("unexpected rule rendering %q", got)
	}
}
