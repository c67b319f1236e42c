package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/engine"
)

// fakeInventory serves descriptors from a fixed map, standing in for the host
// /dev tree.
type fakeInventory struct {
	nodes map[string]Descriptor
}

func (f *fakeInventory) Enumerate(index int) []string {
	return []string{
		fmt.Sprintf("/dev/nvidia%d", index),
		fmt.Sprintf("/dev/dri/card%d", index),
		fmt.Sprintf("/dev/dri/renderD%d", renderNodeBase+index),
	}
}

func (f *fakeInventory) Shared() []string {
	return []string{"/dev/nvidiactl", "/dev/nvidia-uvm"}
}

func (f *fakeInventory) Resolve(path string) (Descriptor, bool) {
	d, ok := f.nodes[path]
	return d, ok
}

// twoGPUInventory models a host with accelerators 0 and 1, their render
// nodes, and the shared control nodes. UVM sits on a dynamic major.
func twoGPUInventory() *fakeInventory {
	nodes := map[string]Descriptor{
		"/dev/nvidia0":        {HostPath: "/dev/nvidia0", Major: 195, Minor: 0, ContainerPath: "dev/nvidia0"},
		"/dev/nvidia1":        {HostPath: "/dev/nvidia1", Major: 195, Minor: 1, ContainerPath: "dev/nvidia1"},
		"/dev/dri/card0":      {HostPath: "/dev/dri/card0", Major: 226, Minor: 0, ContainerPath: "dev/dri/card0"},
		"/dev/dri/card1":      {HostPath: "/dev/dri/card1", Major: 226, Minor: 1, ContainerPath: "dev/dri/card1"},
		"/dev/dri/renderD128": {HostPath: "/dev/dri/renderD128", Major: 226, Minor: 128, ContainerPath: "dev/dri/renderD128"},
		"/dev/dri/renderD129": {HostPath: "/dev/dri/renderD129", Major: 226, Minor: 129, ContainerPath: "dev/dri/renderD129"},
		"/dev/nvidiactl":      {HostPath: "/dev/nvidiactl", Major: 195, Minor: 255, ContainerPath: "dev/nvidiactl"},
		"/dev/nvidia-uvm":     {HostPath: "/dev/nvidia-uvm", Major: 508, Minor: 0, ContainerPath: "dev/nvidia-uvm"},
	}
	return &fakeInventory{nodes: nodes}
}

func newTestPlanner(inv Inventory) *Planner {
	return NewPlanner(inv, zerolog.Nop())
}

func TestBuildIsDeterministic(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	a, err := p.Build([]int{0, 1})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b, err := p.Build([]int{1, 0})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	c, err := p.Build([]int{0, 1, 1, 0})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(a, c) {
		t.Errorf("plans differ across declaration orders:\n%v\n%v\n%v", a, b, c)
	}
}

func TestBuildDeduplicatesMajors(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	plan, err := p.Build([]int{0, 1})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Majors 195, 226 and the dynamic UVM major, each exactly once.
	if len(plan.Rules) != 3 {
		t.Fatalf("expected 3 allow rules, got %v", plan.Rules)
	}
	wantMajors := []uint32{195, 226, 508}
	for i, rule := range plan.Rules {
		if rule.Major != wantMajors[i] {
			t.Errorf("rule %d: expected major %d, got %d", i, wantMajors[i], rule.Major)
		}
	}

	// Every resolved node becomes a mount.
	if len(plan.Mounts) != 8 {
		t.Errorf("expected 8 mounts, got %d", len(plan.Mounts))
	}
}

func TestBuildEmptyIndices(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	plan, err := p.Build(nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan for no indices, got %v", plan)
	}
}

func TestBuildRejectsNegativeIndex(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	_, err := p.Build([]int{-1})
	if !engine.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildUnresolvedIndexIsSoftFailure(t *testing.T) {
	p := newTestPlanner(&fakeInventory{nodes: map[string]Descriptor{}})

	plan, err := p.Build([]int{5})
	if err != nil {
		t.Fatalf("unresolved index must not error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %v", plan)
	}
}

const baseConfig = `arch: amd64
cores: 8
hostname: gpu-node-901
memory: 32768
rootfs: local-lvm:vm-901-disk-0,size=64G
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "901.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func readConfig(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	return string(data)
}

func TestApplyAppendsPlanOnce(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())
	plan, err := p.Build([]int{0})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	path := writeConfig(t, baseConfig)

	changed, err := p.Apply(path, plan)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !changed {
		t.Fatal("first apply must report a change")
	}

	first := readConfig(t, path)
	if !strings.Contains(first, "lxc.cgroup2.devices.allow: c 195:* rwm") {
		t.Errorf("missing allow rule in:\n%s", first)
	}
	if !strings.Contains(first, "lxc.mount.entry: /dev/nvidia0 dev/nvidia0 none bind,optional,create=file") {
		t.Errorf("missing mount entry in:\n%s", first)
	}
	if !strings.HasPrefix(first, baseConfig) {
		t.Errorf("unmanaged directives must be preserved in place:\n%s", first)
	}

	// Re-application must not grow or change the file.
	changed, err = p.Apply(path, plan)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if changed {
		t.Error("second apply must be a no-op")
	}
	if got := readConfig(t, path); got != first {
		t.Errorf("config changed on re-apply:\nbefore:\n%s\nafter:\n%s", first, got)
	}
}

func TestApplyReplacesStaleDirectives(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	stale := baseConfig +
		"lxc.cgroup2.devices.allow: c 195:* rwm\n" +
		"lxc.cgroup2.devices.allow: c 226:* rwm\n" +
		"lxc.mount.entry: /dev/nvidia3 dev/nvidia3 none bind,optional,create=file\n"
	path := writeConfig(t, stale)

	plan, err := p.Build([]int{1})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := p.Apply(path, plan); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	got := readConfig(t, path)
	if strings.Contains(got, "/dev/nvidia3") {
		t.Errorf("stale mount entry must be removed:\n%s", got)
	}
	if !strings.Contains(got, "/dev/nvidia1 dev/nvidia1") {
		t.Errorf("fresh mount entry missing:\n%s", got)
	}
	if n := strings.Count(got, "c 195:* rwm"); n != 1 {
		t.Errorf("expected exactly one 195 allow rule, got %d:\n%s", n, got)
	}
}

func TestApplyEmptyPlanStripsManagedDirectives(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	stale := baseConfig +
		"lxc.cgroup2.devices.allow: c 195:* rwm\n" +
		"lxc.mount.entry: /dev/nvidia0 dev/nvidia0 none bind,optional,create=file\n"
	path := writeConfig(t, stale)

	changed, err := p.Apply(path, Plan{})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !changed {
		t.Error("stripping stale directives must report a change")
	}
	if got := readConfig(t, path); got != baseConfig {
		t.Errorf("expected base config back, got:\n%s", got)
	}
}

func TestApplyMissingConfigIsConfigurationError(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	_, err := p.Apply(filepath.Join(t.TempDir(), "absent.conf"), Plan{})
	if !engine.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var e *engine.Error
	if !engine.AsError(err, &e) || e.Code != engine.ErrCodeNotFound {
		t.Errorf("expected not-found code, got %v", err)
	}
}

func TestApplyPreservesSnapshotSections(t *testing.T) {
	p := newTestPlanner(twoGPUInventory())

	snapshot := baseConfig +
		"lxc.cgroup2.devices.allow: c 195:* rwm\n" +
		"\n[presetup]\n" +
		"arch: amd64\n" +
		"lxc.cgroup2.devices.allow: c 195:* rwm\n"
	path := writeConfig(t, snapshot)

	plan, err := p.Build([]int{0})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := p.Apply(path, plan); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	got := readConfig(t, path)
	idx := strings.Index(got, "[presetup]")
	if idx < 0 {
		t.Fatalf("snapshot section lost:\n%s", got)
	}
	tail := got[idx:]
	if !strings.Contains(tail, "c 195:* rwm") {
		t.Errorf("snapshot content must stay verbatim:\n%s", got)
	}
}
