package devices

import (
	"fmt"
	"sort"
)

// Descriptor identifies one host device node to expose inside a container.
type Descriptor struct {
	// HostPath is the character device path on the host, e.g. "/dev/nvidia0".
	HostPath string `json:"host_path"`

	// Major is the device's major number.
	Major uint32 `json:"major"`

	// Minor is the device's minor number.
	Minor uint32 `json:"minor"`

	// ContainerPath is the bind-mount target relative to the container
	// rootfs, e.g. "dev/nvidia0".
	ContainerPath string `json:"container_path"`
}

// CgroupRule grants a container access to a device class by major number.
// The minor is wildcarded: one rule covers every node of the class.
type CgroupRule struct {
	// Major is the device major number the rule grants.
	Major uint32 `json:"major"`
}

// String renders the rule in device-cgroup syntax.
func (r CgroupRule) String() string {
	return fmt.Sprintf("c %d:* rwm", r.Major)
}

// Plan is the computed passthrough decision for one container. For a fixed
// (index set, inventory) pair the plan is deterministic and independent of the
// order the indices were declared in.
type Plan struct {
	// Rules are the device-cgroup allow rules, deduplicated by major and
	// sorted ascending.
	Rules []CgroupRule `json:"rules"`

	// Mounts are the bind-mount entries, sorted by host path.
	Mounts []Descriptor `json:"mounts"`
}

// Empty reports whether the plan grants nothing.
func (p Plan) Empty() bool {
	return len(p.Rules) == 0 && len(p.Mounts) == 0
}

// normalize sorts rules and mounts into their canonical order.
func (p *Plan) normalize() {
	sort.Slice(p.Rules, func(i, j int) bool { return p.Rules[i].Major < p.Rules[j].Major })
	sort.Slice(p.Mounts, func(i, j int) bool { return p.Mounts[i].HostPath < p.Mounts[j].HostPath })
}
