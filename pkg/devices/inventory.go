package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Inventory enumerates host accelerator device nodes. Enumerate returns the
// candidate paths for one accelerator index; Shared returns the control and
// runtime nodes common to every accelerator on the host. Resolve stats a
// candidate and reports whether it exists as a character device.
type Inventory interface {
	Enumerate(index int) []string
	Shared() []string
	Resolve(path string) (Descriptor, bool)
}

// renderNodeBase is the minor offset of the first DRM render node.
const renderNodeBase = 128

// sharedDevicePaths are the control and runtime nodes shared by all
// accelerators. The capability nodes are optional on most driver versions.
var sharedDevicePaths = []string{
	"/dev/nvidiactl",
	"/dev/nvidia-uvm",
	"/dev/nvidia-uvm-tools",
	"/dev/nvidia-modeset",
	"/dev/nvidia-caps/nvidia-cap1",
	"/dev/nvidia-caps/nvidia-cap2",
}

// HostInventory scans the host's /dev tree. The dev root is configurable so
// tests can point it at a fixture tree.
type HostInventory struct {
	devRoot string
}

// NewHostInventory creates an inventory rooted at /dev.
func NewHostInventory() *HostInventory {
	return &HostInventory{devRoot: "/dev"}
}

// NewHostInventoryAt creates an inventory rooted at an alternate dev tree.
func NewHostInventoryAt(devRoot string) *HostInventory {
	return &HostInventory{devRoot: devRoot}
}

// Enumerate returns the candidate device paths for one accelerator index:
// the primary compute node plus the card and render nodes.
func (inv *HostInventory) Enumerate(index int) []string {
	return []string{
		filepath.Join(inv.devRoot, fmt.Sprintf("nvidia%d", index)),
		filepath.Join(inv.devRoot, "dri", fmt.Sprintf("card%d", index)),
		filepath.Join(inv.devRoot, "dri", fmt.Sprintf("renderD%d", renderNodeBase+index)),
	}
}

// Shared returns the control and runtime nodes common to all accelerators.
func (inv *HostInventory) Shared() []string {
	shared := make([]string, 0, len(sharedDevicePaths))
	for _, p := range sharedDevicePaths {
		shared = append(shared, filepath.Join(inv.devRoot, strings.TrimPrefix(p, "/dev/")))
	}
	return shared
}

// Resolve stats path and returns its descriptor when it exists as a character
// device. The container path mirrors the host path relative to the dev root.
func (inv *HostInventory) Resolve(path string) (Descriptor, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Descriptor{}, false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return Descriptor{}, false
	}

	rel, err := filepath.Rel(inv.devRoot, path)
	if err != nil {
		return Descriptor{}, false
	}

	rdev := uint64(st.Rdev)
	return Descriptor{
		HostPath:      path,
		Major:         unix.Major(rdev),
		Minor:         unix.Minor(rdev),
		ContainerPath: filepath.Join("dev", rel),
	}, true
}

// PCIAddress returns the PCI identifier for an accelerator index by scanning
// the driver's proc tree, or "" when unavailable. Used only for logging.
func (inv *HostInventory) PCIAddress(index int) string {
	gpusDir := "/proc/driver/nvidia/gpus"
	entries, err := os.ReadDir(gpusDir)
	if err != nil {
		return ""
	}
	needle := fmt.Sprintf("Device Minor: \t %d", index)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(gpusDir, e.Name(), "information"))
		if err != nil {
			continue
		}
		if strings.Contains(string(data), needle) {
			return e.Name()
		}
	}
	return ""
}
