package devices

import (
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/engine"
)

// Planner converts a declared accelerator index set into a passthrough plan
// and applies it idempotently to a container's configuration file.
type Planner struct {
	inventory Inventory
	logger    zerolog.Logger
}

// NewPlanner creates a planner over the given inventory.
func NewPlanner(inventory Inventory, logger zerolog.Logger) *Planner {
	return &Planner{
		inventory: inventory,
		logger:    logger.With().Str("component", "passthrough").Logger(),
	}
}

// Build computes the passthrough plan for the given accelerator indices.
// Indices are deduplicated and the result is canonical: supplying [1,0] and
// [0,1] yields the same plan. An index with no resolvable host device
// contributes nothing — a warning, never an error. A non-empty request that
// resolves zero devices still yields an (empty) plan; the stage completes.
func (p *Planner) Build(indices []int) (Plan, error) {
	var plan Plan
	if len(indices) == 0 {
		return plan, nil
	}

	seen := make(map[int]bool, len(indices))
	ordered := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 {
			return Plan{}, engine.NewConfigurationError("accelerator index must be non-negative", nil).
				WithCode(engine.ErrCodeValidation)
		}
		if !seen[idx] {
			seen[idx] = true
			ordered = append(ordered, idx)
		}
	}
	sort.Ints(ordered)

	candidates := make([]string, 0, len(ordered)*3+len(sharedDevicePaths))
	resolvedAny := false
	for _, idx := range ordered {
		paths := p.inventory.Enumerate(idx)
		candidates = append(candidates, paths...)

		// The primary compute node decides whether the index resolved at all.
		if _, ok := p.inventory.Resolve(paths[0]); ok {
			resolvedAny = true
		} else {
			p.logger.Warn().Int("index", idx).Str("path", paths[0]).
				Msg("Accelerator index has no host device node")
		}
	}
	candidates = append(candidates, p.inventory.Shared()...)

	majors := make(map[uint32]bool)
	for _, path := range candidates {
		desc, ok := p.inventory.Resolve(path)
		if !ok {
			p.logger.Debug().Str("path", path).Msg("Optional device node absent, skipping")
			continue
		}
		if !majors[desc.Major] {
			majors[desc.Major] = true
			plan.Rules = append(plan.Rules, CgroupRule{Major: desc.Major})
		}
		plan.Mounts = append(plan.Mounts, desc)
	}
	plan.normalize()

	if !resolvedAny && plan.Empty() {
		p.logger.Warn().Ints("indices", ordered).
			Msg("No host devices resolved for requested accelerators; plan is empty")
	}

	return plan, nil
}

// Apply rewrites the container configuration at configPath: every previously
// applied passthrough directive is removed, then the fresh plan is appended.
// Re-application is a no-op on content; the configuration never grows across
// repeated runs. Returns whether the file content changed, so the caller
// knows a container restart is required for the new device grants.
//
// Failure modes are fatal and never retried: the container must already
// exist (absent config file) and the file must be writable.
func (p *Planner) Apply(configPath string, plan Plan) (bool, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, engine.NewConfigurationError("container configuration file absent", err).
				WithCode(engine.ErrCodeNotFound)
		}
		return false, engine.NewEnvironmentalError("container configuration unreadable", err).
			WithCode(engine.ErrCodeUnwritable)
	}

	planMajors := make(map[uint32]bool, len(plan.Rules))
	for _, r := range plan.Rules {
		planMajors[r.Major] = true
	}

	parsed := ParseConfig(string(data))
	kept := make([]Directive, 0, len(parsed))
	removed := 0
	for _, d := range parsed {
		if isManaged(d, planMajors) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	boundary := snapshotBoundary(kept)
	next := make([]Directive, 0, len(kept)+len(plan.Rules)+len(plan.Mounts))
	next = append(next, kept[:boundary]...)
	next = append(next, planDirectives(plan)...)
	next = append(next, kept[boundary:]...)

	rendered := SerializeConfig(next)
	if rendered == string(data) {
		p.logger.Debug().Str("config", configPath).Msg("Passthrough configuration already current")
		return false, nil
	}

	info, err := os.Stat(configPath)
	if err != nil {
		return false, engine.NewEnvironmentalError("container configuration unreadable", err).
			WithCode(engine.ErrCodeUnwritable)
	}
	if err := os.WriteFile(configPath, []byte(rendered), info.Mode().Perm()); err != nil {
		return false, engine.NewEnvironmentalError("container configuration unwritable", err).
			WithCode(engine.ErrCodeUnwritable)
	}

	p.logger.Info().
		Str("config", configPath).
		Int("removed", removed).
		Int("rules", len(plan.Rules)).
		Int("mounts", len(plan.Mounts)).
		Msg("Passthrough configuration applied")
	return true, nil
}
