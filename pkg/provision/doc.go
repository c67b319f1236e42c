// Package provision composes the engine, container control plane and device
// planner into concrete host stages and per-container pipelines from a loaded
// cluster spec.
package provision
