// Package devices turns a container's declared accelerator indices into a
// host-level passthrough plan: device-cgroup allow rules plus bind-mount
// entries, applied idempotently to the container's configuration file. Plans
// are recomputed fresh on every run and never persisted; only their applied
// effect on the configuration survives.
package devices
