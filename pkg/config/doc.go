// Package config is the declarative configuration boundary. The cluster file
// is decoded once per run into typed structs; nothing downstream re-parses
// strings. The loaded spec is an immutable snapshot for the whole run.
package config
