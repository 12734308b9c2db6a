// Package config provides unified configuration loading for ragflow,
// layering defaults, an optional YAML file, and environment variable
// overrides (RAGFLOW_* prefix).
package config
