// Package config provides centralized configuration management for the
// necta-agents runtime. It loads a single JSON file at startup, applies
// sensible defaults for omitted fields and exposes typed accessors for
// downstream services.
package config
