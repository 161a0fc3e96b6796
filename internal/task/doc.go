// Package task defines the persisted task entity together with its storage
// backends and the execution queue. Stores return deep copies so callers
// can never mutate persisted state through a returned pointer.
package task
