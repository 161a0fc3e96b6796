// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs and normalizes the task refinement
// request/response lifecycle for use within the agent pipeline.
package llm
