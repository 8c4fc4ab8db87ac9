// Package app wires a matrixrun instance together: logger, pipeline loader,
// runner registry and executor. Construction panics on configuration errors;
// the CLI entrypoint recovers and turns that into a clean exit.
package app
