// Package config defines the format-agnostic pipeline model and the Loader
// interface that the configuration front-ends implement. Everything
// downstream of loading works only with this model and never touches
// parser types.
package config
