// Package stage names the pipeline stages, fixes their failure policy and
// defines the Handler contract the orchestrator drives.
package stage
