// Package domain contains the core types shared across the PQC station:
// the sequence tree, node states, table positions, measurement results and
// the failure taxonomy. It has no dependencies on workers, instruments or
// adapters; those packages depend on domain, never the other way around.
package domain
