// Package hlc provides the hybrid logical clock a Seed stamps its writes with.
//
// The stamps are used as write indices of the storage engine. They order writes
// across Seeds for last-writer-wins merging and advance with wall time, which
// lets TTLs be expressed as durations (see Ticks).
package hlc
