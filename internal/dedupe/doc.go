// Package dedupe provides a time-windowed set of seen keys, used to skip
// server payloads that were already merged within a configurable window.
package dedupe
