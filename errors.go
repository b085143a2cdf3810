/*
 *  errors.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import "fmt"

// SchemaMismatchError reports input tables that disagree on keys or
// dimensions. It is fatal and raised before any computation starts.
type SchemaMismatchError struct {
	Table  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: %s", e.Table, e.Reason)
}

// DegenerateNormalizationError reports a sample that shares no
// comparably-expressed genes with the normalization reference.
type DegenerateNormalizationError struct {
	Sample string
}

func (e *DegenerateNormalizationError) Error() string {
	return fmt.Sprintf("sample %s shares no expressed genes with the reference; TMM factor undefined", e.Sample)
}

// ConfigurationError reports a threshold outside its valid range, detected
// at entry before the pipeline runs.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Param, e.Reason)
}

// RunSummary accumulates recoverable numeric degeneracies so they can be
// reported alongside the final results instead of being dropped.
type RunSummary struct {
	Warnings []string
}

// Warnf records a recoverable condition and logs it immediately
func (r *RunSummary) Warnf(msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	r.Warnings = append(r.Warnings, s)
	log.Warning(s)
}

// WriteFile writes the accumulated warnings as the run summary artifact
func (r *RunSummary) WriteFile(outfile string) error {
	fw, err := createFile(outfile)
	if err != nil {
		return err
	}
	defer fw.Close()

	fmt.Fprintf(fw, "# RNADGE v%s run summary\n", Version)
	fmt.Fprintf(fw, "recoverable warnings: %d\n", len(r.Warnings))
	for _, w := range r.Warnings {
		fmt.Fprintf(fw, "WARN\t%s\n", w)
	}
	log.Noticef("Run summary written to `%s`", outfile)
	return nil
}
