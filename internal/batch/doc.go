// Package batch splits large inputs into fixed-size batches.
//
// The CLI import path stages documents one batch at a time and commits after
// each, so a failing batch leaves earlier batches persisted and reports the
// batch index that failed.
package batch
