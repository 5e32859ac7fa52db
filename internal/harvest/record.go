// Package harvest turns harvester debug log lines into timestamped check records.
package harvest

import "time"

// UnknownPlots marks a record whose line did not report a plot total.
const UnknownPlots = -1

// Record is one harvester check as reported by a single log line.
type Record struct {
	Stamp    time.Time // whole seconds
	Family   string
	Eligible int
	Proofs   int
	Duration time.Duration
	Plots    int
}

// Unix returns the record's timestamp in seconds.
func (r Record) Unix() int64 { return r.Stamp.Unix() }
