package harvest

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

const (
	// MinLineLength is the shortest line that can carry a check report.
	MinLineLength = 60
	// tagOffset is where the process tag starts, right after the timestamp.
	tagOffset = 24
)

// ErrBadTimestamp is returned for a structurally matched line whose calendar
// fields do not describe a real point in time.
var ErrBadTimestamp = errors.New("harvest: calendar fields out of range")

// Options configures a Parser.
type Options struct {
	// Process is the tag that follows the timestamp, e.g. "harvester".
	Process string
	// Family restricts records to one logger family ("chia", "flax", ...).
	// Empty accepts any family.
	Family string
	// Location interprets the wall-clock timestamps. Nil means time.Local.
	Location *time.Location
}

// Parser recognises check-report lines of the form
//
//	2021-05-13T09:14:35.538 harvester chia.harvester.harvester: INFO     0 plots were eligible for farming c1c8456f7a... Found 0 proofs. Time: 0.00201 s. Total 36 plots
type Parser struct {
	prefix []byte
	family string
	loc    *time.Location
	re     *regexp.Regexp
}

// NewParser compiles the check grammar for the configured process.
func NewParser(opts Options) *Parser {
	if opts.Process == "" {
		opts.Process = "harvester"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	p := regexp.QuoteMeta(opts.Process)
	re := regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(?:\.\d+)? ` +
		p + ` (\w+)\.` + p + `\.` + p + `: INFO\s+` +
		`(\d+) plots were eligible for farming (\S+) ` +
		`Found (\d+) proofs\. Time: (\d+(?:\.\d+)?) s\. Total (\d+) plots`)
	return &Parser{
		prefix: []byte(opts.Process + " "),
		family: opts.Family,
		loc:    opts.Location,
		re:     re,
	}
}

// Parse returns the record carried by line. ok is false for lines that are
// not check reports. A non-nil error means the line matched the grammar but
// its timestamp is unusable; callers must stop processing.
func (p *Parser) Parse(line []byte) (rec Record, ok bool, err error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) <= MinLineLength || !bytes.HasPrefix(line[tagOffset:], p.prefix) {
		return Record{}, false, nil
	}
	m := p.re.FindSubmatch(line)
	if m == nil {
		return Record{}, false, nil
	}
	family := string(m[7])
	if p.family != "" && family != p.family {
		return Record{}, false, nil
	}

	var f [6]int
	for i := range f {
		f[i], _ = strconv.Atoi(string(m[i+1]))
	}
	stamp, err := p.civil(f[0], f[1], f[2], f[3], f[4], f[5])
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "line %q", line)
	}

	eligible, err1 := strconv.Atoi(string(m[8]))
	proofs, err2 := strconv.Atoi(string(m[10]))
	seconds, err3 := strconv.ParseFloat(string(m[11]), 64)
	plots, err4 := strconv.Atoi(string(m[12]))
	if err1 != nil || err2 != nil || err3 != nil {
		return Record{}, false, nil
	}
	if err4 != nil {
		plots = UnknownPlots
	}
	return Record{
		Stamp:    stamp,
		Family:   family,
		Eligible: eligible,
		Proofs:   proofs,
		Duration: time.Duration(math.Round(seconds * float64(time.Second))),
		Plots:    plots,
	}, true, nil
}

// civil converts calendar fields to an absolute time. time.Date normalises
// out-of-range values silently, so they are checked first.
func (p *Parser) civil(year, month, day, hour, minute, second int) (time.Time, error) {
	switch {
	case month < 1 || month > 12:
		return time.Time{}, errors.Wrapf(ErrBadTimestamp, "month %d", month)
	case day < 1 || day > daysIn(year, time.Month(month)):
		return time.Time{}, errors.Wrapf(ErrBadTimestamp, "day %d", day)
	case hour > 23:
		return time.Time{}, errors.Wrapf(ErrBadTimestamp, "hour %d", hour)
	case minute > 59:
		return time.Time{}, errors.Wrapf(ErrBadTimestamp, "minute %d", minute)
	case second > 60:
		return time.Time{}, errors.Wrapf(ErrBadTimestamp, "second %d", second)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, p.loc), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Tag returns the process tag of any timestamped log line, such as
// "harvester", "full_node" or "wallet".
func Tag(line []byte) (string, bool) {
	if len(line) <= tagOffset || line[4] != '-' || line[10] != 'T' || line[tagOffset-1] != ' ' {
		return "", false
	}
	rest := line[tagOffset:]
	end := bytes.IndexAny(rest, " \t\r\n")
	if end <= 0 {
		return "", false
	}
	return string(rest[:end]), true
}
