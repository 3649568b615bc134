// Package history keeps a log of processing cycles on the filesystem.
package history

import "time"

// Entry describes one processing cycle.
type Entry struct {
	ID         string       `json:"id" yaml:"id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Attempts   int          `json:"attempts" yaml:"attempts"`
	Discovered []string     `json:"discovered" yaml:"discovered"`
	Processed  []FileRecord `json:"processed" yaml:"processed"`
	Purged     []string     `json:"purged" yaml:"purged"`
	Summary    Summary      `json:"summary" yaml:"summary"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// FileRecord describes one processed input file.
type FileRecord struct {
	Source   string `json:"source" yaml:"source"`
	Output   string `json:"output" yaml:"output"`
	Archived string `json:"archived,omitempty" yaml:"archived,omitempty"`
	Size     int64  `json:"size" yaml:"size"`
	Rows     int    `json:"rows" yaml:"rows"`
	Skipped  int    `json:"skipped" yaml:"skipped"`
}

// Summary contains cycle totals.
type Summary struct {
	Discovered   int `json:"discovered" yaml:"discovered"`
	Processed    int `json:"processed" yaml:"processed"`
	Archived     int `json:"archived" yaml:"archived"`
	SkippedLines int `json:"skipped_lines" yaml:"skipped_lines"`
	Purged       int `json:"purged" yaml:"purged"`
}

// Failed reports whether the cycle ended with an error.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

// Duration returns how long the cycle ran.
func (e *Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Summarize recomputes Summary from the entry's lists.
func (e *Entry) Summarize() {
	s := Summary{
		Discovered: len(e.Discovered),
		Processed:  len(e.Processed),
		Purged:     len(e.Purged),
	}
	for _, f := range e.Processed {
		s.SkippedLines += f.Skipped
		if f.Archived != "" {
			s.Archived++
		}
	}
	e.Summary = s
}
