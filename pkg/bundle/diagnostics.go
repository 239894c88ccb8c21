package bundle

import "github.com/apex/log"

// ReportProblems writes one structured log line per recorded Problem to the
// given sink, matching the "report one line per error, keep going" policy.
func ReportProblems(sink log.Interface, problems []*Problem) {
	for _, p := range problems {
		entry := sink.WithField("kind", p.Kind.String())
		if p.Path != "" {
			entry = entry.WithField("path", p.Path)
		}
		if p.Err != nil {
			entry = entry.WithField("cause", p.Err.Error())
		}
		entry.Error("setup problem")
	}
}
