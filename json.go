package regions

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// StatsReporter is implemented by every allocator and source in this module that can
// describe itself as a json object.
type StatsReporter interface {
	JsonData(json jwriter.ObjectState)
}

// BuildStatsString renders a StatsReporter to a json string, for logging or offline
// inspection of allocator state.
func BuildStatsString(reporter StatsReporter) string {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	reporter.JsonData(obj)
	obj.End()

	return string(writer.Bytes())
}
