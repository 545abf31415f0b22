package data

import (
	"fmt"

	"github.com/khaledhikmat/vs-sentry/model"
)

// IService journals what the watcher did. Nothing is ever read back into
// the detection loop.
type IService interface {
	NewError(err interface{}) error
	NewWatcherStats(stats model.WatcherStats) error
	NewTransition(t model.Transition) error
	Close() error
}

// errorRecord is the persisted form of an error.
type errorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func toErrorRecord(err interface{}, now int64) errorRecord {
	record := errorRecord{
		Timestamp:  now,
		Processor:  "N/A",
		StackTrace: "N/A",
	}

	switch e := err.(type) {
	case model.CustomError:
		record.Processor = e.Processor
		record.Message = e.Message
		record.StackTrace = e.StackTrace
		record.Misc = e.Misc
		if e.Inner != nil {
			record.Inner = e.Inner.Error()
		}
	case *model.CustomError:
		return toErrorRecord(*e, now)
	case error:
		record.Inner = e.Error()
		record.Message = e.Error()
	default:
		record.Message = fmt.Sprintf("%v", e)
	}

	return record
}
