package dataset

import (
	"sort"

	"github.com/sirupsen/logrus"
	"survey-insights-go/internal/types"
)

type Summary struct {
	Total     int                        `json:"total"`
	Succeeded int                        `json:"succeeded"`
	ByStatus  map[types.RecordStatus]int `json:"by_status"`
}

// Summarize counts records per status.
func Summarize(records []types.AggregatedRecord) Summary {
	s := Summary{Total: len(records), ByStatus: map[types.RecordStatus]int{}}
	for _, r := range records {
		s.ByStatus[r.Status]++
		if r.Status == types.StatusOK {
			s.Succeeded++
		}
	}
	return s
}

// Log writes one line for the totals and one per non-empty status.
func (s Summary) Log(log *logrus.Entry) {
	log.WithFields(logrus.Fields{
		"total":     s.Total,
		"succeeded": s.Succeeded,
	}).Info("dataset summary")
	statuses := make([]string, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		log.WithFields(logrus.Fields{
			"status": st,
			"count":  s.ByStatus[types.RecordStatus(st)],
		}).Debug("status count")
	}
}
