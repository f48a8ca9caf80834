package io

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/KyungWonPark/Searchlight/internal/labels"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// eventRecord mirrors one row of event_file.csv; the column names carry the
// stray spaces of the spreadsheet export.
type eventRecord struct {
	Speaker string `csv:"Name_Speaking"`
	Start   string `csv:"Start Time (s) "`
	End     string `csv:" End Time (s) "`
}

// ReadEvents reads the speech event log. An empty speaker cell means nobody
// is speaking; empty or malformed times become NaN.
func ReadEvents(path string) ([]labels.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[ReadEvents] failed to open %s", path)
	}
	defer f.Close()

	var records []*eventRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, errors.Wrapf(err, "[ReadEvents] failed to parse %s", path)
	}

	events := make([]labels.Event, 0, len(records))
	timed := 0
	for _, rec := range records {
		speaker := strings.TrimSpace(rec.Speaker)
		ev := labels.Event{
			Speaker:  speaker,
			Speaking: speaker != "",
			Start:    parseSeconds(rec.Start),
			End:      parseSeconds(rec.End),
		}
		if !math.IsNaN(ev.End) {
			timed++
		}
		events = append(events, ev)
	}

	if len(records) > 0 && timed == 0 {
		return nil, errors.Errorf("[ReadEvents] %s: no end times found, check the column headers", path)
	}

	return events, nil
}

func parseSeconds(s string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return value
}
