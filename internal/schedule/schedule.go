package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

const DateLayout = "2006-01-02"

var (
	log = logger.Get("Schedule")

	ErrInvalidRange = errors.New("end date must be after start date")
)

type (
	// Config contains the date range publish dates are drawn from. Dates
	// are given in the form YYYY-MM-DD.
	Config struct {
		StartDate string `yaml:"start_date" env:"SCHEDULE_START_DATE"`
		EndDate   string `yaml:"end_date" env:"SCHEDULE_END_DATE"`

		// Seed for the shuffle of the date range. Zero seeds from the clock.
		Seed int64 `yaml:"seed" env:"SCHEDULE_SEED" env-default:"0"`
	}

	recordStore interface {
		Update(int, func(*record.Record) error) error
	}

	Assignment struct {
		Label int
		At    time.Time
	}
)

// Range parses the configured start and end dates.
func (config *Config) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, config.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", config.StartDate, err)
	}
	end, err := time.Parse(DateLayout, config.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", config.EndDate, err)
	}

	return start, end, nil
}

func (config *Config) Rand() *rand.Rand {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return rand.New(rand.NewSource(seed))
}

// Days returns every day from start to end inclusive.
func Days(start time.Time, end time.Time) ([]time.Time, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s is not after %s", ErrInvalidRange, end.Format(DateLayout), start.Format(DateLayout))
	}

	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	return days, nil
}

// Assign shuffles the days between start and end and gives one to each
// record, in order, until the days run out. Records left over are not
// assigned a date.
func Assign(records []record.Record, start time.Time, end time.Time, rng *rand.Rand) ([]Assignment, error) {
	days, err := Days(start, end)
	if err != nil {
		return nil, err
	}

	rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })

	n := min(len(records), len(days))
	if n < len(records) {
		log.Emit(logger.WARNING, "Only %d days available for %d records, %d will not be scheduled\n", len(days), len(records), len(records)-n)
	}

	out := make([]Assignment, n)
	for i := 0; i < n; i++ {
		out[i] = Assignment{Label: records[i].Label, At: days[i]}
	}

	return out, nil
}

// Apply records each assignment against its record and marks it SCHEDULED,
// returning how many records were updated.
func Apply(store recordStore, assignments []Assignment) int {
	applied := 0
	for _, a := range assignments {
		at := a.At
		err := store.Update(a.Label, func(r *record.Record) error {
			r.ScheduleAt = &at
			r.Promote(record.SCHEDULED)
			return nil
		})
		if err != nil {
			logger.WithLabel(log, a.Label).Emit(logger.ERROR, "Failed to schedule: %v\n", err)
			continue
		}

		logger.WithLabel(log, a.Label).Emit(logger.DEBUG, "Scheduled for %s\n", at.Format(DateLayout))
		applied++
	}

	return applied
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
