package clock

import "fmt"

const (
	HoursPerDay     = 24
	DaysPerWeek     = 7
	DaysPerMonth    = 30
	DaysPerQuarter  = 90
	QuartersPerYear = 4
)

type Time struct {
	Year    int   `json:"year"`
	Quarter int   `json:"quarter"`
	Day     int   `json:"day"`
	Hour    int   `json:"hour"`
	Elapsed int64 `json:"elapsed_hours"`
}

// Step describes one advanced hour and which calendar boundaries it crossed.
type Step struct {
	Time       Time `json:"time"`
	NewDay     bool `json:"new_day"`
	NewWeek    bool `json:"new_week"`
	NewMonth   bool `json:"new_month"`
	NewQuarter bool `json:"new_quarter"`
	NewYear    bool `json:"new_year"`
}

func Start() Time {
	return Time{Year: 1, Quarter: 1, Day: 1}
}

func (t Time) DaysElapsed() int64 {
	return t.Elapsed / HoursPerDay
}

func (t Time) Advance() Step {
	next := t
	next.Elapsed++
	next.Hour++

	step := Step{}
	if next.Hour >= HoursPerDay {
		next.Hour = 0
		next.Day++
		step.NewDay = true

		days := next.DaysElapsed()
		step.NewWeek = days%DaysPerWeek == 0
		step.NewMonth = days%DaysPerMonth == 0

		if next.Day > DaysPerQuarter {
			next.Day = 1
			next.Quarter++
			step.NewQuarter = true
			if next.Quarter > QuartersPerYear {
				next.Quarter = 1
				next.Year++
				step.NewYear = true
			}
		}
	}
	step.Time = next
	return step
}

func (t Time) String() string {
	return fmt.Sprintf("Y%d Q%d D%02d %02d:00", t.Year, t.Quarter, t.Day, t.Hour)
}
