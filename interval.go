package districtcooling

// Interval is the length of one step of the environment / schedule horizon.
type Interval string

const (
	IntervalH1  Interval = "1h"
	IntervalM30 Interval = "30m"
	IntervalM15 Interval = "15m"
)

// ParseInterval validates an interval name read from configuration.
func ParseInterval(s string) (Interval, error) {
	switch i := Interval(s); i {
	case IntervalH1, IntervalM30, IntervalM15:
		return i, nil
	default:
		return "", configErrorf("invalid interval %q", s)
	}
}

/*
Number of steps one hour is divided into.

	Notes:
		1h: 1
		30m: 2
		15m: 4
*/
func (i Interval) StepsPerHour() int {
	switch i {
	case IntervalH1:
		return 1
	case IntervalM30:
		return 2
	case IntervalM15:
		return 4
	default:
		panic("invalid interval")
	}
}

// Hours returns the step duration, h
func (i Interval) Hours() float64 {
	return 1.0 / float64(i.StepsPerHour())
}

// Seconds returns the step duration, s
func (i Interval) Seconds() float64 {
	return 3600.0 / float64(i.StepsPerHour())
}
