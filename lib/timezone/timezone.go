package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
}

// force the timezone to the disclosure portal's timezone, so that
// "today" and day arithmetic agree with the portal's trading days no
// matter where the crawler host happens to run
func Now() time.Time {
	return time.Now().In(Location)
}

// Day truncates t to midnight in the portal's timezone.
func Day(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}
