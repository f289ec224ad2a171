package pricing

import "time"

// recentWindow separates fine-grained from coarse-grained price buckets.
// Recent trades need minute resolution; for older trades an hourly price
// is close enough and keeps the provider call volume down.
const recentWindow = 7 * 24 * time.Hour

// BucketDate rounds a trade date down to its price bucket: dates within
// the last seven days floor to the containing minute, older dates floor
// to the containing hour.
func BucketDate(date, now time.Time) time.Time {
	date = date.UTC()
	if now.UTC().Sub(date) >= recentWindow {
		return date.Truncate(time.Hour)
	}
	return date.Truncate(time.Minute)
}
