// Package clock maps an epoch-millisecond instant to the bucket suffix
// and UTC day string the writer uses for file rotation. Both functions
// are pure: no file-system or wall-clock state, never allocate beyond
// the returned string.
package clock

import (
	"fmt"
	"time"
)

// Suffix returns the string identifying the UTC time block of length
// intervalMinutes that contains epochMs, where blocks tile the UTC day
// starting at 00:00 with no gap or overlap. If intervalMinutes does not
// divide 1440 evenly, the day's last block is simply shorter.
//
// An instant that falls exactly on a block boundary belongs to the
// later block (e.g. with a 5-minute interval, 18:20:00.000 starts a new
// block rather than closing the previous one).
//
// The returned string embeds the UTC day so Day can recover it without
// any additional state.
func Suffix(intervalMinutes int, epochMs int64) string {
	if intervalMinutes <= 0 {
		intervalMinutes = 1
	}

	t := time.UnixMilli(epochMs).UTC()
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	minuteOfDay := int(t.Sub(dayStart) / time.Minute)

	block := minuteOfDay / intervalMinutes
	blockStartMin := block * intervalMinutes

	blockStart := dayStart.Add(time.Duration(blockStartMin) * time.Minute)
	return fmt.Sprintf("%04d%02d%02d_%02d%02d",
		blockStart.Year(), blockStart.Month(), blockStart.Day(),
		blockStart.Hour(), blockStart.Minute())
}

// Day returns the "YYYY-MM-DD" UTC day a Suffix was computed for.
func Day(suffix string) string {
	if len(suffix) < 8 {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", suffix[0:4], suffix[4:6], suffix[6:8])
}
