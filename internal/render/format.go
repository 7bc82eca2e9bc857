// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package render

import (
	"fmt"
	"time"

	"github.com/tomtom215/greeting/internal/logging"
)

var chineseWeekdays = [...]string{
	time.Sunday:    "日",
	time.Monday:    "一",
	time.Tuesday:   "二",
	time.Wednesday: "三",
	time.Thursday:  "四",
	time.Friday:    "五",
	time.Saturday:  "六",
}

// ChineseWeekday returns the weekday character used after 星期.
func ChineseWeekday(d time.Weekday) string {
	return chineseWeekdays[d]
}

// IsLeapYear reports whether year has 366 days.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysLeftInYear returns the number of days after t's date until the end
// of its year.
func DaysLeftInYear(t time.Time) int64 {
	days := 365
	if IsLeapYear(t.Year()) {
		days = 366
	}
	return int64(days - t.YearDay())
}

// lunarNewYears are the first days of the Chinese lunar year, midnight in
// China Standard Time.
var lunarNewYears = []time.Time{
	lunarDate(2025, time.January, 29),
	lunarDate(2026, time.February, 17),
	lunarDate(2027, time.February, 6),
	lunarDate(2028, time.January, 26),
	lunarDate(2029, time.February, 13),
	lunarDate(2030, time.February, 3),
	lunarDate(2031, time.January, 23),
	lunarDate(2032, time.February, 11),
	lunarDate(2033, time.January, 31),
	lunarDate(2034, time.February, 19),
	lunarDate(2035, time.February, 8),
	lunarDate(2036, time.January, 28),
}

var chinaStandardTime = time.FixedZone("CST", 8*60*60)

func lunarDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, chinaStandardTime)
}

// DaysUntilLunarNewYear returns the whole days from t until the next lunar
// new year. On the day itself it returns 0. ok is false once t is past the
// last date in the table.
func DaysUntilLunarNewYear(t time.Time) (days int64, ok bool) {
	for _, d := range lunarNewYears {
		if d.Add(24 * time.Hour).After(t) {
			return int64(d.Sub(t) / (24 * time.Hour)), true
		}
	}
	return 0, false
}

// TrustLevelLabel names a Discourse trust level.
func TrustLevelLabel(level uint8) string {
	switch level {
	case 0:
		return "游客"
	case 1:
		return "🚲一级新萌"
	case 2:
		return "🚗二级老萌"
	case 3:
		return "🚅三级大佬"
	case 4:
		return "🚀站长本佬"
	default:
		return "✨突破天际"
	}
}

const (
	minute = 60
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
	month  = 30 * day
	year   = 365 * day
)

// RelativeTime describes how long ago then was, e.g. "3 天前". A zero time
// renders as "-". A time in the future renders empty and is logged, since
// it means the local clock is wrong.
func RelativeTime(now, then time.Time) string {
	if then.IsZero() {
		return "-"
	}
	secs := int64(now.Sub(then) / time.Second)
	if secs < 0 {
		logging.Error().Time("then", then).Msg("Timestamp in the future, check the local clock")
		return ""
	}

	switch {
	case secs < hour:
		return fmt.Sprintf("%d 分钟前", secs/minute)
	case secs < day:
		return fmt.Sprintf("%d 个小时前", secs/hour)
	case secs < week:
		return fmt.Sprintf("%d 天前", secs/day)
	case secs < month:
		return fmt.Sprintf("%d 周前", secs/week)
	case secs < year:
		return fmt.Sprintf("%d 个月前", secs/month)
	default:
		return fmt.Sprintf("%d 年前", secs/year)
	}
}

// FormatReadTime renders a read time in seconds as minutes below one hour
// and hours above, with two decimals.
func FormatReadTime(secs uint64) string {
	if secs < hour {
		return fmt.Sprintf("%.2f 分钟", float64(secs)/minute)
	}
	return fmt.Sprintf("%.2f 小时", float64(secs)/hour)
}
