// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package render

import (
	"testing"
	"time"
)

func TestChineseWeekday(t *testing.T) {
	t.Parallel()

	want := map[time.Weekday]string{
		time.Monday: "一", time.Wednesday: "三", time.Saturday: "六", time.Sunday: "日",
	}
	for d, w := range want {
		if got := ChineseWeekday(d); got != w {
			t.Errorf("ChineseWeekday(%s) = %s, want %s", d, got, w)
		}
	}
}

func TestDaysLeftInYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		date time.Time
		want int64
	}{
		{"first day", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 364},
		{"last day", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), 0},
		{"leap year first day", time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), 365},
		{"leap day", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), 306},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DaysLeftInYear(tt.date); got != tt.want {
				t.Errorf("DaysLeftInYear(%s) = %d, want %d", tt.date.Format(time.DateOnly), got, tt.want)
			}
		})
	}
}

func TestIsLeapYear(t *testing.T) {
	t.Parallel()

	for year, want := range map[int]bool{1900: false, 2000: true, 2024: true, 2026: false} {
		if got := IsLeapYear(year); got != want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", year, got, want)
		}
	}
}

func TestDaysUntilLunarNewYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		now    time.Time
		want   int64
		wantOK bool
	}{
		{"ten days before", time.Date(2026, 2, 7, 0, 0, 0, 0, chinaStandardTime), 10, true},
		{"same day", time.Date(2026, 2, 17, 15, 0, 0, 0, chinaStandardTime), 0, true},
		{"day after rolls to next year", time.Date(2026, 2, 18, 0, 0, 0, 0, chinaStandardTime), 353, true},
		{"partial days truncate", time.Date(2027, 2, 4, 12, 0, 0, 0, chinaStandardTime), 1, true},
		{"past the table", time.Date(2036, 3, 1, 0, 0, 0, 0, chinaStandardTime), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := DaysUntilLunarNewYear(tt.now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DaysUntilLunarNewYear() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTrustLevelLabel(t *testing.T) {
	t.Parallel()

	want := []string{"游客", "🚲一级新萌", "🚗二级老萌", "🚅三级大佬", "🚀站长本佬", "✨突破天际"}
	for level, w := range want {
		if got := TrustLevelLabel(uint8(level)); got != w {
			t.Errorf("TrustLevelLabel(%d) = %s, want %s", level, got, w)
		}
	}
	if got := TrustLevelLabel(200); got != "✨突破天际" {
		t.Errorf("TrustLevelLabel(200) = %s", got)
	}
}

func TestRelativeTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "0 分钟前"},
		{59 * time.Minute, "59 分钟前"},
		{3 * time.Hour, "3 个小时前"},
		{2 * 24 * time.Hour, "2 天前"},
		{15 * 24 * time.Hour, "2 周前"},
		{90 * 24 * time.Hour, "3 个月前"},
		{800 * 24 * time.Hour, "2 年前"},
		{-time.Hour, ""},
	}

	for _, tt := range tests {
		t.Run(tt.ago.String(), func(t *testing.T) {
			t.Parallel()
			if got := RelativeTime(now, now.Add(-tt.ago)); got != tt.want {
				t.Errorf("RelativeTime(-%s) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}

	if got := RelativeTime(now, time.Time{}); got != "-" {
		t.Errorf("RelativeTime(zero) = %q, want -", got)
	}
}

func TestFormatReadTime(t *testing.T) {
	t.Parallel()

	tests := map[uint64]string{
		0:    "0.00 分钟",
		90:   "1.50 分钟",
		3599: "59.98 分钟",
		3600: "1.00 小时",
		5400: "1.50 小时",
	}
	for secs, want := range tests {
		if got := FormatReadTime(secs); got != want {
			t.Errorf("FormatReadTime(%d) = %s, want %s", secs, got, want)
		}
	}
}
