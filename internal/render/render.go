// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package render produces the SVG badges served by the API.
//
// Two badges exist: the general greeting (visitor number, today's date and a
// new year countdown) and the linux.do profile card. Templates are embedded
// and rendered with html/template, so every value is escaped unless it has
// been through the sanitizer first.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	"github.com/tomtom215/greeting/internal/cache"
	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/sanitize"
)

//go:embed templates/*.svg.tmpl
var templateFS embed.FS

// DefaultTimezone is used when a request does not name a valid zone.
const DefaultTimezone = "Asia/Shanghai"

// DefaultBio is shown on a card without any bio.
const DefaultBio = "小白一枚"

// Background selects the general badge background.
type Background int

const (
	// BackgroundNone counts down to the new year.
	BackgroundNone Background = iota

	// BackgroundLunarNewYear counts down to the lunar new year.
	BackgroundLunarNewYear
)

// ParseBackground maps the `bg` query value to a Background. Unknown
// values select the default.
func ParseBackground(s string) Background {
	if s == "lunar_new_year" {
		return BackgroundLunarNewYear
	}
	return BackgroundNone
}

// Config configures the renderer.
type Config struct {
	// Timezone is the default zone. Default: Asia/Shanghai
	Timezone string

	// Title is the <title> of the general badge.
	Title string
}

// Renderer renders badges. It is safe for concurrent use.
type Renderer struct {
	general   *template.Template
	card      *template.Template
	sanitizer *sanitize.Sanitizer
	zones     *cache.LRU[string, *time.Location]
	defaultTZ *time.Location
	title     string
	now       func() time.Time
}

// New parses the embedded templates. sanitizer cleans notes and bios.
func New(cfg Config, sanitizer *sanitize.Sanitizer) (*Renderer, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Title == "" {
		cfg.Title = "Greeting | Visit Counter"
	}
	if sanitizer == nil {
		sanitizer = sanitize.New(0)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("render: load timezone %q: %w", cfg.Timezone, err)
	}

	funcs := template.FuncMap{
		"readTime": FormatReadTime,
	}

	general, err := template.New("general.svg.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/general.svg.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse general template: %w", err)
	}
	card, err := template.New("linux_do_card.svg.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/linux_do_card.svg.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse card template: %w", err)
	}

	return &Renderer{
		general:   general,
		card:      card,
		sanitizer: sanitizer,
		zones:     cache.NewLRU[string, *time.Location](256, 0),
		defaultTZ: loc,
		title:     cfg.Title,
		now:       time.Now,
	}, nil
}

// Location resolves an IANA zone name, falling back to the default zone for
// empty or unknown names.
func (r *Renderer) Location(name string) *time.Location {
	if name == "" {
		return r.defaultTZ
	}
	loc := r.zones.GetOrAdd(name, func(name string) *time.Location {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logging.Debug().Str("timezone", name).Msg("Unknown timezone, using default")
			return nil
		}
		return loc
	})
	if loc == nil {
		return r.defaultTZ
	}
	return loc
}

// GeneralOptions describes one general badge.
type GeneralOptions struct {
	// Count is the visitor number; shown only when HasCount is set.
	Count    uint64
	HasCount bool

	Location   *time.Location
	Background Background

	// Note is free text, sanitized before rendering.
	Note string
}

type generalData struct {
	Title    string
	HasCount bool
	Count    uint64
	Year     int
	Month    int
	Day      int
	Weekday  string
	Ordinal  int
	Target   string
	DaysLeft int64
	Lunar    bool
	Note     template.HTML
}

// General renders the general greeting badge.
func (r *Renderer) General(opts GeneralOptions) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = r.defaultTZ
	}
	now := r.now().In(loc)

	data := generalData{
		Title:    r.title,
		HasCount: opts.HasCount,
		Count:    opts.Count,
		Year:     now.Year(),
		Month:    int(now.Month()),
		Day:      now.Day(),
		Weekday:  ChineseWeekday(now.Weekday()),
		Ordinal:  now.YearDay(),
		Target:   "新历新年",
		DaysLeft: DaysLeftInYear(now),
	}
	if opts.Background == BackgroundLunarNewYear {
		data.Lunar = true
		if days, ok := DaysUntilLunarNewYear(now); ok {
			data.Target = "农历新年"
			data.DaysLeft = days
		}
	}
	if opts.Note != "" {
		data.Note = template.HTML(r.sanitizer.Clean(opts.Note)) //nolint:gosec // sanitized by bluemonday
	}

	return execute(r.general, data)
}

// CardOptions describes one linux.do card.
type CardOptions struct {
	// Info is the cached profile; nil renders the empty placeholder.
	Info *profile.UserInfo

	Location *time.Location

	// Bio overrides the profile bio when set. It is sanitized first.
	Bio string
}

type cardData struct {
	Username   string
	Trust      string
	Bio        template.HTML
	Registered string
	LastSeen   string
	Summary    profile.Summary
	Updated    string
}

// LinuxDoCard renders the profile card.
func (r *Renderer) LinuxDoCard(opts CardOptions) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = r.defaultTZ
	}
	info := opts.Info
	if info == nil {
		info = &profile.UserInfo{}
	}
	now := r.now()

	bio := DefaultBio
	switch {
	case opts.Bio != "":
		bio = r.sanitizer.Clean(opts.Bio)
	case info.User.BioRaw != "":
		bio = r.sanitizer.Clean(info.User.BioRaw)
	}

	data := cardData{
		Username:   info.User.Username,
		Trust:      TrustLevelLabel(info.User.TrustLevel),
		Bio:        template.HTML(bio), //nolint:gosec // sanitized by bluemonday
		Registered: RelativeTime(now, info.User.CreatedAt),
		LastSeen:   RelativeTime(now, info.User.LastSeenAt),
		Summary:    info.Summary,
		Updated:    "... [FETCHING UPSTREAM]",
	}
	if info.Fetched() {
		data.Updated = info.FetchedAt.In(loc).Format(time.RFC3339)
	}

	return execute(r.card, data)
}

func execute(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2048)
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: execute %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}
