// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package profile

import (
	"context"
	"time"
)

// User is the `user` object of https://linux.do/u/{username}.json.
type User struct {
	ID         uint64    `json:"id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	TrustLevel uint8     `json:"trust_level"`
	BioRaw     string    `json:"bio_raw"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is the `user_summary` object of
// https://linux.do/u/{username}/summary.json.
type Summary struct {
	LikesGiven     uint64 `json:"likes_given"`
	LikesReceived  uint64 `json:"likes_received"`
	TopicsEntered  uint64 `json:"topics_entered"`
	PostsReadCount uint64 `json:"posts_read_count"`
	DaysVisited    uint64 `json:"days_visited"`
	PostCount      uint64 `json:"post_count"`
	TimeRead       uint64 `json:"time_read"` // seconds
	SolvedCount    uint64 `json:"solved_count"`
}

// UserInfo is one cached profile. Values are shared between the cache and
// in-flight responses and must not be modified after WriteCache.
type UserInfo struct {
	User    User
	Summary Summary

	// FetchedAt is when the upstream documents were fetched. The zero
	// value marks a placeholder that was never fetched.
	FetchedAt time.Time
}

// Fetched reports whether the value came from the upstream API.
func (u *UserInfo) Fetched() bool {
	return u != nil && !u.FetchedAt.IsZero()
}

// Fetcher loads a profile from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context, username string) (*UserInfo, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, username string) (*UserInfo, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, username string) (*UserInfo, error) {
	return f(ctx, username)
}
