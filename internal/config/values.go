// Package config assembles cmd/hwprovisiond's flag/env/file-layered
// configuration, generalizing cmd/tinkerbell/flag's per-component
// registration pattern and its custom ff.Value implementations.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// durationValue adapts time.Duration to ff/v4's Value interface so it can be
// registered with FromEnv/FromFile alongside the stdlib flag.Value methods.
type durationValue struct {
	target *time.Duration
}

func newDurationValue(target *time.Duration) *durationValue {
	return &durationValue{target: target}
}

func (d *durationValue) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d.target = v
	return nil
}

func (d *durationValue) FromEnv(s string) error  { return d.Set(s) }
func (d *durationValue) FromFile(s string) error { return d.Set(s) }
func (d *durationValue) String() string {
	if d.target == nil {
		return ""
	}
	return d.target.String()
}

// urlValue is a validated, parsed *url.URL flag, used for FleetConfig's base
// URL and any future webhook-style endpoint config.
type urlValue struct {
	target **url.URL
}

func newURLValue(target **url.URL) *urlValue {
	return &urlValue{target: target}
}

func (u *urlValue) Set(s string) error {
	if s == "" {
		return nil
	}
	v := validator.New()
	if err := v.Var(s, "http_url"); err != nil {
		return fmt.Errorf("invalid URL %q: %w", s, err)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("failed to parse URL %q: %w", s, err)
	}
	*u.target = parsed
	return nil
}

func (u *urlValue) FromEnv(s string) error  { return u.Set(s) }
func (u *urlValue) FromFile(s string) error { return u.Set(s) }
func (u *urlValue) String() string {
	if u.target == nil || *u.target == nil {
		return ""
	}
	return (*u.target).String()
}
