package application

import (
	"fmt"
	"time"

	trigger "daq-trigger/internal/trigger/domain"
)

const (
	defaultPollTimeout = 100 * time.Millisecond
	defaultSendTimeout = time.Millisecond
)

// LinkConf is one configured readout link.
type LinkConf struct {
	System  string `yaml:"system" json:"system"`
	Region  uint16 `yaml:"region" json:"region"`
	Element uint32 `yaml:"element" json:"element"`
}

// ConfParams configures the decision engine.
type ConfParams struct {
	Links                  []LinkConf `yaml:"links" json:"links"`
	CandidateConnection    string     `yaml:"candidate_connection" json:"candidate_connection"`
	DecisionConnection     string     `yaml:"dfo_connection" json:"dfo_connection"`
	InhibitConnection      string     `yaml:"dfo_busy_connection" json:"dfo_busy_connection"`
	TriggerTypePassthrough bool       `yaml:"hsi_trigger_type_passthrough" json:"hsi_trigger_type_passthrough"`
	PollTimeoutMS          int64      `yaml:"poll_timeout_ms" json:"poll_timeout_ms"`
	SendTimeoutMS          int64      `yaml:"send_timeout_ms" json:"send_timeout_ms"`
}

type resolvedParams struct {
	links       []trigger.Link
	candidate   string
	decision    string
	inhibit     string
	passthrough bool
	pollTimeout time.Duration
	sendTimeout time.Duration
}

func (p ConfParams) resolve() (resolvedParams, error) {
	if len(p.Links) == 0 {
		return resolvedParams{}, ErrNoLinks
	}
	links := make([]trigger.Link, 0, len(p.Links))
	for i, lc := range p.Links {
		link, err := trigger.NewLink(lc.System, lc.Region, lc.Element)
		if err != nil {
			return resolvedParams{}, fmt.Errorf("link %d: %w", i, err)
		}
		links = append(links, link)
	}
	for _, conn := range []struct{ name, value string }{
		{"candidate_connection", p.CandidateConnection},
		{"dfo_connection", p.DecisionConnection},
		{"dfo_busy_connection", p.InhibitConnection},
	} {
		if conn.value == "" {
			return resolvedParams{}, fmt.Errorf("%w: %s", ErrMissingConnection, conn.name)
		}
	}
	if p.PollTimeoutMS < 0 || p.SendTimeoutMS < 0 {
		return resolvedParams{}, ErrInvalidTimeout
	}

	poll := defaultPollTimeout
	if p.PollTimeoutMS > 0 {
		poll = time.Duration(p.PollTimeoutMS) * time.Millisecond
	}
	send := defaultSendTimeout
	if p.SendTimeoutMS > 0 {
		send = time.Duration(p.SendTimeoutMS) * time.Millisecond
	}
	return resolvedParams{
		links:       links,
		candidate:   p.CandidateConnection,
		decision:    p.DecisionConnection,
		inhibit:     p.InhibitConnection,
		passthrough: p.TriggerTypePassthrough,
		pollTimeout: poll,
		sendTimeout: send,
	}, nil
}
