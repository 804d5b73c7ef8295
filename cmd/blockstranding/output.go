// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// playerView is the printable form of an entity.
type playerView struct {
	Address       string          `json:"address" yaml:"address"`
	Owner         string          `json:"owner" yaml:"owner"`
	Authority     string          `json:"authority" yaml:"authority"`
	MoveCounter   uint64          `json:"move_counter" yaml:"move_counter"`
	AttackCounter uint64          `json:"attack_counter" yaml:"attack_counter"`
	Space         int             `json:"space" yaml:"space"`
	Delegation    *delegationView `json:"delegation,omitempty" yaml:"delegation,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
}

type delegationView struct {
	ID              string    `json:"id,omitempty" yaml:"id,omitempty"`
	Context         string    `json:"context,omitempty" yaml:"context,omitempty"`
	Payer           string    `json:"payer" yaml:"payer"`
	CommitFrequency string    `json:"commit_frequency" yaml:"commit_frequency"`
	Expiry          string    `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	CommittedSlot   uint64    `json:"committed_slot" yaml:"committed_slot"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

func newPlayerView(e *player.Entity) playerView {
	v := playerView{
		Address:       e.Address.String(),
		Owner:         e.Owner.String(),
		Authority:     e.Authority.String(),
		MoveCounter:   e.MoveCounter,
		AttackCounter: e.AttackCounter,
		Space:         e.Space,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
	if d := e.Descriptor; d != nil {
		v.Delegation = newDelegationView(d)
	}
	return v
}

func newDelegationView(d *player.Descriptor) *delegationView {
	dv := &delegationView{
		Context:         d.ContextID,
		Payer:           d.Payer.String(),
		CommitFrequency: d.Config.CommitFrequency.String(),
		CommittedSlot:   d.CommittedSlot,
		CreatedAt:       d.CreatedAt.UTC(),
	}
	if !d.Pending() {
		dv.ID = d.ID.String()
	}
	if d.Config.Expiry > 0 {
		dv.Expiry = d.Config.Expiry.String()
	}
	return dv
}

// writePlayer prints e in the requested format.
func writePlayer(w io.Writer, format string, e *player.Entity) error {
	v := newPlayerView(e)
	switch format {
	case formatJSON:
		return writeJSON(w, v)
	case formatYAML:
		return writeYAML(w, v)
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "ADDRESS\t%s\n", v.Address)
		_, _ = fmt.Fprintf(tw, "OWNER\t%s\n", v.Owner)
		_, _ = fmt.Fprintf(tw, "AUTHORITY\t%s\n", v.Authority)
		_, _ = fmt.Fprintf(tw, "MOVE\t%d\n", v.MoveCounter)
		_, _ = fmt.Fprintf(tw, "ATTACK\t%d\n", v.AttackCounter)
		if d := v.Delegation; d != nil {
			_, _ = fmt.Fprintf(tw, "DELEGATION\t%s\n", d.ID)
			_, _ = fmt.Fprintf(tw, "CONTEXT\t%s\n", d.Context)
			_, _ = fmt.Fprintf(tw, "PAYER\t%s\n", d.Payer)
			_, _ = fmt.Fprintf(tw, "COMMITTED SLOT\t%d\n", d.CommittedSlot)
		}
		return tw.Flush()
	}
	return unknownFormat(format)
}

// historyView is the printable form of an operation log entry.
type historyView struct {
	ID      string          `json:"id" yaml:"id"`
	Time    time.Time       `json:"time" yaml:"time"`
	Type    string          `json:"type" yaml:"type"`
	Actor   string          `json:"actor" yaml:"actor"`
	Message string          `json:"message" yaml:"message"`
	Payload json.RawMessage `json:"payload,omitempty" yaml:"-"`
}

// writeHistory prints entries in the requested format.
func writeHistory(w io.Writer, format string, entries []oplog.Entry) error {
	views := make([]historyView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyView{
			ID:      e.ID.String(),
			Time:    e.Timestamp.UTC(),
			Type:    string(e.Type),
			Actor:   e.Actor.Kind.String() + ":" + e.Actor.ID,
			Message: e.Message,
			Payload: e.Payload,
		})
	}
	switch format {
	case formatJSON:
		return writeJSON(w, views)
	case formatYAML:
		return writeYAML(w, views)
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIME\tTYPE\tACTOR\tMESSAGE")
		for _, v := range views {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Time.Format(time.RFC3339), v.Type, v.Actor, v.Message)
		}
		return tw.Flush()
	}
	return unknownFormat(format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func unknownFormat(format string) error {
	return oops.Code("OUTPUT_FORMAT_INVALID").Errorf("output format must be table, json, or yaml, got %q", format)
}
