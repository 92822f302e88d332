// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
)

// FieldHref carries a mumble:// URL in url requests and replies.
const FieldHref = "href"

// FieldCommand carries a token command line in self requests.
const FieldCommand = "command"

// URLScheme is the only scheme OpenURL is handed.
const URLScheme = "mumble"

// urlVersion is the protocol version advertised in generated URLs.
const urlVersion = "1.2.0"

func handleFocus(ctx context.Context, call *Call) (*fieldmap.Map, bool) {
	if err := call.Executor.BringToFront(ctx); err != nil {
		call.Logger.Warn("bringing window to front failed", "error", err)
		return nil, false
	}
	return nil, true
}

// audioFlag is one structured field of a self request.
type audioFlag struct {
	field  string
	deafen bool // false acts on mute, true on deafen

	// next maps the requested and current values to the value to set
	// and whether a change is needed at all.
	next func(requested, current bool) (value, change bool)
}

var audioFlags = []audioFlag{
	{field: "mute", next: setTo},
	{field: "unmute", next: clearTo},
	{field: "togglemute", next: toggle},
	{field: "deaf", deafen: true, next: setTo},
	{field: "undeaf", deafen: true, next: clearTo},
	{field: "toggledeaf", deafen: true, next: toggle},
}

func setTo(requested, current bool) (bool, bool)   { return requested, requested != current }
func clearTo(requested, current bool) (bool, bool) { return !requested, requested == current }
func toggle(_, current bool) (bool, bool)          { return !current, true }

// structuredFields are the self fields that are never read as a token
// command line, even when one of them is the first child.
var structuredFields = map[string]bool{
	FieldReqID:   true,
	FieldCommand: true,
}

func init() {
	for _, flag := range audioFlags {
		structuredFields[flag.field] = true
	}
}

// handleSelf applies every audio flag present, in a fixed order and
// each against freshly queried state, then runs the token command line
// if the request carries one. Each part that is present must succeed
// for the command to be acknowledged.
func handleSelf(ctx context.Context, call *Call) (*fieldmap.Map, bool) {
	fields := call.Request.Fields
	ack := true

	for _, flag := range audioFlags {
		if !fields.Has(flag.field) {
			continue
		}
		if err := applyAudioFlag(ctx, call.Executor, fields, flag); err != nil {
			call.Logger.Warn("audio flag not applied", "field", flag.field, "error", err)
			ack = false
		}
	}

	line, ok := tokenLine(call)
	if !ok {
		return nil, ack
	}
	delta, err := runTokenCommand(ctx, call.Executor, line)
	if err != nil {
		call.Logger.Warn("token command failed", "line", line, "error", err)
		return delta, false
	}
	return delta, ack
}

func applyAudioFlag(ctx context.Context, executor Executor, fields *fieldmap.Map, flag audioFlag) error {
	requested, err := fields.Bool(flag.field)
	if err != nil {
		return err
	}
	state, err := executor.AudioState(ctx)
	if err != nil {
		return err
	}
	current := state.Muted
	if flag.deafen {
		current = state.Deafened
	}
	value, change := flag.next(requested, current)
	if !change {
		return nil
	}
	if flag.deafen {
		return executor.SetDeafened(ctx, value)
	}
	return executor.SetMuted(ctx, value)
}

// tokenLine returns the command line of a self request: the command
// field, or else the text of the first child when that child is not a
// structured field. A blank line counts as absent.
func tokenLine(call *Call) (string, bool) {
	line, ok := call.Request.Fields.Get(FieldCommand)
	if !ok {
		child := call.Request.FirstChild
		if child == nil || structuredFields[child.Name] {
			return "", false
		}
		line = child.Text
	}
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	return line, true
}

// handleURL reports the current server and channel as an href, and
// opens the href the request carries, if any.
func handleURL(ctx context.Context, call *Call) (*fieldmap.Map, bool) {
	reply := fieldmap.New()
	href, connected, err := currentHref(ctx, call.Executor)
	if err != nil {
		call.Logger.Warn("querying current connection failed", "error", err)
		return nil, false
	}
	if connected {
		reply.Set(FieldHref, href)
	}

	if !call.Request.Fields.Has(FieldHref) {
		return reply, true
	}
	target, err := call.Request.Fields.URL(FieldHref)
	if err != nil {
		call.Logger.Warn("invalid href", "error", err)
		return reply, false
	}
	if err := openURL(ctx, call.Executor, target); err != nil {
		call.Logger.Warn("opening url failed", "href", target.Redacted(), "error", err)
		return reply, false
	}
	return reply, true
}

func openURL(ctx context.Context, executor Executor, target *url.URL) error {
	if target.Scheme != URLScheme {
		return &fieldmap.CoercionError{Field: FieldHref, Value: target.Redacted(), Kind: URLScheme + " url"}
	}
	return executor.OpenURL(ctx, target)
}

// currentHref builds mumble://user@host:port/<channel path>?version=...
// for the current connection. The boolean is false when not connected.
func currentHref(ctx context.Context, executor Executor) (string, bool, error) {
	info, connected, err := executor.CurrentConnection(ctx)
	if err != nil || !connected {
		return "", false, err
	}
	path, err := executor.CurrentChannelPath(ctx)
	if err != nil {
		return "", false, err
	}
	return BuildURL(info, path).String(), true, nil
}

// BuildURL returns the mumble:// URL that reconnects to info and joins
// the channel named by path. Channel names are escaped segment by
// segment, so a name containing '/' survives the round trip.
func BuildURL(info ConnectionInfo, path []string) *url.URL {
	segments := make([]string, len(path))
	for i, name := range path {
		segments[i] = url.PathEscape(name)
	}
	u := &url.URL{
		Scheme:   URLScheme,
		Host:     net.JoinHostPort(info.Host, strconv.Itoa(info.Port)),
		Path:     "/" + strings.Join(path, "/"),
		RawPath:  "/" + strings.Join(segments, "/"),
		RawQuery: url.Values{"version": {urlVersion}}.Encode(),
	}
	if info.User != "" {
		u.User = url.User(info.User)
	}
	return u
}
