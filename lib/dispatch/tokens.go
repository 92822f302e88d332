// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
)

// Token command verbs.
const (
	VerbURL           = "url"
	VerbConnect       = "connect"
	VerbDisconnect    = "disconnect"
	VerbHide          = "hide"
	VerbUnhide        = "unhide"
	VerbLink          = "link"
	VerbUnlink        = "unlink"
	VerbCreateChannel = "createchannel"
	VerbDeleteChannel = "deletechannel"
)

// arity bounds the token count of each verb, the verb included. A
// maximum of zero means any number of trailing tokens.
type arity struct{ min, max int }

var verbArity = map[string]arity{
	VerbURL:           {2, 2},
	VerbConnect:       {6, 8},
	VerbDisconnect:    {1, 1},
	VerbHide:          {1, 1},
	VerbUnhide:        {1, 1},
	VerbLink:          {1, 2},
	VerbUnlink:        {1, 2},
	VerbCreateChannel: {2, 0},
	VerbDeleteChannel: {1, 2},
}

// GrammarError reports a token command line that does not parse.
type GrammarError struct {
	Line string
	Msg  string
	Err  error
}

func (e *GrammarError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command line %q: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("command line %q: %s", e.Line, e.Msg)
}

// Unwrap returns fieldmap.ErrCoercion so a bad command line is handled
// like any other field that fails to convert.
func (e *GrammarError) Unwrap() []error {
	if e.Err != nil {
		return []error{fieldmap.ErrCoercion, e.Err}
	}
	return []error{fieldmap.ErrCoercion}
}

// TokenCommand is one parsed command line.
type TokenCommand struct {
	Verb string

	// URL is set for url.
	URL *url.URL

	// Target is set for connect.
	Target ConnectTarget

	// Channel is the explicit channel id of link, unlink, and
	// deletechannel. HasChannel is false when the line omitted it.
	Channel    int
	HasChannel bool

	// Name is the channel name of createchannel.
	Name string
}

// Tokenize splits a command line on ASCII whitespace, dropping empty
// tokens.
func Tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// ParseTokenCommand parses a command line. Verbs are case-insensitive;
// the connect keywords "port", "as", and "password" are too. Token
// counts are checked before any positional token is read.
func ParseTokenCommand(line string) (*TokenCommand, error) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return nil, &GrammarError{Line: line, Msg: "empty command line"}
	}
	verb := strings.ToLower(tokens[0])
	bounds, known := verbArity[verb]
	if !known {
		return nil, &GrammarError{Line: line, Msg: fmt.Sprintf("unknown verb %q", tokens[0])}
	}
	if len(tokens) < bounds.min || (bounds.max > 0 && len(tokens) > bounds.max) {
		return nil, &GrammarError{Line: line, Msg: fmt.Sprintf("%s: wrong number of arguments (%d)", verb, len(tokens)-1)}
	}

	command := &TokenCommand{Verb: verb}
	switch verb {
	case VerbURL:
		target, err := fieldmap.ParseURL(tokens[1])
		if err != nil {
			return nil, &GrammarError{Line: line, Msg: "invalid url", Err: err}
		}
		command.URL = target

	case VerbConnect:
		if err := parseConnect(tokens, &command.Target); err != nil {
			return nil, &GrammarError{Line: line, Msg: "invalid connect", Err: err}
		}

	case VerbLink, VerbUnlink, VerbDeleteChannel:
		if len(tokens) == 2 {
			id, err := strconv.Atoi(tokens[1])
			if err != nil || id < 0 {
				return nil, &GrammarError{Line: line, Msg: fmt.Sprintf("invalid channel id %q", tokens[1]), Err: err}
			}
			command.Channel = id
			command.HasChannel = true
		}

	case VerbCreateChannel:
		command.Name = strings.Join(tokens[1:], " ")
	}
	return command, nil
}

// parseConnect reads "connect <host> port <port> as <user> [password <pw>]".
func parseConnect(tokens []string, target *ConnectTarget) error {
	if len(tokens) == 7 {
		return errors.New("password keyword without a password")
	}
	if !strings.EqualFold(tokens[2], "port") {
		return fmt.Errorf("expected \"port\", got %q", tokens[2])
	}
	if !strings.EqualFold(tokens[4], "as") {
		return fmt.Errorf("expected \"as\", got %q", tokens[4])
	}
	port, err := strconv.Atoi(tokens[3])
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	target.Host = tokens[1]
	target.Port = port
	target.User = tokens[5]
	if len(tokens) == 8 {
		if !strings.EqualFold(tokens[6], "password") {
			return fmt.Errorf("expected \"password\", got %q", tokens[6])
		}
		target.Password = tokens[7]
	}
	return nil
}

// runTokenCommand parses and executes a command line. The returned
// fields are merged into the reply even when execution fails.
func runTokenCommand(ctx context.Context, executor Executor, line string) (*fieldmap.Map, error) {
	command, err := ParseTokenCommand(line)
	if err != nil {
		return nil, err
	}

	switch command.Verb {
	case VerbURL:
		reply := fieldmap.New()
		href, connected, err := currentHref(ctx, executor)
		if err != nil {
			return nil, err
		}
		if connected {
			reply.Set(FieldHref, href)
		}
		return reply, openURL(ctx, executor, command.URL)

	case VerbConnect:
		return nil, executor.BeginConnect(ctx, command.Target)

	case VerbDisconnect:
		return nil, executor.Disconnect(ctx)

	case VerbHide:
		return nil, executor.SetVisible(ctx, false)

	case VerbUnhide:
		return nil, executor.SetVisible(ctx, true)

	case VerbLink, VerbUnlink:
		current, err := executor.CurrentChannel(ctx)
		if err != nil {
			return nil, err
		}
		target := RootChannel
		if command.HasChannel {
			target = command.Channel
		}
		if command.Verb == VerbLink {
			return nil, executor.LinkChannels(ctx, current, target)
		}
		return nil, executor.UnlinkChannels(ctx, current, target)

	case VerbCreateChannel:
		return nil, executor.CreateChannel(ctx, ChannelSpec{
			ParentID:  RootChannel,
			Name:      command.Name,
			Temporary: true,
		})

	case VerbDeleteChannel:
		channel := command.Channel
		if !command.HasChannel {
			channel, err = executor.CurrentChannel(ctx)
			if err != nil {
				return nil, err
			}
		}
		return nil, executor.RemoveChannel(ctx, channel)
	}

	// verbArity and the switch above list the same verbs.
	panic(fmt.Sprintf("dispatch: no executor mapping for verb %q", command.Verb))
}
