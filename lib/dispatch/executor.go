// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"net/url"
)

// Executor performs the actions requests name against live application
// state. The dispatcher calls it from every connection's goroutine at
// once, so implementations must be safe for concurrent use, either by
// locking or by funneling calls through their own queue.
//
// Every method returns an error when the action could not be carried
// out. The dispatcher reports any error as succeeded=false; it never
// inspects the error beyond logging it.
type Executor interface {
	// BringToFront shows, raises, and activates the main window.
	BringToFront(ctx context.Context) error

	// SetVisible hides or unhides the main window.
	SetVisible(ctx context.Context, visible bool) error

	// AudioState returns the current self-mute and self-deafen state.
	AudioState(ctx context.Context) (AudioState, error)

	SetMuted(ctx context.Context, muted bool) error
	SetDeafened(ctx context.Context, deafened bool) error

	// OpenURL hands a mumble:// URL to the application, which connects
	// to the server it names and joins the channel in its path.
	OpenURL(ctx context.Context, target *url.URL) error

	// BeginConnect starts connecting to a server. It returns once the
	// attempt is underway, not when it completes.
	BeginConnect(ctx context.Context, target ConnectTarget) error

	// Disconnect drops the current server connection.
	Disconnect(ctx context.Context) error

	LinkChannels(ctx context.Context, channel, target int) error
	UnlinkChannels(ctx context.Context, channel, target int) error
	CreateChannel(ctx context.Context, request ChannelSpec) error
	RemoveChannel(ctx context.Context, channel int) error

	// CurrentConnection returns the connected server and user. The
	// boolean is false when there is no connection.
	CurrentConnection(ctx context.Context) (ConnectionInfo, bool, error)

	// CurrentChannel returns the id of the channel the user is in.
	CurrentChannel(ctx context.Context) (int, error)

	// CurrentChannelPath returns the names of the channels from just
	// below the root down to the user's current channel. It is empty
	// when the user is in the root channel.
	CurrentChannelPath(ctx context.Context) ([]string, error)
}

// AudioState is the user's own transmit and receive state.
type AudioState struct {
	Muted    bool
	Deafened bool
}

// ConnectTarget names a server to connect to.
type ConnectTarget struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ConnectionInfo describes the current server connection.
type ConnectionInfo struct {
	Host string
	Port int
	User string
}

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	ParentID    int
	Name        string
	Description string
	Position    int
	Temporary   bool
	MaxUsers    int // 0 means no limit
}

// RootChannel is the id of the server's root channel.
const RootChannel = 0
