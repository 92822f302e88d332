// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bureau-foundation/socketrpc/lib/dispatch"
)

// DefaultPort is used when a URL names no port.
const DefaultPort = 64738

// RootName is the name of the root channel.
const RootName = "Root"

var (
	ErrNotConnected  = errors.New("not connected to a server")
	ErrNoSuchChannel = errors.New("no such channel")
	ErrInvalidURL    = errors.New("invalid server url")
)

type channel struct {
	id          int
	parent      int
	name        string
	description string
	position    int
	temporary   bool
	maxUsers    int
}

type link struct{ low, high int }

func newLink(a, b int) link {
	return link{min(a, b), max(a, b)}
}

// Session is an in-memory client: audio state, window state, a server
// connection, and a channel tree rooted at id 0. The tree outlives
// connections; only temporary channels are dropped on disconnect.
//
// All methods are safe for concurrent use.
type Session struct {
	logger       *slog.Logger
	settingsPath string

	mu         sync.Mutex
	audio      dispatch.AudioState
	visible    bool
	focusCount int

	connected  bool
	connection dispatch.ConnectionInfo
	password   string

	channels map[int]*channel
	links    map[link]struct{}
	current  int
	nextID   int
}

var _ dispatch.Executor = (*Session)(nil)

// New returns a disconnected session. When settingsPath is not empty,
// audio state is loaded from it and saved back on every change.
func New(logger *slog.Logger, settingsPath string) (*Session, error) {
	s := &Session{
		logger:       logger.With("component", "session"),
		settingsPath: settingsPath,
		visible:      true,
		channels: map[int]*channel{
			dispatch.RootChannel: {id: dispatch.RootChannel, parent: -1, name: RootName},
		},
		links:   make(map[link]struct{}),
		current: dispatch.RootChannel,
		nextID:  dispatch.RootChannel + 1,
	}
	if settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		s.audio = dispatch.AudioState{Muted: settings.Muted, Deafened: settings.Deafened}
	}
	return s, nil
}

// State is a snapshot of a Session.
type State struct {
	Audio      dispatch.AudioState
	Visible    bool
	FocusCount int
	Connected  bool
	Connection dispatch.ConnectionInfo
	Channel    int
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Audio:      s.audio,
		Visible:    s.visible,
		FocusCount: s.focusCount,
		Connected:  s.connected,
		Connection: s.connection,
		Channel:    s.current,
	}
}

// BringToFront shows the window and counts one focus request.
func (s *Session) BringToFront(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
	s.focusCount++
	return nil
}

// SetVisible shows or hides the window.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
	return nil
}

// AudioState returns the current mute and deafen flags.
func (s *Session) AudioState(ctx context.Context) (dispatch.AudioState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio, nil
}

// SetMuted sets the mute flag and persists the audio settings.
func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio.Muted = muted
	s.persist()
	return nil
}

// SetDeafened sets the deafen flag and persists the audio settings.
// Muting is left unchanged.
func (s *Session) SetDeafened(ctx context.Context, deafened bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio.Deafened = deafened
	s.persist()
	return nil
}

// persist saves the audio settings. The in-memory change stands even
// when saving fails. Callers hold mu.
func (s *Session) persist() {
	if s.settingsPath == "" {
		return
	}
	settings := Settings{Muted: s.audio.Muted, Deafened: s.audio.Deafened}
	if err := SaveSettings(s.settingsPath, settings); err != nil {
		s.logger.Warn("saving audio settings failed", "path", s.settingsPath, "error", err)
	}
}

// OpenURL connects to the server a mumble://[user[:password]@]host[:port]/path
// URL names and joins the channel at path when it exists.
func (s *Session) OpenURL(ctx context.Context, target *url.URL) error {
	if target.Scheme != dispatch.URLScheme {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, target.Scheme)
	}
	host := target.Hostname()
	if host == "" {
		return fmt.Errorf("%w: no host", ErrInvalidURL)
	}
	port := DefaultPort
	if text := target.Port(); text != "" {
		parsed, err := strconv.Atoi(text)
		if err != nil || parsed < 1 || parsed > 65535 {
			return fmt.Errorf("%w: port %q", ErrInvalidURL, text)
		}
		port = parsed
	}
	path, err := channelPath(target)
	if err != nil {
		return err
	}

	connect := dispatch.ConnectTarget{Host: host, Port: port}
	if target.User != nil {
		connect.User = target.User.Username()
		connect.Password, _ = target.User.Password()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.connection.Host != connect.Host || s.connection.Port != connect.Port || (connect.User != "" && s.connection.User != connect.User) {
		s.connectLocked(connect)
	}
	if id, ok := s.resolvePathLocked(path); ok {
		s.current = id
	} else {
		s.logger.Debug("url channel not found, staying in current channel", "path", path)
	}
	return nil
}

// channelPath splits the escaped URL path into unescaped channel names,
// so an escaped '/' stays inside its name.
func channelPath(target *url.URL) ([]string, error) {
	var path []string
	for _, segment := range strings.Split(strings.Trim(target.EscapedPath(), "/"), "/") {
		if segment == "" {
			continue
		}
		name, err := url.PathUnescape(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		path = append(path, name)
	}
	return path, nil
}

// BeginConnect connects to target, replacing any current connection,
// and places the user in the root channel.
func (s *Session) BeginConnect(ctx context.Context, target dispatch.ConnectTarget) error {
	if target.Host == "" {
		return fmt.Errorf("%w: no host", ErrInvalidURL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectLocked(target)
	return nil
}

func (s *Session) connectLocked(target dispatch.ConnectTarget) {
	if s.connected {
		s.disconnectLocked()
	}
	s.connected = true
	s.connection = dispatch.ConnectionInfo{Host: target.Host, Port: target.Port, User: target.User}
	s.password = target.Password
	s.current = dispatch.RootChannel
	s.logger.Info("connected",
		"server", net.JoinHostPort(target.Host, strconv.Itoa(target.Port)),
		"user", target.User,
	)
}

// Disconnect ends the connection and drops temporary channels.
// It returns ErrNotConnected when there is no connection.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.disconnectLocked()
	return nil
}

func (s *Session) disconnectLocked() {
	for id, ch := range s.channels {
		if ch.temporary {
			if _, exists := s.channels[id]; exists {
				s.removeLocked(id)
			}
		}
	}
	s.connected = false
	s.connection = dispatch.ConnectionInfo{}
	s.password = ""
	s.current = dispatch.RootChannel
	s.logger.Info("disconnected")
}

// LinkChannels links two distinct existing channels. Links are
// symmetric.
func (s *Session) LinkChannels(ctx context.Context, channel, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPairLocked(channel, target); err != nil {
		return err
	}
	s.links[newLink(channel, target)] = struct{}{}
	return nil
}

// UnlinkChannels removes the link between two channels, if any.
func (s *Session) UnlinkChannels(ctx context.Context, channel, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPairLocked(channel, target); err != nil {
		return err
	}
	delete(s.links, newLink(channel, target))
	return nil
}

func (s *Session) checkPairLocked(channel, target int) error {
	if !s.connected {
		return ErrNotConnected
	}
	for _, id := range []int{channel, target} {
		if _, exists := s.channels[id]; !exists {
			return fmt.Errorf("%w: %d", ErrNoSuchChannel, id)
		}
	}
	if channel == target {
		return fmt.Errorf("channel %d cannot be linked to itself", channel)
	}
	return nil
}

// Linked reports whether two channels are linked.
func (s *Session) Linked(a, b int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, linked := s.links[newLink(a, b)]
	return linked
}

// CreateChannel adds a channel under request.ParentID. Names must be
// non-blank and unique among their siblings.
func (s *Session) CreateChannel(ctx context.Context, request dispatch.ChannelSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if _, exists := s.channels[request.ParentID]; !exists {
		return fmt.Errorf("%w: parent %d", ErrNoSuchChannel, request.ParentID)
	}
	if strings.TrimSpace(request.Name) == "" {
		return errors.New("channel name is empty")
	}
	if request.MaxUsers < 0 {
		return fmt.Errorf("invalid user limit %d", request.MaxUsers)
	}
	if _, exists := s.childLocked(request.ParentID, request.Name); exists {
		return fmt.Errorf("channel %q already exists under %d", request.Name, request.ParentID)
	}

	id := s.nextID
	s.nextID++
	s.channels[id] = &channel{
		id:          id,
		parent:      request.ParentID,
		name:        request.Name,
		description: request.Description,
		position:    request.Position,
		temporary:   request.Temporary,
		maxUsers:    request.MaxUsers,
	}
	s.logger.Debug("channel created", "id", id, "name", request.Name, "parent", request.ParentID)
	return nil
}

// RemoveChannel deletes a channel, its subtree, and every link that
// touches them. A user inside the subtree moves to the removed
// channel's parent. The root channel cannot be removed.
func (s *Session) RemoveChannel(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if id == dispatch.RootChannel {
		return errors.New("the root channel cannot be removed")
	}
	if _, exists := s.channels[id]; !exists {
		return fmt.Errorf("%w: %d", ErrNoSuchChannel, id)
	}
	s.removeLocked(id)
	return nil
}

// removeLocked removes id and its subtree with their links. A user
// inside the subtree moves to the removed channel's parent.
func (s *Session) removeLocked(id int) {
	parent := s.channels[id].parent
	for _, removed := range s.subtreeLocked(id) {
		if removed == s.current {
			s.current = parent
		}
		delete(s.channels, removed)
		for l := range s.links {
			if l.low == removed || l.high == removed {
				delete(s.links, l)
			}
		}
	}
}

func (s *Session) subtreeLocked(id int) []int {
	subtree := []int{id}
	for i := 0; i < len(subtree); i++ {
		for _, ch := range s.channels {
			if ch.parent == subtree[i] {
				subtree = append(subtree, ch.id)
			}
		}
	}
	return subtree
}

func (s *Session) childLocked(parent int, name string) (int, bool) {
	for _, ch := range s.channels {
		if ch.parent == parent && ch.name == name {
			return ch.id, true
		}
	}
	return 0, false
}

func (s *Session) resolvePathLocked(path []string) (int, bool) {
	id := dispatch.RootChannel
	for _, name := range path {
		child, ok := s.childLocked(id, name)
		if !ok {
			return 0, false
		}
		id = child
	}
	return id, true
}

// JoinChannel moves the user to channel id.
func (s *Session) JoinChannel(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if _, exists := s.channels[id]; !exists {
		return fmt.Errorf("%w: %d", ErrNoSuchChannel, id)
	}
	s.current = id
	return nil
}

// LookupChannel returns the id of the channel at path below the root.
func (s *Session) LookupChannel(path ...string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvePathLocked(path)
}

// Children returns the names of id's direct children ordered by
// position, then name.
func (s *Session) Children(id int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var children []*channel
	for _, ch := range s.channels {
		if ch.parent == id {
			children = append(children, ch)
		}
	}
	slices.SortFunc(children, func(a, b *channel) int {
		return cmp.Or(cmp.Compare(a.position, b.position), strings.Compare(a.name, b.name))
	})
	names := make([]string, len(children))
	for i, ch := range children {
		names[i] = ch.name
	}
	return names
}

// CurrentConnection reports the server and user of the connection.
// The boolean is false when not connected.
func (s *Session) CurrentConnection(ctx context.Context) (dispatch.ConnectionInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection, s.connected, nil
}

// CurrentChannel returns the id of the channel the user is in.
func (s *Session) CurrentChannel(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	return s.current, nil
}

// CurrentChannelPath returns the channel names from below the root
// down to the current channel. The root channel is an empty path.
func (s *Session) CurrentChannelPath(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	var path []string
	for id := s.current; id != dispatch.RootChannel; id = s.channels[id].parent {
		path = append(path, s.channels[id].name)
	}
	slices.Reverse(path)
	return path, nil
}
