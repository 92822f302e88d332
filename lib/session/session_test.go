// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/socketrpc/lib/dispatch"
	"github.com/bureau-foundation/socketrpc/lib/markup"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(testLogger(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func connected(t *testing.T) *Session {
	t.Helper()
	s := newSession(t)
	err := s.BeginConnect(context.Background(), dispatch.ConnectTarget{Host: "voice.example.org", Port: 64738, User: "alice"})
	if err != nil {
		t.Fatalf("BeginConnect: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Session, parent int, name string, temporary bool) int {
	t.Helper()
	err := s.CreateChannel(context.Background(), dispatch.ChannelSpec{ParentID: parent, Name: name, Temporary: temporary})
	if err != nil {
		t.Fatalf("CreateChannel(%d, %q): %v", parent, name, err)
	}
	s.mu.Lock()
	id, ok := s.childLocked(parent, name)
	s.mu.Unlock()
	if !ok {
		t.Fatalf("channel %q not found after creation", name)
	}
	return id
}

func decodeForTest(t *testing.T, document string) *markup.Request {
	t.Helper()
	request, err := markup.Decode([]byte(document))
	if err != nil {
		t.Fatalf("decoding %q: %v", document, err)
	}
	return request
}

func TestChannelOperationsRequireConnection(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	checks := map[string]error{
		"create":     s.CreateChannel(ctx, dispatch.ChannelSpec{Name: "x"}),
		"remove":     s.RemoveChannel(ctx, 1),
		"link":       s.LinkChannels(ctx, 0, 1),
		"disconnect": s.Disconnect(ctx),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("%s: got %v, want ErrNotConnected", name, err)
		}
	}
	if _, err := s.CurrentChannelPath(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("CurrentChannelPath: got %v", err)
	}
}

func TestCreateChannelRules(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	mustCreate(t, s, 0, "Lobby", false)

	if err := s.CreateChannel(ctx, dispatch.ChannelSpec{ParentID: 0, Name: "Lobby"}); err == nil {
		t.Error("duplicate sibling name accepted")
	}
	if err := s.CreateChannel(ctx, dispatch.ChannelSpec{ParentID: 0, Name: "  "}); err == nil {
		t.Error("blank name accepted")
	}
	if err := s.CreateChannel(ctx, dispatch.ChannelSpec{ParentID: 99, Name: "x"}); !errors.Is(err, ErrNoSuchChannel) {
		t.Errorf("unknown parent: got %v", err)
	}
	if err := s.CreateChannel(ctx, dispatch.ChannelSpec{ParentID: 0, Name: "x", MaxUsers: -1}); err == nil {
		t.Error("negative user limit accepted")
	}
}

func TestRemoveChannelSubtree(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	games := mustCreate(t, s, 0, "Games", false)
	team := mustCreate(t, s, games, "Team", false)
	other := mustCreate(t, s, 0, "Other", false)

	if err := s.LinkChannels(ctx, team, other); err != nil {
		t.Fatal(err)
	}
	if err := s.JoinChannel(ctx, team); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveChannel(ctx, games); err != nil {
		t.Fatalf("RemoveChannel: %v", err)
	}
	if _, ok := s.LookupChannel("Games", "Team"); ok {
		t.Error("child of removed channel still exists")
	}
	if s.Linked(team, other) {
		t.Error("link to removed channel survived")
	}
	if got := s.Snapshot().Channel; got != dispatch.RootChannel {
		t.Errorf("user should move to the removed channel's parent, in %d", got)
	}
	if err := s.RemoveChannel(ctx, dispatch.RootChannel); err == nil {
		t.Error("root removal accepted")
	}
	if err := s.RemoveChannel(ctx, games); !errors.Is(err, ErrNoSuchChannel) {
		t.Errorf("second removal: got %v", err)
	}
}

func TestLinkUnlink(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	a := mustCreate(t, s, 0, "A", false)
	if err := s.LinkChannels(ctx, a, 0); err != nil {
		t.Fatal(err)
	}
	if !s.Linked(0, a) {
		t.Error("links are symmetric")
	}
	if err := s.UnlinkChannels(ctx, 0, a); err != nil {
		t.Fatal(err)
	}
	if s.Linked(a, 0) {
		t.Error("still linked after unlink")
	}
	if err := s.LinkChannels(ctx, a, a); err == nil {
		t.Error("self link accepted")
	}
	if err := s.LinkChannels(ctx, a, 42); !errors.Is(err, ErrNoSuchChannel) {
		t.Errorf("link to unknown: got %v", err)
	}
}

func TestDisconnectDropsTemporaryChannels(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	mustCreate(t, s, 0, "Keep", false)
	scratch := mustCreate(t, s, 0, "Scratch", true)
	mustCreate(t, s, scratch, "Inside", false)

	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Children(0); !slices.Equal(got, []string{"Keep"}) {
		t.Errorf("root children after disconnect: %v", got)
	}
	if s.Snapshot().Connected {
		t.Error("still connected")
	}
}

func TestOpenURL(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	games := mustCreate(t, s, 0, "Games", false)
	mustCreate(t, s, games, "Team A/B", false)

	target, err := url.Parse("mumble://alice@voice.example.org/Games/Team%20A%2FB?version=1.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.OpenURL(ctx, target); err != nil {
		t.Fatalf("OpenURL: %v", err)
	}
	path, err := s.CurrentChannelPath(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(path, []string{"Games", "Team A/B"}) {
		t.Errorf("path: got %q", path)
	}

	// The generated URL for the current position leads back to it.
	info, _, _ := s.CurrentConnection(ctx)
	built := dispatch.BuildURL(info, path)
	if built.String() != "mumble://alice@voice.example.org:64738/Games/Team%20A%2FB?version=1.2.0" {
		t.Errorf("built url: %s", built)
	}
}

func TestOpenURLConnectsToNewServer(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	target, _ := url.Parse("mumble://bob:pw@other.example.org:1234/Nowhere")
	if err := s.OpenURL(ctx, target); err != nil {
		t.Fatalf("OpenURL: %v", err)
	}
	state := s.Snapshot()
	want := dispatch.ConnectionInfo{Host: "other.example.org", Port: 1234, User: "bob"}
	if !state.Connected || state.Connection != want {
		t.Errorf("connection: got %+v connected=%v", state.Connection, state.Connected)
	}
	if state.Channel != dispatch.RootChannel {
		t.Errorf("missing channel path should leave the user in root, got %d", state.Channel)
	}

	for _, raw := range []string{"https://h/", "mumble:///nohost", "mumble://h:0/"} {
		target, _ := url.Parse(raw)
		if err := s.OpenURL(ctx, target); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%s: got %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestWindowState(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	s.SetVisible(ctx, false)
	if s.Snapshot().Visible {
		t.Error("hidden window reported visible")
	}
	s.BringToFront(ctx)
	state := s.Snapshot()
	if !state.Visible || state.FocusCount != 1 {
		t.Errorf("after BringToFront: %+v", state)
	}
}

func TestAudioSettingsPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.cbor")

	s, err := New(testLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMuted(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDeafened(ctx, true); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(testLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	audio, _ := reopened.AudioState(ctx)
	if !audio.Muted || !audio.Deafened {
		t.Errorf("audio state not restored: %+v", audio)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	directory := t.TempDir()

	settings, err := LoadSettings(filepath.Join(directory, "missing"))
	if err != nil || settings != (Settings{}) {
		t.Errorf("missing file: got %+v, %v", settings, err)
	}

	corrupt := filepath.Join(directory, "corrupt")
	if err := os.WriteFile(corrupt, []byte{0xff, 0x00}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(corrupt); err == nil {
		t.Error("corrupt file accepted")
	}
	if _, err := New(testLogger(), corrupt); err == nil {
		t.Error("New should fail on a corrupt settings file")
	}
}

func TestSaveSettingsDeterministic(t *testing.T) {
	directory := t.TempDir()
	first := filepath.Join(directory, "a")
	second := filepath.Join(directory, "b")
	settings := Settings{Muted: true}
	if err := SaveSettings(first, settings); err != nil {
		t.Fatal(err)
	}
	if err := SaveSettings(second, settings); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if string(a) != string(b) {
		t.Error("same settings encoded differently")
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("settings file mode: %v", info.Mode().Perm())
	}
}

func TestSessionThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	d := dispatch.New(s, testLogger())

	run := func(document string) bool {
		t.Helper()
		request := decodeForTest(t, document)
		reply := d.Dispatch(ctx, request)
		succeeded, _ := reply.Bool(dispatch.FieldSucceeded)
		return succeeded
	}

	if !run(`<self><command>createchannel Team Room</command></self>`) {
		t.Fatal("createchannel failed")
	}
	id, ok := s.LookupChannel("Team Room")
	if !ok {
		t.Fatal("createchannel did not create Team Room")
	}
	if err := s.JoinChannel(ctx, id); err != nil {
		t.Fatal(err)
	}
	if !run(`<self command="link"/>`) || !s.Linked(id, 0) {
		t.Error("link to root failed")
	}
	if !run(`<self command="deletechannel"/>`) {
		t.Error("deletechannel failed")
	}
	if _, ok := s.LookupChannel("Team Room"); ok {
		t.Error("channel survived deletechannel")
	}
	if run(`<self command="deletechannel"/>`) {
		t.Error("deleting the root channel should not be acknowledged")
	}
}
