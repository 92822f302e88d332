// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/socketrpc/lib/config"
	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
	"github.com/bureau-foundation/socketrpc/lib/logging"
	"github.com/bureau-foundation/socketrpc/lib/process"
	"github.com/bureau-foundation/socketrpc/lib/socketrpc"
	"github.com/bureau-foundation/socketrpc/lib/version"
)

// Exit statuses. A declined request is not an error, so it gets its
// own status distinct from a failed call.
const (
	exitSucceeded = 0
	exitDeclined  = 1
	exitCallError = 2
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// invocation is one parsed command line.
type invocation struct {
	configPath     string
	socketPath     string
	basename       string
	connectTimeout time.Duration
	readTimeout    time.Duration
	debug          bool

	command string
	attrs   *fieldmap.Map
	fields  *fieldmap.Map
}

func parseInvocation(args []string, usage io.Writer) (*invocation, bool, error) {
	var (
		inv         invocation
		attrPairs   []string
		fieldsFile  string
		reqID       string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("socketrpc-call", pflag.ContinueOnError)
	flagSet.SetOutput(usage)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&inv.configPath, "config", "", "path to the YAML config file (default: $SOCKETRPC_CONFIG)")
	flagSet.StringVar(&inv.socketPath, "socket", "", "control socket path (overrides --basename)")
	flagSet.StringVar(&inv.basename, "basename", "", "socket base name, resolved under $XDG_RUNTIME_DIR or $HOME")
	flagSet.DurationVar(&inv.connectTimeout, "connect-timeout", 0, "bound on connecting (default from config, 1s)")
	flagSet.DurationVar(&inv.readTimeout, "read-timeout", 0, "bound on waiting for the reply (default from config, 2s)")
	flagSet.StringArrayVar(&attrPairs, "attr", nil, "request attribute name=value (repeatable)")
	flagSet.StringVar(&fieldsFile, "fields", "", "JSONC file holding an object of request fields")
	flagSet.StringVar(&reqID, "reqid", "", "request id to send (default: a random UUID)")
	flagSet.BoolVar(&inv.debug, "debug", false, "log the exchange to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(usage, "usage: socketrpc-call [flags] <command> [name=value...]\n\n")
		fmt.Fprintf(usage, "examples:\n")
		fmt.Fprintf(usage, "  socketrpc-call self mute=true\n")
		fmt.Fprintf(usage, "  socketrpc-call self command='connect voice.example.org port 64738 as alice'\n")
		fmt.Fprintf(usage, "  socketrpc-call url\n\n")
		fmt.Fprintf(usage, "flags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if showVersion {
		version.Print("socketrpc-call")
		return nil, true, nil
	}

	positional := flagSet.Args()
	if len(positional) == 0 {
		flagSet.Usage()
		return nil, false, errors.New("missing command")
	}
	inv.command = positional[0]

	inv.attrs = fieldmap.New()
	if err := parsePairs(inv.attrs, attrPairs); err != nil {
		return nil, false, fmt.Errorf("--attr: %w", err)
	}

	inv.fields = fieldmap.New()
	if fieldsFile != "" {
		data, err := os.ReadFile(fieldsFile)
		if err != nil {
			return nil, false, err
		}
		fromFile, err := parseFieldsFile(data)
		if err != nil {
			return nil, false, err
		}
		inv.fields = fromFile
	}
	if err := parsePairs(inv.fields, positional[1:]); err != nil {
		return nil, false, err
	}
	if reqID != "" {
		inv.fields.Set("reqid", reqID)
	}

	return &inv, false, nil
}

func run(args []string, stdout io.Writer) error {
	inv, done, err := parseInvocation(args, os.Stderr)
	if err != nil {
		return process.Exit(exitCallError, err)
	}
	if done {
		return nil
	}

	client, err := inv.client()
	if err != nil {
		return process.Exit(exitCallError, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reply, err := client.Do(ctx, inv.command, inv.attrs, inv.fields)
	if err != nil {
		return process.Exit(exitCallError, err)
	}
	printReply(stdout, reply)
	if !reply.Succeeded {
		return process.Exit(exitDeclined, nil)
	}
	return nil
}

// client builds a socketrpc client from config, with flags taking
// precedence over file values.
func (inv *invocation) client() (*socketrpc.Client, error) {
	var cfg *config.Config
	var err error
	if inv.configPath != "" {
		cfg, err = config.LoadFile(inv.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if inv.socketPath != "" {
		cfg.Socket.Path = inv.socketPath
	}
	if inv.basename != "" {
		cfg.Socket.Basename = inv.basename
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	address, err := cfg.SocketAddress()
	if err != nil {
		return nil, err
	}
	client := socketrpc.NewClient(address)
	client.ConnectTimeout, _ = cfg.ConnectTimeout()
	client.ReadTimeout, _ = cfg.ReadTimeout()
	if inv.connectTimeout > 0 {
		client.ConnectTimeout = inv.connectTimeout
	}
	if inv.readTimeout > 0 {
		client.ReadTimeout = inv.readTimeout
	}
	if inv.debug {
		logger, err := logging.New(slog.LevelDebug, logging.Auto)
		if err != nil {
			return nil, err
		}
		client.Logger = logger
	}
	return client, nil
}

// printReply writes one name=value line per reply field, in reply
// order.
func printReply(w io.Writer, reply *socketrpc.Reply) {
	for name, value := range reply.Fields.All() {
		fmt.Fprintf(w, "%s=%s\n", name, value)
	}
}
