// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch maps decoded request documents to actions on the
// running client and builds the reply fields.
//
// Commands are looked up by the request's outer element name. The
// built-in commands are:
//
//   - focus: raise and activate the main window.
//   - self: apply audio flags (mute, unmute, togglemute, deaf, undeaf,
//     toggledeaf), then an optional token command line such as
//     "connect example.org port 64738 as alice" or "createchannel Team
//     Room".
//   - url: report the current server and channel as a mumble:// href,
//     and open the href the request carries.
//
// Every reply carries succeeded and echoes the request's reqid. An
// unknown command is not a protocol error: it is logged and answered
// with succeeded=false. Field values that fail to convert cause only
// the affected action to be skipped, and the command to report
// succeeded=false.
//
// Actions run through an [Executor], which owns all application state.
package dispatch
