// errors.go: sentinel errors for the event-log lifecycle
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import "errors"

var (
	errNoCurrentFile  = errors.New("eventlog: no current file")
	errAlreadyRunning = errors.New("eventlog: already initialized")
	errNotRunning     = errors.New("eventlog: not initialized")
	errSchemaMismatch = errors.New("eventlog: schema table length mismatch")
)
