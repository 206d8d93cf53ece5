// doc.go: package documentation
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package rtslog is a binary event-log writer for a multi-threaded runtime.
// It streams time-stamped, typed events describing scheduler, GC, spark and
// capability-set activity into a self-describing binary file, with minimal
// per-event overhead: the dominant post path touches no lock and issues no
// I/O.
//
// # Quick start
//
//	el, err := rtslog.NewWithDefaults("myprog", 4)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer el.End()
//
//	el.PostSchedEvent(0, wire.TagCreateThread, 42)
//
// The tag constants live in the module's internal/wire package, which only
// code inside this module can import.
//
// # Construction
//
//	// Simple: program name, worker count, sensible defaults.
//	el, err := rtslog.NewWithDefaults("myprog", runtime.NumCPU())
//
//	// Full control.
//	el, err := rtslog.NewWithConfig(&rtslog.Config{
//		ProgName:   "myprog",
//		NumCaps:    8,
//		BufferSize: 2 * 1024 * 1024,
//		MaxSizeStr: "500MB",
//		MaxAgeStr:  "24h",
//		Compress:   true,
//		Checksum:   true,
//		ErrorCallback: func(op string, err error) {
//			log.Printf("eventlog error (%s): %v", op, err)
//		},
//	})
//
// # Posting events
//
// Each per-capability post (PostSchedEvent, PostSparkEvent, ...) writes
// into that capability's own buffer without taking a lock; it is safe to
// call concurrently from different capabilities but not from two
// goroutines sharing one capno. Process-wide events (PostCapsetEvent,
// PostWallClockTime, PostStartup, ...) serialize on a single shared-buffer
// mutex; PostLogMsg and PostUserMsg take a capno and use the shared buffer
// only when given SharedCapNo.
//
// # Rotation
//
// Rotate(), or automatic rotation on MaxSizeStr/MaxAgeStr, closes the
// current stream cleanly (its own HEADER/DATA_END pair), renames it with a
// timestamp, and opens a fresh self-describing stream. Compression and
// checksum generation of the rotated-away file run on a background worker
// pool; call WaitForBackgroundTasks in tests that need to observe them.
//
// # Hardware-counter sampling
//
// The papi subpackage implements the second instrumentation source: a
// per-worker hardware-counter sampler whose overflow handler runs in
// signal-equivalent context, appending instruction pointers into a bounded
// ring that is drained into a TagInstrPtrSample event on StopMutator.
package rtslog
