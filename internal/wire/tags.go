// tags.go: event-type tag numbers and the static schema table
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package wire

import "fmt"

// Size sentinels for SchemaEntry.Size.
const (
	// Variable marks a tag whose payload is prefixed on the wire by a
	// 16-bit byte length.
	Variable = 0xFFFF
	// Deprecated marks a tag reserved by an earlier revision. It is never
	// emitted in the header's event-type table nor on the wire.
	Deprecated = 0xFFFE
)

// Stream sentinels, stable across versions (spec ref "Runtime surface").
const (
	HeaderBegin uint32 = 0x68647262
	HetBegin    uint32 = 0x68657462
	HetEnd      uint32 = 0x68657465
	HeaderEnd   uint32 = 0x68647265
	DataBegin   uint32 = 0x64617462
	DataEnd     uint16 = 0xffff

	EtBegin uint32 = 0x65746200
	EtEnd   uint32 = 0x65746500
)

// Event tag numbers. Numbering follows declaration order, mirroring the
// enum the schema table was distilled from. The numbering has no gaps and
// no tag in the table is currently marked Deprecated.
const (
	TagCreateThread uint16 = iota
	TagRunThread
	TagThreadRunnable
	TagCreateSparkThread
	TagMigrateThread
	TagThreadWakeup
	TagStopThread
	TagStartup
	TagCapsetCreate
	TagCapsetDelete
	TagCapsetAssignCap
	TagCapsetRemoveCap
	TagOsprocessPid
	TagOsprocessPpid
	TagSparkSteal
	TagSparkCounters
	TagBlockMarker
	TagDebugPtrRange
	TagWallClockTime
	TagShutdown
	TagRequestSeqGc
	TagRequestParGc
	TagGcStart
	TagGcEnd
	TagGcIdle
	TagGcWork
	TagGcDone
	TagSparkCreate
	TagSparkDud
	TagSparkOverflow
	TagSparkRun
	TagSparkFizzle
	TagSparkGc
	TagLogMsg
	TagUserMsg
	TagRtsIdentifier
	TagProgramArgs
	TagProgramEnv
	TagThreadLabel
	TagHpcModule
	TagTickDump
	TagInstrPtrSample
	TagDebugModule
	TagDebugProcedure
	TagDebugSource
	TagDebugCore
	TagDebugName
	NumTags
)

// SchemaEntry is one row of the event-type table: a tag's declared payload
// shape and a human-readable description written into the header.
type SchemaEntry struct {
	Tag  uint16
	Desc string
	Size int // non-negative fixed size, or Variable, or Deprecated
}

var descriptions = [NumTags]SchemaEntry{
	TagCreateThread:      {TagCreateThread, "create thread", 4},
	TagRunThread:         {TagRunThread, "run thread", 4},
	TagThreadRunnable:    {TagThreadRunnable, "thread runnable", 4},
	TagCreateSparkThread: {TagCreateSparkThread, "create spark thread", 4},
	TagMigrateThread:     {TagMigrateThread, "migrate thread", 6},
	TagThreadWakeup:      {TagThreadWakeup, "wake up thread", 6},
	TagStopThread:        {TagStopThread, "stop thread", 10},
	TagStartup:           {TagStartup, "startup", 2},
	TagCapsetCreate:      {TagCapsetCreate, "capset create", 6},
	TagCapsetDelete:      {TagCapsetDelete, "capset delete", 4},
	TagCapsetAssignCap:   {TagCapsetAssignCap, "capset assign capability", 6},
	TagCapsetRemoveCap:   {TagCapsetRemoveCap, "capset remove capability", 6},
	TagOsprocessPid:      {TagOsprocessPid, "os process pid", 8},
	TagOsprocessPpid:     {TagOsprocessPpid, "os process parent pid", 8},
	TagSparkSteal:        {TagSparkSteal, "spark steal", 2},
	TagSparkCounters:     {TagSparkCounters, "spark counters", 56},
	TagBlockMarker:       {TagBlockMarker, "block marker", 14},
	TagDebugPtrRange:     {TagDebugPtrRange, "procedure pointer range", 16},
	TagWallClockTime:     {TagWallClockTime, "wall clock time", 16},

	TagShutdown:      {TagShutdown, "shutdown", 0},
	TagRequestSeqGc:  {TagRequestSeqGc, "requesting sequential GC", 0},
	TagRequestParGc:  {TagRequestParGc, "requesting parallel GC", 0},
	TagGcStart:       {TagGcStart, "starting GC", 0},
	TagGcEnd:         {TagGcEnd, "finished GC", 0},
	TagGcIdle:        {TagGcIdle, "GC idle", 0},
	TagGcWork:        {TagGcWork, "GC working", 0},
	TagGcDone:        {TagGcDone, "GC done", 0},
	TagSparkCreate:   {TagSparkCreate, "spark create", 0},
	TagSparkDud:      {TagSparkDud, "spark dud", 0},
	TagSparkOverflow: {TagSparkOverflow, "spark overflow", 0},
	TagSparkRun:      {TagSparkRun, "spark run", 0},
	TagSparkFizzle:   {TagSparkFizzle, "spark fizzle", 0},
	TagSparkGc:       {TagSparkGc, "spark GC'd", 0},

	TagLogMsg:         {TagLogMsg, "log message", Variable},
	TagUserMsg:        {TagUserMsg, "user message", Variable},
	TagRtsIdentifier:  {TagRtsIdentifier, "RTS identifier", Variable},
	TagProgramArgs:    {TagProgramArgs, "program arguments", Variable},
	TagProgramEnv:     {TagProgramEnv, "program environment variables", Variable},
	TagThreadLabel:    {TagThreadLabel, "thread label", Variable},
	TagHpcModule:      {TagHpcModule, "hpc module", Variable},
	TagTickDump:       {TagTickDump, "tick dump", Variable},
	TagInstrPtrSample: {TagInstrPtrSample, "instruction pointer samples", Variable},
	TagDebugModule:    {TagDebugModule, "debug module", Variable},
	TagDebugProcedure: {TagDebugProcedure, "debug procedure", Variable},
	TagDebugSource:    {TagDebugSource, "debug source", Variable},
	TagDebugCore:      {TagDebugCore, "debug core", Variable},
	TagDebugName:      {TagDebugName, "debug name", Variable},
}

// Schema is the process-wide, immutable event-type table built at package
// init. It is asserted against NumTags once; a mismatch is a programmer
// error in the table above, not a runtime condition, so it panics during
// init rather than surfacing as an error return.
var Schema = BuildSchema()

// BuildSchema validates the static description table and returns it as a
// slice, skipping deprecated entries. Exported so callers (and tests) can
// rebuild it deterministically without depending on package-level state.
func BuildSchema() []SchemaEntry {
	if len(descriptions) != int(NumTags) {
		panic(fmt.Sprintf("wire: schema table has %d entries, want %d", len(descriptions), NumTags))
	}

	out := make([]SchemaEntry, 0, NumTags)
	for _, e := range descriptions {
		if e.Size == Deprecated {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FixedSize reports the declared size for tag and whether it is a fixed
// (non-variable, non-deprecated) size.
func FixedSize(tag uint16) (size int, fixed bool) {
	if int(tag) >= len(descriptions) {
		return 0, false
	}
	e := descriptions[tag]
	if e.Size == Variable || e.Size == Deprecated {
		return 0, false
	}
	return e.Size, true
}

// IsVariable reports whether tag's payload is length-prefixed on the wire.
func IsVariable(tag uint16) bool {
	return int(tag) < len(descriptions) && descriptions[tag].Size == Variable
}

// Describe returns the human-readable description for tag, or "" if tag is
// out of range.
func Describe(tag uint16) string {
	if int(tag) >= len(descriptions) {
		return ""
	}
	return descriptions[tag].Desc
}
