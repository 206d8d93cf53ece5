package wire

import "testing"

func TestBuildSchemaOmitsDeprecated(t *testing.T) {
	schema := BuildSchema()
	for _, e := range schema {
		if e.Size == Deprecated {
			t.Fatalf("schema contains deprecated tag %d", e.Tag)
		}
	}
}

func TestFixedSizeTable(t *testing.T) {
	cases := []struct {
		tag  uint16
		size int
	}{
		{TagCreateThread, 4},
		{TagMigrateThread, 6},
		{TagStopThread, 10},
		{TagStartup, 2},
		{TagCapsetCreate, 6},
		{TagOsprocessPid, 8},
		{TagSparkSteal, 2},
		{TagSparkCounters, 56},
		{TagBlockMarker, 14},
		{TagDebugPtrRange, 16},
		{TagWallClockTime, 16},
		{TagShutdown, 0},
	}
	for _, c := range cases {
		size, fixed := FixedSize(c.tag)
		if !fixed {
			t.Fatalf("tag %d: want fixed size, got variable/deprecated", c.tag)
		}
		if size != c.size {
			t.Fatalf("tag %d: size = %d, want %d", c.tag, size, c.size)
		}
	}
}

func TestIsVariable(t *testing.T) {
	variableTags := []uint16{
		TagLogMsg, TagUserMsg, TagRtsIdentifier, TagProgramArgs, TagProgramEnv,
		TagThreadLabel, TagHpcModule, TagTickDump, TagInstrPtrSample,
		TagDebugModule, TagDebugProcedure, TagDebugSource, TagDebugCore, TagDebugName,
	}
	for _, tag := range variableTags {
		if !IsVariable(tag) {
			t.Fatalf("tag %d: want variable, got fixed", tag)
		}
	}
	if IsVariable(TagCreateThread) {
		t.Fatal("TagCreateThread should not be variable")
	}
}

func TestSchemaLengthMatchesNumTags(t *testing.T) {
	// BuildSchema would have panicked at package init already if this
	// didn't hold; this test documents the invariant the init-time assert
	// protects.
	count := 0
	for tag := uint16(0); tag < uint16(NumTags); tag++ {
		if _, fixed := FixedSize(tag); fixed || IsVariable(tag) {
			count++
		}
	}
	if count == 0 {
		t.Fatal("no tags classified as fixed or variable")
	}
	if got := len(BuildSchema()); got != count {
		t.Fatalf("schema has %d entries, want %d (one per non-deprecated tag below NumTags)", got, count)
	}
}
