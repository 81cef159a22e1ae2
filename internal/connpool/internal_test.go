package connpool

import "testing"

func TestStateHasAndString(t *testing.T) {
	s := StateAllocated | StateConnected | StateOut
	if !s.Has(StateConnected) {
		t.Fatal("expected StateConnected to be set")
	}
	if s.Has(StateError) {
		t.Fatal("did not expect StateError to be set")
	}
	if got := StateFree.String(); got != "FREE" {
		t.Fatalf("StateFree.String() = %q, want FREE", got)
	}
}

func TestSlotCompactionThreshold(t *testing.T) {
	s := &slot{recvBuf: make([]byte, 300)}
	s.bufFill = 250
	s.bufPos = 210 // > 300 - 100 = 200, should need compaction
	if !s.needsCompaction() {
		t.Fatal("expected compaction to be needed past the two-thirds mark")
	}

	s.compact()
	if s.bufPos != 0 {
		t.Fatalf("bufPos after compact = %d, want 0", s.bufPos)
	}
	if s.bufFill != 40 {
		t.Fatalf("bufFill after compact = %d, want 40", s.bufFill)
	}
}

func TestSlotCompactionNotNeededBelowThreshold(t *testing.T) {
	s := &slot{recvBuf: make([]byte, 300)}
	s.bufFill = 150
	s.bufPos = 100 // 100 is not > 200
	if s.needsCompaction() {
		t.Fatal("did not expect compaction below the two-thirds mark")
	}
}

func TestSlotConsumeClearsStateIn(t *testing.T) {
	s := &slot{recvBuf: make([]byte, 64), bufFill: 10, state: StateIn}
	s.consume(10)
	if s.state.Has(StateIn) {
		t.Fatal("expected StateIn cleared after full consume")
	}
	if s.bufPos != 10 {
		t.Fatalf("bufPos = %d, want 10", s.bufPos)
	}
}

func TestSlotAppendDataTruncatesAtCapacity(t *testing.T) {
	s := &slot{recvBuf: make([]byte, 4)}
	ok := s.appendData([]byte{1, 2, 3, 4, 5, 6})
	if !ok {
		t.Fatal("expected appendData to report bytes written")
	}
	if s.bufFill != 4 {
		t.Fatalf("bufFill = %d, want 4 (truncated to buffer size)", s.bufFill)
	}
}

func TestInvariantBufPosNeverExceedsBufFill(t *testing.T) {
	s := &slot{recvBuf: make([]byte, 16), bufFill: 5}
	s.consume(100)
	if s.bufPos != s.bufFill {
		t.Fatalf("bufPos=%d bufFill=%d: consume must clamp, never overrun", s.bufPos, s.bufFill)
	}
}
