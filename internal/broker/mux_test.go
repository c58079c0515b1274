package broker

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/deckd/internal/protocol"
)

func awaitFrame(t *testing.T, ch <-chan protocol.Frame) protocol.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response frame")
		return protocol.Frame{}
	}
}

func TestMuxAckEchoesSequence(t *testing.T) {
	x := NewMux(func(f protocol.Frame) protocol.Frame {
		return ackFrame(f.Seq)
	}, time.Second)
	defer x.Close()

	ch, err := x.Submit(protocol.Frame{Tag: protocol.TagUpdateDisplay, Seq: 5})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	resp := awaitFrame(t, ch)
	if resp.Tag != protocol.TagCommandAck || resp.Seq != 5 {
		t.Errorf("response = %s seq %d, want CommandAck seq 5", resp.Tag, resp.Seq)
	}
}

func TestMuxCommandsSerialize(t *testing.T) {
	var mu sync.Mutex
	running := 0
	overlapped := false

	x := NewMux(func(f protocol.Frame) protocol.Frame {
		mu.Lock()
		running++
		if running > 1 {
			overlapped = true
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return ackFrame(f.Seq)
	}, 5*time.Second)
	defer x.Close()

	var chans []<-chan protocol.Frame
	for seq := uint16(1); seq <= 5; seq++ {
		ch, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: seq})
		if err != nil {
			t.Fatalf("Submit(seq=%d) error = %v", seq, err)
		}
		chans = append(chans, ch)
	}
	for i, ch := range chans {
		resp := awaitFrame(t, ch)
		if resp.Seq != uint16(i+1) {
			t.Errorf("response %d has seq %d", i, resp.Seq)
		}
	}
	if overlapped {
		t.Error("executor ran concurrently")
	}
}

func TestMuxTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	x := NewMux(func(f protocol.Frame) protocol.Frame {
		<-block
		return ackFrame(f.Seq)
	}, 30*time.Millisecond)
	defer x.Close()

	ch, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 9})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	resp := awaitFrame(t, ch)
	if resp.Tag != protocol.TagCommandError || resp.Seq != 9 {
		t.Fatalf("response = %s seq %d, want CommandError seq 9", resp.Tag, resp.Seq)
	}
	if !strings.Contains(string(resp.Payload), "timed out") {
		t.Errorf("payload = %q", resp.Payload)
	}
}

func TestMuxDuplicateSequence(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	x := NewMux(func(f protocol.Frame) protocol.Frame {
		<-block
		return ackFrame(f.Seq)
	}, time.Second)
	defer x.Close()

	if _, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 3}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 3}); err != ErrDuplicateSequence {
		t.Fatalf("duplicate Submit() error = %v, want ErrDuplicateSequence", err)
	}
}

func TestMuxPendingLimit(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	x := NewMux(func(f protocol.Frame) protocol.Frame {
		<-block
		return ackFrame(f.Seq)
	}, time.Minute)
	defer x.Close()

	for seq := uint16(1); seq <= maxPending; seq++ {
		if _, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: seq}); err != nil {
			t.Fatalf("Submit(seq=%d) error = %v", seq, err)
		}
	}
	if _, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: maxPending + 1}); err != ErrPendingLimit {
		t.Fatalf("Submit() over the limit error = %v, want ErrPendingLimit", err)
	}
}

func TestMuxCloseFailsPendings(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	x := NewMux(func(f protocol.Frame) protocol.Frame {
		<-block
		return ackFrame(f.Seq)
	}, time.Minute)

	ch1, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ch2, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 2})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	go x.Close()

	for _, ch := range []<-chan protocol.Frame{ch1, ch2} {
		resp := awaitFrame(t, ch)
		if resp.Tag != protocol.TagCommandError {
			t.Errorf("response = %s, want CommandError", resp.Tag)
		}
		if !strings.Contains(string(resp.Payload), "connection closed") {
			t.Errorf("payload = %q", resp.Payload)
		}
	}

	if _, err := x.Submit(protocol.Frame{Tag: protocol.TagPing, Seq: 5}); err != ErrConnectionClosed {
		t.Errorf("Submit() after close error = %v, want ErrConnectionClosed", err)
	}
}
