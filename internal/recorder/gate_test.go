package recorder

import (
	"testing"
	"time"
)

func TestGateStartsClosed(t *testing.T) {
	g := NewGate()
	if g.IsOpen() {
		t.Fatal("new gate is open")
	}

	done := make(chan bool)
	go func() { done <- g.Wait() }()

	select {
	case <-done:
		t.Fatal("Wait returned on a closed gate")
	case <-time.After(20 * time.Millisecond):
	}

	g.Wake()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Wait reported termination after Wake")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestGateLevelTriggered(t *testing.T) {
	g := NewGate()
	g.Wake()
	g.Wake()
	for i := 0; i < 3; i++ {
		if !g.Wait() {
			t.Fatal("open gate reported termination")
		}
	}

	g.Sleep()
	g.Sleep()
	if g.IsOpen() {
		t.Fatal("gate open after Sleep")
	}

	for cycle := 0; cycle < 50; cycle++ {
		g.Wake()
		g.Sleep()
	}
	g.Wake()
	if !g.Wait() {
		t.Fatal("Wait failed after wake/sleep cycles")
	}
}

func TestGateTerminateReleasesWaiter(t *testing.T) {
	g := NewGate()
	done := make(chan bool)
	go func() { done <- g.Wait() }()

	time.Sleep(10 * time.Millisecond)
	g.Terminate()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Wait returned true after Terminate")
		}
	case <-time.After(time.Second):
		t.Fatal("parked waiter not released by Terminate")
	}

	g.Wake()
	if g.Wait() {
		t.Fatal("terminated gate reopened")
	}
	g.Terminate()
}
