package client

import (
	"testing"
	"time"
)

func TestSystemClockDeliversTicksAndTimer(t *testing.T) {
	var clk Clock = systemClock{}
	if clk.Now().IsZero() {
		t.Fatal("Now returned the zero time")
	}

	ticker := clk.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker never ticked")
	}

	timer := clk.NewTimer(5 * time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if timer.Stop() {
		t.Error("Stop after firing should report the timer inactive")
	}
}
