package process

import (
	"context"
	"errors"
	"testing"
)

type fakeComponent struct {
	startErr error
	started  bool
	stopped  bool

	// name and order, when set, record "start:<name>"/"stop:<name>" calls.
	name  string
	order *[]string
}

func (c *fakeComponent) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	if c.order != nil {
		*c.order = append(*c.order, "start:"+c.name)
	}
	return nil
}

func (c *fakeComponent) Stop(context.Context) error {
	c.stopped = true
	if c.order != nil {
		*c.order = append(*c.order, "stop:"+c.name)
	}
	return nil
}

func TestSupervisor_StartStopOrder(t *testing.T) {
	s := New(nil, 0)
	var order []string

	a := &fakeComponent{name: "a", order: &order}
	b := &fakeComponent{name: "b", order: &order}
	s.Add("a", a)
	s.Add("b", b)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.started || !b.started {
		t.Fatal("both components should have started")
	}

	s.Stop()
	if !a.stopped || !b.stopped {
		t.Fatal("both components should have stopped")
	}
	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSupervisor_StartFailureStopsPreviouslyStarted(t *testing.T) {
	s := New(nil, 0)

	a := &fakeComponent{}
	b := &fakeComponent{startErr: errors.New("boom")}
	s.Add("a", a)
	s.Add("b", b)

	if err := s.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if !a.started {
		t.Fatal("a should have started before b failed")
	}
	if !a.stopped {
		t.Fatal("a should be rolled back when b fails to start")
	}
}

func TestSupervisor_AddNonLifecycleValueIsHarmless(t *testing.T) {
	s := New(nil, 0)
	s.Add("noop", struct{}{})
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
}
