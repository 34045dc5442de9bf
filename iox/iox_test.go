package iox

import (
	"errors"
	"slices"
	"testing"
)

type spyCloser struct {
	name  string
	order *[]string
	err   error
}

func (s *spyCloser) Close() error {
	*s.order = append(*s.order, s.name)
	return s.err
}

func TestDiscardClose(t *testing.T) {
	var order []string
	DiscardClose(&spyCloser{name: "a", order: &order, err: errors.New("ignored")})
	if !slices.Equal(order, []string{"a"}) {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestStack_ClosesInReverse(t *testing.T) {
	var order []string
	errJournal := errors.New("journal flush failed")
	errStore := errors.New("store snapshot failed")

	var s Stack
	s.Push(&spyCloser{name: "store", order: &order, err: errStore})
	s.Push(&spyCloser{name: "journal", order: &order, err: errJournal})
	s.Push(&spyCloser{name: "notifier", order: &order})

	err := s.Close()
	if !slices.Equal(order, []string{"notifier", "journal", "store"}) {
		t.Errorf("close order = %v", order)
	}
	if !errors.Is(err, errJournal) || !errors.Is(err, errStore) {
		t.Errorf("joined error = %v", err)
	}

	// A second Close has nothing left to do.
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if len(order) != 3 {
		t.Errorf("resources closed twice: %v", order)
	}
}

func TestStack_Empty(t *testing.T) {
	var s Stack
	if err := s.Close(); err != nil {
		t.Errorf("empty Close = %v", err)
	}
}
