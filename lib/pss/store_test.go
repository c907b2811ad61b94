package pss

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/hxrender"
)

func state(t *testing.T, v string) hxrender.TemplateState {
	t.Helper()
	s, err := hxrender.NewState(v)
	require.NoError(t, err)
	return s
}

func addPage(t *testing.T, s *Store, key string) {
	t.Helper()
	require.NoError(t, s.AddState(key, state(t, key), false))
	s.AddHead(key, "<title>"+key+"</title>", false)
}

func addWidget(t *testing.T, s *Store, key string) {
	t.Helper()
	require.NoError(t, s.AddState(key, state(t, key), true))
	s.AddHead(key, "", true)
}

func TestEvictsOldestPage(t *testing.T) {
	s := New(2, nil)
	addPage(t, s, "A")
	addPage(t, s, "B")
	addPage(t, s, "C")

	require.Equal(t, Absent, s.Contains("A"))
	require.Equal(t, All, s.Contains("B"))
	require.Equal(t, All, s.Contains("C"))

	// revisiting B moves it to the front without evicting C
	addPage(t, s, "B")
	require.Equal(t, All, s.Contains("C"))
	require.Equal(t, []string{"C", "B"}, s.order)
}

func TestWidgetRetention(t *testing.T) {
	s := New(2, nil)
	addPage(t, s, "A")
	addWidget(t, s, "W")
	s.DeclareDependency("W", "A")
	addPage(t, s, "B")
	s.DeclareDependency("W", "B")

	addPage(t, s, "C")
	require.Equal(t, Absent, s.Contains("A"))
	require.Equal(t, All, s.Contains("W"), "B still depends on W")

	addPage(t, s, "D")
	require.Equal(t, Absent, s.Contains("B"))
	require.Equal(t, Absent, s.Contains("W"))
	require.Equal(t, 2, s.Len())
}

func TestNestedWidgetsCascade(t *testing.T) {
	s := New(1, nil)
	addPage(t, s, "A")
	addWidget(t, s, "outer")
	addWidget(t, s, "inner")
	s.DeclareDependency("outer", "A")
	s.DeclareDependency("inner", "outer")

	addPage(t, s, "B")
	require.Equal(t, Absent, s.Contains("outer"))
	require.Equal(t, Absent, s.Contains("inner"))
}

func TestWidgetsDoNotCountTowardLimit(t *testing.T) {
	s := New(1, nil)
	addPage(t, s, "A")
	for _, w := range []string{"W1", "W2", "W3"} {
		addWidget(t, s, w)
		s.DeclareDependency(w, "A")
	}
	require.Equal(t, 4, s.Len())
	require.Equal(t, []string{"A"}, s.order)
}

func TestContains(t *testing.T) {
	s := New(10, nil)

	require.Equal(t, Absent, s.Contains("x"))

	require.NoError(t, s.AddState("state", state(t, "v"), false))
	require.Equal(t, StateOnly, s.Contains("state"))

	s.AddHead("head", "<title/>", false)
	require.Equal(t, HeadOnly, s.Contains("head"))

	s.AddHead("never", "<title/>", false)
	s.SetStateNever("never", false)
	require.Equal(t, HeadNoState, s.Contains("never"))

	s.SetStateNever("never-no-head", false)
	require.Equal(t, Absent, s.Contains("never-no-head"))

	addPage(t, s, "all")
	require.Equal(t, All, s.Contains("all"))
}

func TestSetStateNever(t *testing.T) {
	s := New(10, nil)
	addPage(t, s, "p")
	s.SetStateNever("p", false)

	err := s.AddState("p", state(t, "v"), false)
	require.True(t, errors.Is(err, ErrStateNever))

	page, ok := s.Get("p")
	require.True(t, ok)
	require.True(t, page.State.IsEmpty())
}

func TestGetRequiresCompleteEntry(t *testing.T) {
	s := New(10, nil)
	require.NoError(t, s.AddState("p", state(t, "v"), false))
	_, ok := s.Get("p")
	require.False(t, ok)

	s.AddHead("p", "<title>p</title>", false)
	page, ok := s.Get("p")
	require.True(t, ok)
	require.Equal(t, "<title>p</title>", page.Head)
	got, err := hxrender.StateAs[string](page.State)
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestDeclareDependencyPanicsOnMissing(t *testing.T) {
	s := New(10, nil)
	addPage(t, s, "A")
	require.Panics(t, func() { s.DeclareDependency("W", "A") })

	addWidget(t, s, "W")
	require.Panics(t, func() { s.DeclareDependency("W", "missing") })
	require.NotPanics(t, func() { s.DeclareDependency("W", "A") })
}

func TestDeclareDependencyPanicsOnPage(t *testing.T) {
	s := New(2, nil)
	addPage(t, s, "A")
	addPage(t, s, "B")
	require.Panics(t, func() { s.DeclareDependency("B", "A") })

	// the rejected declaration leaves eviction untouched
	addPage(t, s, "C")
	require.Equal(t, Absent, s.Contains("A"))
	require.Equal(t, All, s.Contains("B"))
	require.Equal(t, All, s.Contains("C"))
	require.Equal(t, []string{"B", "C"}, s.order)
}

func TestForceKeep(t *testing.T) {
	s := New(1, nil)
	addPage(t, s, "home")
	s.ForceKeep("home")
	addPage(t, s, "A")
	addPage(t, s, "B")

	require.Equal(t, All, s.Contains("home"))
	require.Equal(t, Absent, s.Contains("A"))
	require.Equal(t, All, s.Contains("B"))
}

func TestForceRemove(t *testing.T) {
	s := New(10, nil)
	addPage(t, s, "A")
	addWidget(t, s, "W")
	s.DeclareDependency("W", "A")
	s.ForceKeep("A")

	s.ForceRemove("A")
	require.Equal(t, Absent, s.Contains("A"))
	require.Equal(t, Absent, s.Contains("W"))
	require.Equal(t, 0, s.Len())

	// removing a widget detaches it from the pages using it
	addPage(t, s, "B")
	addWidget(t, s, "W")
	s.DeclareDependency("W", "B")
	s.ForceRemove("W")
	page, ok := s.Get("B")
	require.True(t, ok)
	require.Empty(t, page.Widgets)
}

func TestPresenceString(t *testing.T) {
	require.Equal(t, "absent", Absent.String())
	require.Equal(t, "head_no_state", HeadNoState.String())
	require.Equal(t, "preloaded", Preloaded.String())
}
