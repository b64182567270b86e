package main

import (
	"strings"
	"testing"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
)

func TestAbbreviate(t *testing.T) {
	cases := map[string]string{"lake": "LAKE", "goldvein": "GOLD", "village": "VILL"}
	for in, want := range cases {
		if got := abbreviate(in); got != want {
			t.Fatalf("abbreviate(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestDescribeEvent(t *testing.T) {
	ev := game.Event{Type: game.EventMoved, Username: "alice", To: hexgrid.Coord{Q: 4, R: 3}, At: time.Now()}
	if got := describeEvent(ev); !strings.Contains(got, "alice moved to (4,3)") {
		t.Fatalf("unexpected line %q", got)
	}
	ev = game.Event{Type: game.EventPrestiged, Username: "bob", PrestigeLevel: 2, At: time.Now()}
	if got := describeEvent(ev); !strings.Contains(got, "bob reached prestige 2") {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestWatchModelKeepsFeedShort(t *testing.T) {
	model := newWatchModel(nil, "", time.Minute, time.Now())
	for i := 0; i < maxFeedLines+3; i++ {
		next, _ := model.Update(feedMsg(game.Event{Type: game.EventMoved, Username: "p"}))
		model = next.(watchModel)
	}
	if len(model.feed) != maxFeedLines {
		t.Fatalf("expected %d feed lines, got %d", maxFeedLines, len(model.feed))
	}
}

func TestWatchModelInterpolatesAfterSync(t *testing.T) {
	at := time.Unix(1000, 0)
	m := newWatchModel(nil, "", time.Minute, at)
	view := game.PlayerView{
		Username:           "alice",
		Resources:          economy.NewResources(10, 0, 0),
		Rates:              economy.NewResources(1, 0, 0),
		PrestigeMultiplier: decimal.NewFromInt(1),
	}
	next, _ := m.Update(syncMsg{view: view, at: at})
	m = next.(watchModel)
	next, _ = m.Update(frameMsg(at.Add(5 * time.Second)))
	m = next.(watchModel)
	if !m.synced || !strings.Contains(m.View(), "15.0") {
		t.Fatalf("expected interpolated gold 15.0 in view:\n%s", m.View())
	}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestWatchModelKeyBindings(t *testing.T) {
	at := time.Unix(1000, 0)
	m := newWatchModel(nil, "", time.Minute, at)
	next, _ := m.Update(syncMsg{view: game.PlayerView{Username: "alice", PrestigeMultiplier: decimal.NewFromInt(1)}, at: at})
	m = next.(watchModel)
	if !strings.Contains(m.View(), "resync") {
		t.Fatalf("help line should offer resync:\n%s", m.View())
	}

	next, cmd := m.Update(runeKey('r'))
	m = next.(watchModel)
	if cmd == nil || !m.syncing {
		t.Fatalf("r should start a sync")
	}
	if _, cmd = m.Update(runeKey('r')); cmd != nil {
		t.Fatalf("r must be ignored while a sync is in flight")
	}
	if strings.Contains(m.View(), "resync") {
		t.Fatalf("resync should be hidden while syncing:\n%s", m.View())
	}

	next, _ = m.Update(syncMsg{view: m.view, at: at})
	m = next.(watchModel)
	if m.syncing || !m.keys.Resync.Enabled() {
		t.Fatalf("sync result should re-enable resync")
	}

	_, cmd = m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatalf("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q should produce tea.QuitMsg")
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("ctrl+c should quit")
	}
}

func TestWatchModelShowsSpinnerBeforeFirstSync(t *testing.T) {
	m := newWatchModel(nil, "", time.Minute, time.Now())
	if !strings.Contains(m.View(), "syncing...") {
		t.Fatalf("expected syncing placeholder, got %q", m.View())
	}
	if _, cmd := m.Update(m.spinner.Tick()); cmd == nil {
		t.Fatalf("spinner tick should schedule the next frame")
	}
}
