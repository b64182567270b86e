package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	cl "hexidle/internal/cli"
	"hexidle/internal/game"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const maxFeedLines = 6

type (
	frameMsg time.Time
	syncMsg  struct {
		view game.PlayerView
		err  error
		at   time.Time
	}
	feedMsg game.Event
)

type watchKeys struct {
	Resync key.Binding
	Quit   key.Binding
}

func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Resync, k.Quit}
}

func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newWatchKeys() watchKeys {
	return watchKeys{
		Resync: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resync")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

type watchModel struct {
	client    *cl.Client
	token     string
	syncEvery time.Duration

	keys    watchKeys
	help    help.Model
	spinner spinner.Model

	view     game.PlayerView
	synced   bool
	syncedAt time.Time
	syncing  bool
	now      time.Time
	err      error
	feed     []string
}

func newWatchModel(client *cl.Client, token string, every time.Duration, now time.Time) watchModel {
	return watchModel{
		client:    client,
		token:     token,
		syncEvery: every,
		keys:      newWatchKeys(),
		help:      help.New(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(goldStyle)),
		now:       now,
	}
}

// setSyncing keeps the resync binding disabled while a fetch is in flight,
// which also drops it from the help line.
func (m *watchModel) setSyncing(v bool) {
	m.syncing = v
	m.keys.Resync.SetEnabled(!v)
}

func newWatchCmd(apiBase *string) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of your resources and map events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			if every < time.Second {
				every = time.Second
			}
			client := newClient(apiBase)
			m := newWatchModel(client, sess.AccessToken, every, time.Now())
			p := tea.NewProgram(m, tea.WithContext(cmd.Context()))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go streamFeed(ctx, client, sess.AccessToken, p)

			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&every, "sync", 10*time.Second, "how often to resync with the server")
	return cmd
}

// streamFeed forwards map events into the program. A feed failure only
// costs the event list; resource display keeps working.
func streamFeed(ctx context.Context, client *cl.Client, token string, p *tea.Program) {
	conn, err := client.DialFeed(ctx, token)
	if err != nil {
		return
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		var ev game.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		p.Send(feedMsg(ev))
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), frame(), m.spinner.Tick)
}

func frame() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m watchModel) fetch() tea.Cmd {
	client, token := m.client, m.token
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		view, err := client.State(ctx, token)
		return syncMsg{view: view, err: err, at: time.Now()}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Resync):
			m.setSyncing(true)
			return m, m.fetch()
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case frameMsg:
		m.now = time.Time(msg)
		cmds := []tea.Cmd{frame()}
		if !m.syncing && (!m.synced || m.now.Sub(m.syncedAt) >= m.syncEvery) {
			m.setSyncing(true)
			cmds = append(cmds, m.fetch())
		}
		return m, tea.Batch(cmds...)
	case syncMsg:
		m.setSyncing(false)
		m.err = msg.err
		if msg.err == nil {
			m.view = msg.view
			m.synced = true
			m.syncedAt = msg.at
		} else {
			m.syncedAt = msg.at
		}
	case feedMsg:
		ev := game.Event(msg)
		line := describeEvent(ev)
		m.feed = append([]string{line}, m.feed...)
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[:maxFeedLines]
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
	goldStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DAA520"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
)

func (m watchModel) View() string {
	if !m.synced {
		if m.err != nil {
			return errStyle.Render("sync failed: "+m.err.Error()) + "\n\n" + m.help.View(m.keys) + "\n"
		}
		return m.spinner.View() + " syncing...\n"
	}
	v := m.view
	res := cl.Interpolate(v, m.now.Sub(m.syncedAt))

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  prestige %d (x%s)", v.Username, v.PrestigeLevel, v.PrestigeMultiplier.StringFixed(1))))
	if m.syncing {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  %s\n", goldStyle.Render(fmt.Sprintf("gold  %10s", cl.FormatAmount(res.Gold))), cl.FormatRate(v.Rates.Gold))
	fmt.Fprintf(&b, "wood  %10s  %s\n", cl.FormatAmount(res.Wood), cl.FormatRate(v.Rates.Wood))
	fmt.Fprintf(&b, "stone %10s  %s\n", cl.FormatAmount(res.Stone), cl.FormatRate(v.Rates.Stone))
	fmt.Fprintf(&b, "\ntile (%d,%d) %s\n", v.TileQ, v.TileR, v.TileLabel)
	if m.err != nil {
		b.WriteString(errStyle.Render("last sync failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	if len(m.feed) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Join(m.feed, "\n")))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return boxStyle.Render(b.String())
}

func describeEvent(ev game.Event) string {
	at := ev.At.Local().Format("15:04:05")
	switch ev.Type {
	case game.EventMoved:
		return fmt.Sprintf("%s %s moved to (%d,%d)", at, ev.Username, ev.To.Q, ev.To.R)
	case game.EventPrestiged:
		return fmt.Sprintf("%s %s reached prestige %d", at, ev.Username, ev.PrestigeLevel)
	default:
		return fmt.Sprintf("%s %s %s", at, ev.Username, ev.Type)
	}
}
