package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	cl "hexidle/internal/cli"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword hides input on a terminal and falls back to a plain
// line read when stdin is piped.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderState(v game.PlayerView) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(v.Username))
	fmt.Printf("%-10s %s\n", "Gold", success.Sprint(cl.FormatAmount(v.Resources.Gold)))
	fmt.Printf("%-10s %s\n", "Wood", cl.FormatAmount(v.Resources.Wood))
	fmt.Printf("%-10s %s\n", "Stone", cl.FormatAmount(v.Resources.Stone))
	fmt.Printf("%-10s %s  %s  %s\n", "Rates", cl.FormatRate(v.Rates.Gold), cl.FormatRate(v.Rates.Wood), cl.FormatRate(v.Rates.Stone))
	fmt.Printf("%-10s %d (x%s)\n", "Prestige", v.PrestigeLevel, v.PrestigeMultiplier.StringFixed(1))
	fmt.Printf("%-10s (%d,%d) %s\n", "Tile", v.TileQ, v.TileR, v.TileLabel)
	if v.MoveReadyInSeconds > 0 {
		fmt.Printf("%-10s %s\n", "Travel", warn.Sprintf("ready in %ds", v.MoveReadyInSeconds))
	} else {
		fmt.Printf("%-10s %s\n", "Travel", success.Sprint("ready"))
	}
	if v.CanPrestige {
		accent.Println("Prestige available: run `hex prestige`.")
	}
	fmt.Println()
}

func renderUpgrades(ups []game.UpgradeView) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Name", "Category", "Cost", "Effect", "Requires", "Owned", "Status"}),
	)
	for _, u := range ups {
		owned := strconv.Itoa(u.Owned)
		if u.MaxQuantity > 0 {
			owned += "/" + strconv.Itoa(u.MaxQuantity)
		}
		status := "available"
		switch {
		case u.MaxQuantity > 0 && u.Owned >= u.MaxQuantity:
			status = "maxed"
		case !u.Unlocked:
			status = "locked"
		case !u.Affordable:
			status = "too expensive"
		}
		_ = table.Append([]string{
			u.ID,
			u.Name,
			u.Category,
			cl.FormatResources(u.Cost),
			cl.FormatResources(u.Effect),
			u.Requires,
			owned,
			status,
		})
	}
	_ = table.Render()
}

func renderLeaderboard(rows []game.LeaderboardRow) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No players yet.")
		return
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Rank", "Player", "Prestige", "Gold", "Gold/s"}),
	)
	for _, r := range rows {
		_ = table.Append([]string{
			strconv.FormatInt(r.Rank, 10),
			r.Username,
			strconv.Itoa(r.PrestigeLevel),
			cl.FormatAmount(r.Gold),
			cl.FormatRate(r.GoldPerSec),
		})
	}
	_ = table.Render()
}

var tileColors = map[string]lipgloss.Color{
	"plains":   lipgloss.Color("#9ACD32"),
	"forest":   lipgloss.Color("#228B22"),
	"mountain": lipgloss.Color("#8B8989"),
	"goldvein": lipgloss.Color("#DAA520"),
	"lake":     lipgloss.Color("#1E90FF"),
	"swamp":    lipgloss.Color("#556B2F"),
	"ruins":    lipgloss.Color("#A0522D"),
	"village":  lipgloss.Color("#CD853F"),
}

var (
	cellStyle = lipgloss.NewStyle().Width(6).Align(lipgloss.Center).Foreground(lipgloss.Color("#000000"))
	hereStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
	boxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderMap draws the odd-row offset grid: odd rows shift right by half
// a cell. The player's tile is underlined, neighbors carry a dot.
func renderMap(m game.MapView, v game.PlayerView) string {
	here := hexgrid.Coord{Q: v.TileQ, R: v.TileR}
	near := make(map[hexgrid.Coord]bool, len(v.Neighbors))
	for _, n := range v.Neighbors {
		near[n] = true
	}
	byCoord := make(map[hexgrid.Coord]game.MapTileView, len(m.Tiles))
	for _, t := range m.Tiles {
		byCoord[hexgrid.Coord{Q: t.Q, R: t.R}] = t
	}

	var rows []string
	for r := 0; r < m.Size; r++ {
		var cells []string
		if r%2 == 1 {
			cells = append(cells, "   ")
		}
		for q := 0; q < m.Size; q++ {
			c := hexgrid.Coord{Q: q, R: r}
			t, ok := byCoord[c]
			if !ok {
				cells = append(cells, dimStyle.Render(cellStyle.Render("  ?  ")))
				continue
			}
			label := abbreviate(t.Type)
			switch {
			case c == here:
				label = "@" + label
			case near[c] && !t.Impassable:
				label = "·" + label
			case len(t.Players) > 0:
				label = strconv.Itoa(len(t.Players)) + label
			}
			style := cellStyle.Background(tileColors[t.Type])
			if c == here {
				style = style.Inherit(hereStyle)
			}
			cells = append(cells, style.Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	legend := dimStyle.Render("@ you   · reachable   n players here")
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, append(rows, "", legend)...))
}

func abbreviate(tileType string) string {
	if len(tileType) <= 4 {
		return strings.ToUpper(tileType)
	}
	return strings.ToUpper(tileType[:4])
}
