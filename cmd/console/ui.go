package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
	"github.com/textjianghu/jianghu-engine/pkg/reftag"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

const (
	Title           = "JIANGHU ENGINE"
	PlaceHolderText = "What do you do?"
)

// turnEntry is one exchange kept for redraw on resize.
type turnEntry struct {
	action   string
	segments []reftag.Segment
	warnings []string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	worldState   *worldstate.WorldState
	history      []turnEntry
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	showQuitModal bool
	progressTick  int
	statusLine    string
}

type turnResponseMsg struct {
	action   string
	response *chat.TurnResponse
	err      error
}

type worldStateMsg struct {
	worldState *worldstate.WorldState
	err        error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	friendlyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // green
			Bold(true)

	hostileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // red
			Bold(true)

	neutralNPCStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")). // white
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")) // gold

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")). // blue
			Underline(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, ws *worldstate.WorldState) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		client:       client,
		worldState:   ws,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		ready:        false,
	}
}

// renderSegments styles entity spans by kind and relationship hint, then
// wraps the whole line. reflow's wordwrap is ANSI-aware, so styling
// before wrapping is safe.
func renderSegments(segments []reftag.Segment, width int) string {
	var line strings.Builder
	for _, seg := range segments {
		switch seg.Type {
		case reftag.KindText:
			line.WriteString(seg.Content)
		case reftag.KindNPC:
			switch seg.Hint {
			case reftag.HintFriendly:
				line.WriteString(friendlyStyle.Render(seg.Text))
			case reftag.HintHostile:
				line.WriteString(hostileStyle.Render(seg.Text))
			default:
				line.WriteString(neutralNPCStyle.Render(seg.Text))
			}
		case reftag.KindItem:
			line.WriteString(itemStyle.Render(seg.Text))
		case reftag.KindLocation:
			line.WriteString(locationStyle.Render(seg.Text))
		default:
			line.WriteString(seg.Text)
		}
	}
	return wordwrap.String(line.String(), width)
}

func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6

	var content strings.Builder
	content.WriteString(titleStyle.Render(Title) + "\n\n")
	content.WriteString("A wandering life in the rivers and lakes. Type your actions below.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for _, entry := range m.history {
		content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.action, chatWidth-6) + "\n\n")
		content.WriteString(renderSegments(entry.segments, chatWidth) + "\n\n")
		for _, w := range entry.warnings {
			content.WriteString(warningStyle.Render("! "+w) + "\n")
		}
	}

	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() {
	ws := m.worldState
	var content strings.Builder
	content.WriteString(titleStyle.Render("WORLD STATE") + "\n\n")

	content.WriteString("Session:\n")
	content.WriteString(ws.ID.String()[:8] + "...\n\n")

	if name, ok := ws.Get([]string{"player", "name"}); ok {
		content.WriteString("Player:\n")
		content.WriteString(fmt.Sprintf("%v\n\n", name))
	}

	content.WriteString("Status:\n")
	for _, meter := range []string{"hp", "stamina", "mp", "san"} {
		cur, okCur := ws.Get([]string{"player", "core_status", meter, "current"})
		maxV, okMax := ws.Get([]string{"player", "core_status", meter, "max"})
		if okCur && okMax {
			content.WriteString(fmt.Sprintf("• %s: %v/%v\n", meter, cur, maxV))
		}
	}
	content.WriteString("\n")

	if loc, ok := ws.Get([]string{"world", "location"}); ok {
		content.WriteString("Location:\n")
		content.WriteString(fmt.Sprintf("%v\n\n", loc))
	}
	if weather, ok := ws.Get([]string{"world", "weather"}); ok {
		content.WriteString("Weather:\n")
		content.WriteString(fmt.Sprintf("%v\n\n", weather))
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /copy: Copy session ID\n")

	if m.statusLine != "" {
		content.WriteString("\n" + promptStyle.Render(m.statusLine) + "\n")
	}

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.writeMetadata()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.progressTick = 0

			m.history = append(m.history, turnEntry{action: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendTurnCmd(input), progressTick())
		}

	case turnResponseMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			// Drop the pending entry; the action was not applied.
			if n := len(m.history); n > 0 && m.history[n-1].segments == nil {
				m.history = m.history[:n-1]
			}
		} else {
			if n := len(m.history); n > 0 && m.history[n-1].action == msg.action {
				m.history[n-1].segments = msg.response.Segments
				m.history[n-1].warnings = msg.response.MutationWarnings
			}
		}
		m.writeChatContent()
		return m, m.refreshWorldState()

	case worldStateMsg:
		if msg.err == nil && msg.worldState != nil {
			m.worldState = msg.worldState
			m.writeMetadata()
		}

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		helpText := `
Commands:
• /help - Show this help
• /copy - Copy session ID to clipboard
• Ctrl+C - Quit

How to play:
• Type your actions and press Enter
• The narrator responds and the world updates
• Named characters are colored by their disposition toward you
`
		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + titleStyle.Render("Help:") + helpText + "\n")
		m.chatViewport.GotoBottom()

	case "/copy":
		if err := clipboard.WriteAll(m.worldState.ID.String()); err != nil {
			m.statusLine = "Clipboard unavailable"
		} else {
			m.statusLine = "Session ID copied"
		}
		m.writeMetadata()
	}

	m.textarea.Reset()
	return m, nil
}

func (m ConsoleUI) sendTurnCmd(action string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendTurn(m.client, m.config.APIBaseURL, m.worldState.ID, action)
		return turnResponseMsg{action: action, response: resp, err: err}
	}
}

func (m ConsoleUI) refreshWorldState() tea.Cmd {
	return func() tea.Msg {
		ws, err := getSession(m.client, m.config.APIBaseURL, m.worldState.ID)
		return worldStateMsg{ws, err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the Jianghu?"))
	content.WriteString("\n\n")
	content.WriteString("Your world is saved. You can return with the same session ID.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated bar while a turn is in flight.
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
