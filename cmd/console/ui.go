package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/scene-engine/internal/debrief"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const PlaceHolderText = "Pick 1-3 or type your own response..."

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	session      *state.SessionView
	debrief      *debrief.Debrief
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	// Scenario selection state
	showScenarioModal bool
	options           []scenarioOption
	selected          int
	loadingScenarios  bool

	showQuitModal bool
	showDebrief   bool

	progressTick int
}

type scenariosLoadedMsg struct {
	options []scenarioOption
	err     error
}

// sessionMsg carries the session after start, turn or retry.
type sessionMsg struct {
	session *state.SessionView
	err     error
}

type debriefMsg struct {
	debrief *debrief.Debrief
	err     error
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

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	situationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	wonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

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

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 600
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		api:               api,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		showScenarioModal: true,
		loadingScenarios:  true,
	}
}

// hpBar renders hp as a fixed-width gauge.
func hpBar(hp, maxHP, width int) string {
	if maxHP <= 0 || width <= 0 {
		return ""
	}
	hp = max(0, min(hp, maxHP))
	filled := hp * width / maxHP
	if hp > 0 && filled == 0 {
		filled = 1
	}
	color := "42" // green
	switch {
	case hp*100 < maxHP*25:
		color = "196"
	case hp*100 < maxHP*50:
		color = "214"
	}
	bar := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(strings.Repeat("█", filled))
	return bar + separatorStyle.Render(strings.Repeat("░", width-filled))
}

func writeMetadata(s *state.SessionView, width int) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	content.WriteString("Session ID:\n")
	content.WriteString(s.ID.String()[:8] + "...\n\n")

	content.WriteString("Scenario:\n")
	content.WriteString(s.ScenarioID + "\n\n")

	content.WriteString(fmt.Sprintf("HP: %d/%d\n", s.HP, s.MaxHP))
	barWidth := width - 2
	if barWidth > 20 {
		barWidth = 20
	}
	content.WriteString(hpBar(s.HP, s.MaxHP, barWidth) + "\n\n")

	content.WriteString(fmt.Sprintf("Step: %d/%d\n\n", s.Step, s.MaxSteps))

	content.WriteString("Status:\n")
	switch s.Status {
	case state.StatusWon:
		content.WriteString(wonStyle.Render("won") + "\n\n")
	case state.StatusLost:
		content.WriteString(errorStyle.Render("lost") + "\n\n")
	default:
		content.WriteString(string(s.Status) + "\n\n")
	}

	if len(s.Roster) > 0 {
		content.WriteString("In the room:\n")
		for _, c := range s.Roster {
			if c.Role != "" {
				content.WriteString(fmt.Sprintf("• %s (%s)\n", c.Name, c.Role))
			} else {
				content.WriteString(fmt.Sprintf("• %s\n", c.Name))
			}
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• 1-3: Pick a choice\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• Ctrl+Y: Copy ID\n")
	if s.Status.Terminal() {
		content.WriteString("• Ctrl+D: Debrief\n")
	}
	if s.Status == state.StatusLost {
		content.WriteString("• Ctrl+R: Retry\n")
	}
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

// formatTurn renders the player's response and its score, then the
// situation it produced. Open turns also list the numbered choices.
func formatTurn(t state.TurnView, width int, open bool) string {
	var b strings.Builder
	if t.PlayerChoice != "" {
		b.WriteString(userStyle.Render("You: ") + wordwrap.String(t.PlayerChoice, width-5) + "\n")
		if t.Score != nil {
			line := fmt.Sprintf("Score %d, HP %+d", *t.Score, t.HPDelta)
			if t.CriticalFailure {
				line += " (critical)"
			}
			b.WriteString(promptStyle.Render(line) + "\n")
		}
		if t.Reasoning != "" {
			b.WriteString(promptStyle.Render(wordwrap.String(t.Reasoning, width)) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(situationStyle.Render(wordwrap.String(t.Situation, width)) + "\n\n")
	for _, r := range t.Reactions {
		name := r.Name
		if name == "" {
			name = r.CharacterID
		}
		b.WriteString(speakerStyle.Render(name+":") + " " + wordwrap.String(r.Dialogue, width-len(name)-2) + "\n\n")
	}
	if open {
		for i, c := range t.Choices {
			b.WriteString(promptStyle.Render(fmt.Sprintf("  %d. ", i+1)) + wordwrap.String(c, width-5) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// writeChatContent rebuilds the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("SCENE ENGINE") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	if m.session != nil {
		last := len(m.session.History) - 1
		for i, t := range m.session.History {
			open := i == last && m.session.Status == state.StatusActive
			content.WriteString(formatTurn(t, chatWidth, open))
		}
		content.WriteString(m.statusLine())
	}

	if m.loading {
		content.WriteString(m.renderProgressBar() + "\n")
	}
	if m.notice != "" {
		content.WriteString(loadingStyle.Render(m.notice) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) statusLine() string {
	switch m.session.Status {
	case state.StatusWon:
		return wonStyle.Render("Scenario complete. Press Ctrl+D for your debrief.") + "\n\n"
	case state.StatusLost:
		return errorStyle.Render("The conversation fell apart. Ctrl+R to retry, Ctrl+D for your debrief.") + "\n\n"
	}
	return ""
}

func (m *ConsoleUI) refreshPanels() {
	m.writeChatContent()
	if m.session != nil {
		m.metaViewport.SetContent(writeMetadata(m.session, m.metaViewport.Width))
	}
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6
	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadScenarios()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}
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
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		if m.showDebrief {
			m.chatViewport.SetContent(formatDebrief(m.debrief, m.chatViewport.Width-6))
		} else {
			m.refreshPanels()
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.showDebrief {
				m.showDebrief = false
				m.refreshPanels()
				return m, nil
			}
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			if m.session != nil {
				if err := clipboard.WriteAll(m.session.ID.String()); err != nil {
					m.notice = "Could not copy session ID: " + err.Error()
				} else {
					m.notice = "Session ID copied to clipboard."
				}
				m.writeChatContent()
			}
			return m, nil
		case tea.KeyCtrlR:
			if m.loading || m.session == nil || m.session.Status != state.StatusLost {
				return m, nil
			}
			m.startLoading()
			return m, tea.Batch(m.retrySession(), progressTick())
		case tea.KeyCtrlD:
			if m.loading || m.session == nil || !m.session.Status.Terminal() {
				return m, nil
			}
			m.startLoading()
			return m, tea.Batch(m.fetchDebrief(), progressTick())
		case tea.KeyEnter:
			if m.loading || m.showDebrief || m.session == nil || m.session.Status != state.StatusActive {
				return m, nil
			}
			input := m.resolveInput(strings.TrimSpace(m.textarea.Value()))
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.startLoading()
			return m, tea.Batch(m.submitTurn(input), progressTick())
		}

	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.session = msg.session
		}
		m.refreshPanels()
		return m, nil

	case debriefMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			return m, nil
		}
		m.debrief = msg.debrief
		m.showDebrief = true
		m.chatViewport.SetContent(formatDebrief(m.debrief, m.chatViewport.Width-6))
		m.chatViewport.GotoTop()
		return m, nil

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

func (m *ConsoleUI) startLoading() {
	m.loading = true
	m.progressTick = 0
	m.err = nil
	m.notice = ""
	m.writeChatContent()
}

// resolveInput maps "1".."3" to the offered choice label.
func (m ConsoleUI) resolveInput(input string) string {
	if m.session == nil || m.session.Current == nil {
		return input
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(m.session.Current.Choices) {
		return m.session.Current.Choices[n-1]
	}
	return input
}

func formatDebrief(d *debrief.Debrief, width int) string {
	if d == nil {
		return ""
	}
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("DEBRIEF") + "\n\n")
	outcome := errorStyle.Render(string(d.Outcome))
	if d.Outcome == state.StatusWon {
		outcome = wonStyle.Render(string(d.Outcome))
	}
	b.WriteString(fmt.Sprintf("Outcome: %s   Overall score: %d   Final HP: %d/%d\n\n", outcome, d.OverallScore, d.FinalHP, d.MaxHP))
	b.WriteString(wordwrap.String(d.Summary, width) + "\n\n")

	for _, t := range d.TurnBreakdowns {
		b.WriteString(speakerStyle.Render(fmt.Sprintf("Step %d", t.Step)) +
			promptStyle.Render(fmt.Sprintf("  score %d, HP %+d", t.Score, t.HPDelta)) + "\n")
		b.WriteString(userStyle.Render("You: ") + wordwrap.String(t.PlayerChoice, width-5) + "\n")
		if t.WhatHappened != "" {
			b.WriteString(wordwrap.String(t.WhatHappened, width) + "\n")
		}
		if t.Insight != "" {
			b.WriteString(situationStyle.Render(wordwrap.String(t.Insight, width)) + "\n")
		}
		b.WriteString("\n")
	}

	if len(d.KeyConcepts) > 0 {
		b.WriteString(titleStyle.Render("Key concepts") + "\n")
		for _, k := range d.KeyConcepts {
			b.WriteString("• " + wordwrap.String(k, width-2) + "\n")
		}
		b.WriteString("\n")
	}
	if len(d.RecommendedFollowup) > 0 {
		b.WriteString(titleStyle.Render("Try next") + "\n")
		for _, s := range d.RecommendedFollowup {
			b.WriteString("• " + s + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render("Esc to return to the transcript."))
	return b.String()
}

func (m ConsoleUI) submitTurn(choice string) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		s, err := m.api.submitTurn(id, choice)
		return sessionMsg{s, err}
	}
}

func (m ConsoleUI) retrySession() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		s, err := m.api.retrySession(id)
		return sessionMsg{s, err}
	}
}

func (m ConsoleUI) fetchDebrief() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		d, err := m.api.getDebrief(id)
		return debriefMsg{d, err}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		opts, err := m.api.listScenarios()
		return scenariosLoadedMsg{opts, err}
	}
}

func (m ConsoleUI) startSession(opt scenarioOption) tea.Cmd {
	profile := m.config.Profile
	return func() tea.Msg {
		s, err := m.api.startSession(profile, opt)
		return sessionMsg{s, err}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else if len(msg.options) == 0 {
			m.err = fmt.Errorf("no scenarios available")
		} else {
			m.options = msg.options
		}

	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.showScenarioModal = false
		if m.width > 0 && m.height > 0 {
			m.resize()
		}
		m.refreshPanels()
		m.textarea.Focus()
		m.ready = true
		return m, textarea.Blink

	case tea.KeyMsg:
		if m.loadingScenarios {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
			}
		case tea.KeyDown:
			if m.selected < len(m.options)-1 {
				m.selected++
			}
		case tea.KeyEnter:
			if len(m.options) > 0 && !m.loading {
				m.err = nil
				m.loading = true
				return m, m.startSession(m.options[m.selected])
			}
		}
	}

	return m, nil
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
				if m.showScenarioModal {
					return m, nil
				}
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
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your session is saved on the server.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available scenarios..."))
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Starting Session..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting the scene..."))
	case m.err != nil && len(m.options) == 0:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load scenarios: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")
		for i, opt := range m.options {
			if i == m.selected {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", opt)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", opt)))
			}
			content.WriteString("\n")
		}
		if m.err != nil {
			content.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(70).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showScenarioModal {
		return m.renderScenarioModal()
	}
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
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
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
