package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/heap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	barFillStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const churnInterval = 200 * time.Millisecond

type monitorModel struct {
	err      error
	heap     *heap.Heap
	workload *workload
	input    textinput.Model
	result   string
	churning bool
}

type churnTickMsg time.Time

func newMonitorModel(capacity, objects int, seed int64) *monitorModel {
	h := heap.New(heap.Options{Capacity: capacity})

	ti := textinput.New()
	ti.Placeholder = "alloc 64 | release 3 | root 3 | gc | churn | validate"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()

	return &monitorModel{
		heap:     h,
		workload: newWorkload(h, seed, objects),
		input:    ti,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return textinput.Blink
}

func churnTick() tea.Cmd {
	return tea.Tick(churnInterval, func(t time.Time) tea.Msg {
		return churnTickMsg(t)
	})
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.heap.Close()
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "q" {
				m.heap.Close()
				return m, tea.Quit
			}
			wasChurning := m.churning
			result, err := m.exec(line)
			m.result = result
			m.err = err
			if m.churning && !wasChurning {
				return m, churnTick()
			}
			return m, nil
		}

	case churnTickMsg:
		if !m.churning {
			return m, nil
		}
		for i := 0; i < 25; i++ {
			if err := m.workload.step(); err != nil {
				m.err = err
				m.churning = false
				return m, nil
			}
		}
		return m, churnTick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) exec(line string) (string, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "alloc":
		size := 64
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("alloc: bad size %q", args[0])
			}
			size = n
		}
		id, err := m.heap.Alloc(size, typeBlob)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("allocated handle %d (%d bytes)", id, size), nil

	case "retain", "release", "root", "unroot", "pin", "unpin":
		id, err := parseHandle(args)
		if err != nil {
			return "", err
		}
		switch cmd {
		case "retain":
			err = m.heap.Retain(id)
		case "release":
			err = m.heap.Release(id)
		case "root":
			err = m.heap.AddRoot(id)
		case "unroot":
			m.heap.RemoveRoot(id)
		case "pin":
			err = m.heap.Pin(id)
		case "unpin":
			err = m.heap.Unpin(id)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s handle %d", cmd, id), nil

	case "gc":
		before := m.heap.Stats().UsedBytes
		m.heap.Collect()
		after := m.heap.Stats().UsedBytes
		return fmt.Sprintf("collected: %d bytes reclaimed", before-after), nil

	case "validate":
		if err := m.heap.Validate(); err != nil {
			return "", err
		}
		return "heap consistent", nil

	case "churn":
		m.churning = !m.churning
		if m.churning {
			return "churn started", nil
		}
		return "churn stopped", nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

func parseHandle(args []string) (handlegc.Handle, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing handle argument")
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad handle %q", args[0])
	}
	return handlegc.Handle(n), nil
}

func (m *monitorModel) View() string {
	s := m.heap.Stats()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Heap Monitor"))
	if m.churning {
		b.WriteString(" churning")
	}
	b.WriteString("\n\n")

	b.WriteString(occupancyBar(s.UsedBytes, s.Capacity, 44))
	fmt.Fprintf(&b, " %d/%d bytes\n\n", s.UsedBytes, s.Capacity)

	row := func(label string, value any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", label)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%v", value)))
		b.WriteString("\n")
	}
	row("objects", fmt.Sprintf("%d total, %d live at last mark", s.TotalObjects, s.LiveObjects))
	row("handles", fmt.Sprintf("%d issued, %d free", s.HandleCount, s.FreeHandles))
	row("roots", len(m.heap.Roots()))
	row("collections", fmt.Sprintf("%d (%d bytes reclaimed)", s.Collections, s.ReclaimedBytes))
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.result != "" {
		b.WriteString(resultStyle.Render(m.result))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run command • churn toggle workload • q quit"))
	return b.String()
}

func occupancyBar(used, capacity, width int) string {
	if capacity <= 0 {
		capacity = 1
	}
	filled := used * width / capacity
	if filled > width {
		filled = width
	}
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func runInteractive(capacity, objects int, seed int64) error {
	p := tea.NewProgram(newMonitorModel(capacity, objects, seed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
