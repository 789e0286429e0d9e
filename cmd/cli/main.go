package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nazeru/agrimarket-go/internal/scenario"
	"github.com/nazeru/agrimarket-go/pkg/apiclient"
)

type model struct {
	client    *apiclient.Client
	scenarios []scenario.Scenario
	selected  int
	status    string
	output    string
	busy      bool
}

func initialModel(client *apiclient.Client) model {
	return model{client: client, scenarios: scenario.All(), status: "Ready"}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.scenarios)-1 {
				m.selected++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running " + m.scenarios[m.selected].Name + "..."
			m.output = ""
			return m, runScenarioCmd(m.client, m.scenarios[m.selected])
		}
	case scenarioResult:
		m.busy = false
		m.status = msg.status
		m.output = msg.output
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "agrimarket order CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Scenarios:")
	for i, s := range m.scenarios {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-10s %s\n", marker, s.Name, s.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.output != "" {
		fmt.Fprintf(b, "Result: %s\n", m.output)
	}
	fmt.Fprintln(b, "\nControls: up/down select, enter to run, q to quit")
	return b.String()
}

type scenarioResult struct {
	status string
	output string
}

func runScenarioCmd(client *apiclient.Client, s scenario.Scenario) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		out, err := s.Run(ctx, client)
		if err != nil {
			return scenarioResult{status: s.Name + " failed", output: err.Error()}
		}
		return scenarioResult{status: s.Name + " passed", output: out}
	}
}

func main() {
	run := flag.String("run", "", "run one scenario and exit: lifecycle|cancel|oversell|replay")
	baseURL := flag.String("base-url", getenv("ORDER_BASE_URL", "http://localhost:8080"), "order-service base URL")
	flag.Parse()

	client := apiclient.New(*baseURL, 10*time.Second)
	if *run != "" {
		s, ok := scenario.Find(*run)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *run)
			os.Exit(2)
		}
		res := runScenarioCmd(client, s)().(scenarioResult)
		fmt.Println(res.status)
		fmt.Println(res.output)
		if strings.HasSuffix(res.status, "failed") {
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(initialModel(client))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
