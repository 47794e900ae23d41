package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/runner"
)

var (
	projectTitle    string
	projectGenre    string
	projectAudience string
	projectWords    int

	feedbackContent string
	feedbackType    string
	feedbackApprove bool
	feedbackScores  map[string]string

	phaseName   string
	phaseTask   string
	phaseText   string
	editingType string

	storyProject string
	asJSON       bool
)

var createProjectCmd = &cobra.Command{
	Use:   "create-project",
	Short: "Create a project in the initialization phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		p, err := m.CreateProject(cmd.Context(), projectTitle, projectGenre, projectAudience, projectWords)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <project-id>",
	Short: "Record human feedback, scores and approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scores, err := parseScores(feedbackScores)
		if err != nil {
			return err
		}

		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		fb, err := m.AddFeedback(cmd.Context(), args[0], core.Feedback{
			Content:  feedbackContent,
			Type:     feedbackType,
			Scores:   scores,
			Approved: feedbackApprove,
		})
		if err != nil {
			return err
		}
		return printJSON(fb)
	},
}

var runPhaseCmd = &cobra.Command{
	Use:   "run-phase <project-id>",
	Short: "Run one phase (the current one by default) and wait for it",
	Long: `Run one phase of a project. Without --phase the project's current phase
runs and, on success, the project advances to the next phase. A phase that
failed earlier resumes from its latest checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		err = m.RunPhaseSync(cmd.Context(), runner.RunRequest{
			ProjectID:   args[0],
			Phase:       phaseName,
			Task:        phaseTask,
			Content:     phaseText,
			EditingType: editingType,
		})
		if err != nil {
			return err
		}
		p, err := m.Project(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var createStoryCmd = &cobra.Command{
	Use:   "create-story",
	Short: "Run every remaining phase in order",
	Long: `Run the whole workflow. Either pass --project to continue a stored
project or --title and --genre to start a new one. The command prints a report
and exits non-zero when a phase fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		initial := &core.ProjectState{
			ProjectID:       storyProject,
			Title:           projectTitle,
			Genre:           projectGenre,
			TargetAudience:  projectAudience,
			WordCountTarget: projectWords,
		}
		rep := m.CreateStory(cmd.Context(), initial)
		if err := printJSON(rep); err != nil {
			return err
		}
		if rep.Status != runner.StatusSuccess {
			return fmt.Errorf("phase %s failed: %s", rep.Phase, rep.Error)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show the stored project state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		p, err := m.Project(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(p)
		}
		printStatus(p)
		return nil
	},
}

var manuscriptCmd = &cobra.Command{
	Use:   "manuscript <project-id>",
	Short: "Print the latest manuscript snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		doc, phase, err := m.Manuscript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"phase": phase, "manuscript": doc})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Agent", "Role"})
		for _, a := range m.Agents() {
			tw.AppendRow(table.Row{a.Name, a.Role})
		}
		tw.Render()
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{createProjectCmd, createStoryCmd} {
		c.Flags().StringVar(&projectTitle, "title", "", "Working title")
		c.Flags().StringVar(&projectGenre, "genre", "", "Genre")
		c.Flags().StringVar(&projectAudience, "audience", "", "Target audience")
		c.Flags().IntVar(&projectWords, "words", 0, "Word count target")
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Print the full project state as JSON")
	createStoryCmd.Flags().StringVar(&storyProject, "project", "", "Continue the stored project with this id")

	feedbackCmd.Flags().StringVar(&feedbackContent, "content", "", "Feedback text")
	feedbackCmd.Flags().StringVar(&feedbackType, "type", "general", "Feedback type")
	feedbackCmd.Flags().BoolVar(&feedbackApprove, "approve", false, "Grant human approval")
	feedbackCmd.Flags().StringToStringVar(&feedbackScores, "score", nil, "Quality score as metric=value (repeatable)")

	runPhaseCmd.Flags().StringVar(&phaseName, "phase", "", "Phase to run (defaults to the current phase)")
	runPhaseCmd.Flags().StringVar(&phaseTask, "task", "", "Task for the director")
	runPhaseCmd.Flags().StringVar(&phaseText, "content", "", "Content handed to the agents")
	runPhaseCmd.Flags().StringVar(&editingType, "editing-type", "", "Editing type for the refinement phase")
}

func printStatus(p *core.ProjectState) {
	fmt.Printf("%s  %q (%s)\nphase: %s  status: %s  approved: %t\n",
		p.ProjectID, p.Title, p.Genre, p.CurrentPhase, p.Status, p.QualityAssessment.HumanApproved)
	if p.LastError != "" {
		fmt.Println("last error:", p.LastError)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Phase", "Completed"})
	for _, h := range p.PhaseHistory {
		tw.AppendRow(table.Row{h.Phase, h.Timestamp.Format(time.RFC3339)})
	}
	tw.Render()

	metrics := make([]string, 0, len(p.QualityAssessment.Scores))
	for k := range p.QualityAssessment.Scores {
		metrics = append(metrics, k)
	}
	sort.Strings(metrics)
	sw := table.NewWriter()
	sw.SetOutputMirror(os.Stdout)
	sw.AppendHeader(table.Row{"Metric", "Score"})
	for _, k := range metrics {
		sw.AppendRow(table.Row{k, p.QualityAssessment.Scores[k]})
	}
	sw.Render()
}

func parseScores(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for metric, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", metric, err)
		}
		out[metric] = f
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
