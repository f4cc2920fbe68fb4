package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"internfunnel/internal/domain"
	"internfunnel/internal/engine"
	"internfunnel/internal/repo"
	"internfunnel/internal/scoring"
	funnelsdk "internfunnel/sdk/go"
)

const cliActor = "cli"

func applicationsCmd() *cobra.Command {
	apps := &cobra.Command{Use: "applications", Aliases: []string{"apps"}, Short: "Manage stored applications"}
	apps.AddCommand(applicationsListCmd())
	apps.AddCommand(applicationsShowCmd())
	apps.AddCommand(applicationsSetStatusCmd())
	apps.AddCommand(applicationsDeleteCmd())
	return apps
}

func applicationRows(items []domain.Application) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, a := range items {
		rows = append(rows, table.Row{
			a.ID, a.CandidateID, strings.TrimSpace(a.FirstName + " " + a.LastName), a.Email,
			a.PositionTitle, a.Status, a.InterviewStatus, a.CreatedAt,
		})
	}
	return rows
}

func applicationsListCmd() *cobra.Command {
	var f repo.ApplicationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApplications(ctx, f)
				if err != nil {
					return err
				}
				return printTable(items,
					table.Row{"ID", "Candidate", "Name", "Email", "Position", "Status", "Interview", "Created"},
					applicationRows(items))
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.Email, "email", "", "filter by email")
	cmd.Flags().StringVar(&f.CandidateID, "candidate-id", "", "filter by ATS candidate id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	return cmd
}

func applicationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(a)
			})
		},
	}
}

func applicationsSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Move an application through the status machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseApplicationStatus(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetApplicationStatus(ctx, args[0], status, cliActor)
				if err != nil {
					return err
				}
				return printRecord(a)
			})
		},
	}
}

func applicationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteApplication(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func parseKind(s string, allowEmpty bool) (domain.QuestionnaireKind, error) {
	switch k := domain.QuestionnaireKind(strings.ToLower(strings.TrimSpace(s))); k {
	case domain.KindQuiz, domain.KindSurvey:
		return k, nil
	case "":
		if allowEmpty {
			return "", nil
		}
	}
	return "", fmt.Errorf("kind must be quiz or survey")
}

func resultsCmd() *cobra.Command {
	res := &cobra.Command{Use: "results", Short: "Inspect questionnaire results"}
	res.AddCommand(resultsListCmd())
	res.AddCommand(resultsExportCmd())
	return res
}

func resultsListCmd() *cobra.Command {
	var kind string
	var f repo.ResultFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quiz and survey results",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind, true)
			if err != nil {
				return err
			}
			f.Kind = k
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListResults(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, r := range items {
					s := r.TraitScores
					rows = append(rows, table.Row{
						r.ID, r.Kind, r.Name, r.Email,
						scoring.FormatScore(s.Extraversion), scoring.FormatScore(s.Conscientiousness),
						scoring.FormatScore(s.Agreeableness), scoring.FormatScore(s.Openness),
						scoring.FormatScore(s.EmotionalStability), r.CreatedAt,
					})
				}
				return printTable(items, table.Row{"ID", "Kind", "Name", "Email", "Ext", "Con", "Agr", "Opn", "Emo", "Created"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "quiz or survey (default both)")
	cmd.Flags().StringVar(&f.Email, "email", "", "filter by email")
	cmd.Flags().StringVar(&f.CandidateID, "candidate-id", "", "filter by ATS candidate id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func resultsExportCmd() *cobra.Command {
	var kind, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export results as an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind, true)
			if err != nil {
				return err
			}
			if out == "" {
				name := "results"
				if k != "" {
					name = string(k) + "-results"
				}
				out = fmt.Sprintf("%s-%s.xlsx", name, time.Now().UTC().Format("2006-01-02"))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := e.ExportResults(ctx, f, k); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Println("wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "quiz or survey (default both)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func eventsCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the funnel event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, evt := range items {
					rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.Actor})
				}
				return printTable(items, table.Row{"ID", "Time", "Type", "Entity", "Entity ID", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func scoreCmd() *cobra.Command {
	var answers string
	var survey bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute trait scores for a set of answers",
		Example: `  funnel score --answers '{"1":5,"2":4,"3":3,"4":5,"5":2,"6":4,"7":5,"8":3,"9":4,"10":2}'
  funnel score --survey --answers @answers.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(answers)
			if strings.HasPrefix(answers, "@") {
				b, err := os.ReadFile(strings.TrimPrefix(answers, "@"))
				if err != nil {
					return err
				}
				raw = b
			}
			var parsed map[string]int
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return fmt.Errorf("answers must be a JSON object of question number to value: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			kind := domain.KindQuiz
			if survey {
				kind = domain.KindSurvey
			}
			scores, err := engine.Engine{Config: cfg}.ScoreAnswers(kind, parsed)
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(domain.Traits))
			for _, t := range domain.Traits {
				rows = append(rows, table.Row{t, scoring.FormatScore(scores.Get(t))})
			}
			return printTable(scores, table.Row{"Trait", "Score"}, rows)
		},
	}
	cmd.Flags().StringVar(&answers, "answers", "", "answers as JSON, or @file")
	cmd.Flags().BoolVar(&survey, "survey", false, "score against the 30-question survey")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func signalCmd() *cobra.Command {
	sig := &cobra.Command{
		Use:   "signal",
		Short: "Record or poll interview completion signals on a running server",
	}
	sig.PersistentFlags().String("url", "http://127.0.0.1:8080", "server URL")
	sig.PersistentFlags().String("base-path", "/api", "API base path")
	_ = viper.BindPFlag("signal.url", sig.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("signal.base_path", sig.PersistentFlags().Lookup("base-path"))
	sig.AddCommand(signalPollCmd())
	sig.AddCommand(signalRecordCmd())
	return sig
}

func sdkClient() *funnelsdk.Client {
	c := funnelsdk.New(viper.GetString("signal.url"))
	c.BasePath = viper.GetString("signal.base_path")
	return c
}

func signalPollCmd() *cobra.Command {
	var wait, interval time.Duration
	cmd := &cobra.Command{
		Use:   "poll <candidate-id>",
		Short: "Poll once, or until completion with --wait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := sdkClient()
			if wait <= 0 {
				sig, err := c.PollSignal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printRecord(sig)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			sig, err := c.WaitForSignal(ctx, args[0], interval)
			if err != nil {
				return err
			}
			return printRecord(sig)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep polling for up to this long")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "poll interval with --wait")
	return cmd
}

func signalRecordCmd() *cobra.Command {
	var interviewID string
	cmd := &cobra.Command{
		Use:   "record <candidate-id>",
		Short: "Record a completion signal for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := sdkClient().RecordSignal(cmd.Context(), args[0], interviewID)
			if err != nil {
				return err
			}
			return printRecord(sig)
		},
	}
	cmd.Flags().StringVar(&interviewID, "interview-id", "", "interview id")
	return cmd
}
