package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Chative-triage/server/internal/a2a"
	"github.com/Chative-triage/server/internal/agent/model"
	"github.com/Chative-triage/server/internal/api"
	logx "github.com/Chative-triage/server/pkg/logger"
)

var (
	logLevel string

	conversationID string
	adminKey       string

	kbCategory string
	kbID       string
	kbFile     string
	kbMeta     []string
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Customer support triage workflow",
	Long: `triage classifies customer messages, drafts replies through specialised
agents, scores them and parks risky or administrative runs for human review.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, agents, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, agents)
		if err != nil {
			logx.Error().Err(err).Msg("startup failed")
			return err
		}
		defer a.Close()

		return api.NewServer(cfg.HTTPAddr, a.engine, a.registry).Run(ctx)
	},
}

var runCmd = &cobra.Command{
	Use:   "run MESSAGE...",
	Short: "Triage one customer message and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, agents, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, agents)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Start(ctx, model.RunInput{
			ConversationID: conversationID,
			Messages:       []model.InputMessage{model.TextInput(strings.Join(args, " "))},
			AdminAgentKey:  adminKey,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume RUN_ID DECISION...",
	Short: "Answer the review question of a suspended run",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, agents, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, agents)
		if err != nil {
			return err
		}
		defer a.Close()

		if adminKey != "" {
			ctx = a2a.WithCredential(ctx, adminKey)
		}
		res, err := a.engine.Resume(ctx, args[0], model.ReviewDecision{Decision: strings.Join(args[1:], " ")})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge-base articles",
}

var kbAddCmd = &cobra.Command{
	Use:   "add [CONTENT...]",
	Short: "Add an article to the technical or billing knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		if kbFile != "" {
			b, err := os.ReadFile(kbFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", kbFile, err)
			}
			content = string(b)
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("article content is required (argument or --file)")
		}
		switch strings.ToLower(strings.TrimSpace(kbCategory)) {
		case model.AgentTechnical, model.AgentBilling:
		default:
			return fmt.Errorf("unknown knowledge base %q (technical or billing)", kbCategory)
		}
		meta, err := parseMeta(kbMeta)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newStoreApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.store.Add(ctx, model.KnowledgeDocument{
			ID:       kbID,
			Category: kbCategory,
			Content:  strings.TrimSpace(content),
			Metadata: meta,
		})
		if err != nil {
			return err
		}
		logx.Info().Str("id", id).Str("category", kbCategory).Msg("article added")
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().StringVar(&adminKey, "admin-key", "", "Credential for the external administration agent")
	}
	runCmd.Flags().StringVar(&conversationID, "conversation", "", "Continue an existing conversation")

	kbAddCmd.Flags().StringVar(&kbCategory, "category", "", "Knowledge base: technical or billing")
	kbAddCmd.Flags().StringVar(&kbID, "id", "", "Article id (generated when empty)")
	kbAddCmd.Flags().StringVar(&kbFile, "file", "", "Read the article content from a file")
	kbAddCmd.Flags().StringSliceVar(&kbMeta, "meta", nil, "Metadata as key=value, repeatable")
	_ = kbAddCmd.MarkFlagRequired("category")
	kbCmd.AddCommand(kbAddCmd)

	rootCmd.AddCommand(serveCmd, runCmd, resumeCmd, kbCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
