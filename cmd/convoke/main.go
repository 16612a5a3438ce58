// Command convoke is a small CLI over the conversation engine. It wires
// the SQLite store, the built-in tool catalog, and the deterministic mock
// LLM provider so conversations can be exercised locally end to end.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"convoke"
	"convoke/internal/cache"
	"convoke/internal/config"
	"convoke/internal/contextmgr"
	"convoke/internal/conversation"
	"convoke/internal/executor"
	"convoke/internal/llm"
	"convoke/internal/planner"
	"convoke/internal/registry"
	"convoke/internal/store"
	"convoke/internal/tools"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "convoke",
		Short: "Drive multi-step, tool-using conversations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults to search paths)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(&configPath, &verbose),
		newContinueCmd(&configPath, &verbose),
		newRunCmd(&configPath, &verbose),
		newPlanCmd(&configPath, &verbose),
		newListCmd(&configPath, &verbose),
		newShowCmd(&configPath, &verbose),
		newDeleteCmd(&configPath, &verbose),
	)
	return root
}

func buildEngine(configPath string, verbose bool) (*convoke.Convoke, func(), error) {
	if configPath == "" {
		configPath = config.Find()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
	}

	s, err := store.Open(cfg.DatabasePath, store.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	summaries, err := store.NewSummaryStore(s.DB())
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	reg := registry.New(registry.WithLogger(logger))
	for _, tool := range tools.SetupTools() {
		reg.Register(tool)
	}

	exec := executor.New(reg,
		executor.WithExecTimeout(cfg.ExecutionTimeout()),
		executor.WithMaxParallel(cfg.MaxParallelExecutions),
		executor.WithLogger(logger),
	)

	provider := llm.NewMockProvider()

	llmPlanner := planner.New(provider,
		planner.WithSchemaValidator(reg),
		planner.WithLogger(logger),
	)
	planCache := cache.NewInMemoryCache(10*time.Minute, cache.NewZapLogger(logger))
	cachingPlanner := planner.NewCachingPlanner(llmPlanner, planCache, logger)

	cm := contextmgr.New(
		contextmgr.WithMaxContextSize(cfg.MaxContextSizeBytes),
		contextmgr.WithMaxHistoryItems(cfg.MaxHistoryItems),
		contextmgr.WithDefaults(convoke.UserPreferences{
			MaxConversationSteps:    cfg.MaxConversationSteps,
			PreferredResponseFormat: cfg.ResponseFormat,
			TimeoutSeconds:          cfg.ExecutionTimeoutSecs,
		}),
		contextmgr.WithSummarySource(summaries),
		contextmgr.WithLogger(logger),
	)

	manager, err := conversation.NewManager(s, provider, reg, exec, cm, nil,
		conversation.WithMaxSteps(cfg.MaxConversationSteps),
		conversation.WithStepTimeout(cfg.StepTimeout()),
		conversation.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	engine, err := convoke.New(
		convoke.WithConversationManager(manager),
		convoke.WithRegistry(reg),
		convoke.WithPlanner(cachingPlanner),
		convoke.WithExecutor(exec),
		convoke.WithStore(s),
		convoke.WithLLMProvider(provider),
		convoke.WithCache(planCache),
		convoke.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	cleanup := func() {
		engine.Close()
		s.Close()
	}
	return engine, cleanup, nil
}

func newStartCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "start <query>",
		Short: "Start a new conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			conv, err := engine.StartConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("started conversation %s (state %s)\n", conv.ID, conv.State)
			return nil
		},
	}
}

func newContinueCmd(configPath *string, verbose *bool) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "continue <conversation-id>",
		Short: "Advance a conversation by one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			var userInput *string
			if cmd.Flags().Changed("input") {
				userInput = &input
			}
			result, err := engine.ContinueConversation(cmd.Context(), args[0], userInput)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "clarification input for a paused conversation")
	return cmd
}

func newRunCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run <query>",
		Short: "Start a conversation and drive it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := engine.RunToCompletion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
}

func newPlanCmd(configPath *string, verbose *bool) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "plan <plan-file>",
		Short: "Run a YAML plan file against the tool catalog, bypassing the LLM planner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			reg := engine.Registry()
			plan, err := planner.LoadAndValidatePlan(args[0], reg.DescribeAll(), reg)
			if err != nil {
				return err
			}

			if check {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			aggregate, err := engine.RunPlan(cmd.Context(), plan)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(aggregate, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate and print the plan without executing it")
	return cmd
}

func newListCmd(configPath *string, verbose *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			conversations, err := engine.ListConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, conv := range conversations {
				fmt.Printf("%s  %-20s  %s  %q\n",
					conv.ID, conv.State, conv.UpdatedAt.Format(time.RFC3339), conv.UserQuery)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum conversations to list")
	return cmd
}

func newShowCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation with all of its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			conv, err := engine.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			data, err := json.MarshalIndent(conv, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newDeleteCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := buildEngine(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := engine.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted conversation %s\n", args[0])
			return nil
		},
	}
}

func printResult(result *convoke.ConversationResult) {
	fmt.Printf("conversation %s: %s (%d steps)\n",
		result.ConversationID, result.State, result.StepsTaken)
	if result.RequiresInput && result.InputPrompt != nil {
		fmt.Printf("input needed: %s\n", *result.InputPrompt)
	}
	if result.Response != nil {
		fmt.Println(*result.Response)
	}
}
