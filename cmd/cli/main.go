package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/bizledger/internal/actions"
	"github.com/dvloznov/bizledger/internal/app"
	"github.com/dvloznov/bizledger/internal/config"
	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/receipts"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	outputFormat string
	log          zerolog.Logger
	cfg          *config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "bizledger",
		Short: "Bookkeeping assistant CLI",
		Long:  "Extract transactions from text or receipts, generate insights and chat about your ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			log = logger.NewWithLevel(cfg.Logger.Level)
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(extractTextCmd())
	root.AddCommand(extractImageCmd())
	root.AddCommand(insightsCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAssistant(ctx context.Context) (*actions.Assistant, error) {
	return app.NewAssistant(ctx, cfg.Assistant, nil)
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return logger.WithContext(ctx, log), cancel
}

func extractTextCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "extract-text TEXT...",
		Short: "Extract a transaction from a free-text description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 2*time.Minute)
			defer cancel()

			assistant, err := newAssistant(ctx)
			if err != nil {
				return err
			}
			res := assistant.ExtractFromText(ctx, actions.TextRequest{
				Text:        strings.Join(args, " "),
				CurrentDate: date,
			})
			return printResult(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "current date as YYYY-MM-DD (default: today)")
	return cmd
}

func extractImageCmd() *cobra.Command {
	var (
		date   string
		file   string
		gcsURI string
	)
	cmd := &cobra.Command{
		Use:   "extract-image",
		Short: "Extract a transaction from a receipt or invoice image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (gcsURI == "") {
				return fmt.Errorf("exactly one of --file or --gcs-uri is required")
			}

			ctx, cancel := commandContext(cmd, 3*time.Minute)
			defer cancel()

			var img datauri.Image
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				img = datauri.Image{MIMEType: sniffMIME(data), Data: data}
			} else {
				archive, err := receipts.NewArchive(ctx, "")
				if err != nil {
					return err
				}
				defer archive.Close()
				if img, err = archive.Fetch(ctx, gcsURI); err != nil {
					return err
				}
			}

			assistant, err := newAssistant(ctx)
			if err != nil {
				return err
			}
			res := assistant.ExtractFromImage(ctx, actions.ImageRequest{
				ImageDataURI: img.String(),
				CurrentDate:  date,
			})
			return printResult(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "current date as YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&file, "file", "", "path to a local receipt image or PDF")
	cmd.Flags().StringVar(&gcsURI, "gcs-uri", "", "gs:// URI of an archived receipt")
	return cmd
}

func insightsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate insights from a transactions file or the configured ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 2*time.Minute)
			defer cancel()

			txs, err := loadContext(ctx, file)
			if err != nil {
				return err
			}
			assistant, err := newAssistant(ctx)
			if err != nil {
				return err
			}
			res := assistant.InsightsFromTransactions(ctx, txs)
			return printResult(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().StringVar(&file, "transactions", "", "YAML or JSON transactions file (default: configured ledger)")
	return cmd
}

func chatCmd() *cobra.Command {
	var (
		file     string
		question string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about your transactions",
		Long: `Starts an interactive chat grounded in the given transactions. The
transcript lives in this process only and is resent on every question.
With --question a single answer is printed and the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithContext(cmd.Context(), log)

			txs, err := loadContext(ctx, file)
			if err != nil {
				return err
			}
			grounding, err := json.Marshal(txs)
			if err != nil {
				return fmt.Errorf("encode transactions: %w", err)
			}
			assistant, err := newAssistant(ctx)
			if err != nil {
				return err
			}

			s := &chatSession{assistant: assistant, grounding: string(grounding)}
			if question != "" {
				answer, err := s.ask(ctx, question)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			}
			return s.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "transactions", "", "YAML or JSON transactions file (default: configured ledger)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "ask a single question and exit")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the BigQuery ledger dataset and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Ledger.ProjectID == "" {
				return fmt.Errorf("GCP_PROJECT is required")
			}
			ctx, cancel := commandContext(cmd, 5*time.Minute)
			defer cancel()

			store, err := ledger.NewBigQueryStore(ctx, cfg.Ledger.ProjectID, cfg.Ledger.Dataset)
			if err != nil {
				return err
			}
			defer store.Close()

			log.Info().Str("project", cfg.Ledger.ProjectID).Str("dataset", cfg.Ledger.Dataset).Msg("Ensuring ledger tables")
			if err := store.EnsureTables(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger tables are up to date.")
			return nil
		},
	}
}

// chatSession keeps the transcript on the client side.
type chatSession struct {
	assistant *actions.Assistant
	grounding string
	history   []domain.ConversationTurn
}

func (s *chatSession) ask(ctx context.Context, question string) (string, error) {
	s.history = append(s.history, domain.ConversationTurn{Speaker: domain.SpeakerUser, Text: question})

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	res := s.assistant.Chat(callCtx, actions.ChatRequest{History: s.history, TransactionsJSON: s.grounding})
	if !res.Success {
		// Drop the unanswered question so the transcript stays user/assistant alternating.
		s.history = s.history[:len(s.history)-1]
		return "", fmt.Errorf("%s", res.Error)
	}
	s.history = append(s.history, domain.ConversationTurn{Speaker: domain.SpeakerAssistant, Text: res.Data.Answer})
	return res.Data.Answer, nil
}

func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask about your finances. Empty line or Ctrl-D to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}
		answer, err := s.ask(ctx, question)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, answer)
	}
}

// loadContext reads transactions from file, or from the configured ledger when file is empty.
func loadContext(ctx context.Context, file string) ([]domain.Transaction, error) {
	if file != "" {
		return loadTransactionsFile(file)
	}
	store, err := app.NewLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, ledger.Filter{})
}

func sniffMIME(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}

func printResult(w io.Writer, v any, ok bool) error {
	var err error
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(toPlain(v))
		_ = enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(v)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("action failed")
	}
	return nil
}

// toPlain round-trips v through JSON so YAML output uses the JSON field names.
func toPlain(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
