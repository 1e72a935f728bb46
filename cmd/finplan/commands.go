package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/finplan/internal/app"
	"github.com/kalambet/finplan/internal/config"
	"github.com/kalambet/finplan/internal/credential"
	"github.com/kalambet/finplan/internal/dashboard"
	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/importer"
)

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the Gemini API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Verify and store a Gemini API key",
	Long: `Verify a Gemini API key with a minimal request and store it.

The key is read from --key, or prompted for on stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			fmt.Fprint(os.Stderr, "Gemini API key: ")
			line, err := readLine(bufio.NewReader(os.Stdin))
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading key: %w", err)
			}
			key = line
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printStep("Verifying key...")
			return setKey(ctx, a, key)
		})
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a verified key is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			printStatus("API key", "%s", keyStatus(a))
			return nil
		})
	},
}

var keyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the key, the current plan and the chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This clears the stored key, the current plan and the chat history. Use --confirm to proceed.")
			return nil
		}
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			if err := a.Reset(); err != nil {
				return err
			}
			printSuccess("Key, plan and chat history cleared")
			return nil
		})
	},
}

func init() {
	keySetCmd.Flags().String("key", "", "API key (prompted for when omitted)")
	keyResetCmd.Flags().Bool("confirm", false, "confirm reset")
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyStatusCmd)
	keyCmd.AddCommand(keyResetCmd)
}

func setKey(ctx context.Context, a *app.App, key string) error {
	err := a.Gate.Verify(ctx, key)
	switch {
	case errors.Is(err, credential.ErrEmpty):
		return errors.New("API key must not be empty")
	case errors.Is(err, credential.ErrInvalid):
		return fmt.Errorf("key rejected: %s", gateway.FriendlyError(err))
	case err != nil:
		return err
	}
	printSuccess("API key verified and stored")
	return nil
}

func keyStatus(a *app.App) string {
	key, ok := a.Gate.Current()
	if !ok {
		return "not set"
	}
	return "verified (" + maskKey(key) + ")"
}

// maskKey keeps the last four characters of key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 4) + key[len(key)-4:]
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	return strings.TrimSpace(line), err
}

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate or show the investment plan",
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new plan from the saved profile",
	Long: `Generate a new plan from the saved profile.

Flags update the saved profile before generating, the same as 'finplan profile set'.

Examples:
  finplan plan generate
  finplan plan generate --risk aggressive --goal "Buy a house" --goal Retirement
  finplan plan generate --import ./holdings.csv --import ./statement.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := profileOverrides(cmd)
		if err != nil {
			return err
		}
		imports, _ := cmd.Flags().GetStringSlice("import")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return generatePlan(ctx, a, os.Stdout, overrides, imports)
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		raw, _ := cmd.Flags().GetBool("raw")
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			return showPlan(a, os.Stdout, asJSON, raw)
		})
	},
}

var planHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously generated plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			return listPlans(a, os.Stdout, limit)
		})
	},
}

// overrideFlags maps plan generate flags to profile field keys.
var overrideFlags = []struct {
	flag, key string
}{
	{"age", "age"},
	{"retirement-age", "retirement_age"},
	{"income", "annual_income"},
	{"cash", "cash_balance"},
	{"brokerage", "brokerage_balance"},
	{"retirement", "retirement_balance"},
	{"contribution", "monthly_contribution"},
	{"risk", "risk_tolerance"},
	{"filing", "filing_status"},
	{"portfolio", "current_portfolio"},
}

func init() {
	addOverrideFlags(planGenerateCmd)

	planShowCmd.Flags().Bool("json", false, "print the plan as JSON")
	planShowCmd.Flags().Bool("raw", false, "print the dashboard markdown without rendering")

	planCmd.AddCommand(planGenerateCmd)
	planHistoryCmd.Flags().Int("limit", 10, "maximum number of plans to list")

	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planHistoryCmd)
}

func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("age", "", "current age")
	f.String("retirement-age", "", "target retirement age")
	f.String("income", "", "annual income")
	f.String("cash", "", "cash balance")
	f.String("brokerage", "", "brokerage balance")
	f.String("retirement", "", "retirement account balance")
	f.String("contribution", "", "monthly contribution")
	f.String("risk", "", "risk tolerance (conservative, moderate, aggressive, very aggressive)")
	f.String("filing", "", "tax filing status")
	f.String("portfolio", "", "current holdings as free text")
	f.StringSlice("goal", nil, "investment goal (repeatable)")
	f.StringSlice("geo", nil, "geographic focus (repeatable)")
	f.StringSlice("import", nil, "file to import into current holdings (repeatable)")
}

func profileOverrides(cmd *cobra.Command) (map[string]string, error) {
	values := make(map[string]string)
	for _, o := range overrideFlags {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		v, err := cmd.Flags().GetString(o.flag)
		if err != nil {
			return nil, err
		}
		values[o.key] = v
	}
	for flag, key := range map[string]string{"goal": "goals", "geo": "geo_focus"} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		items, err := cmd.Flags().GetStringSlice(flag)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		values[key] = string(b)
	}
	return values, nil
}

func generatePlan(ctx context.Context, a *app.App, w io.Writer, overrides map[string]string, imports []string) error {
	if len(overrides) > 0 {
		if err := a.Profiles.SetFields(overrides); err != nil {
			return err
		}
	}
	if len(imports) > 0 {
		printStep("Importing %d file(s)...", len(imports))
		if err := importIntoProfile(ctx, a, imports); err != nil {
			return err
		}
	}

	prof, err := a.Profiles.GetProfile()
	if err != nil {
		return err
	}

	printStep("Generating plan with %s (this can take a minute)...", a.Config.Gemini.Model)
	p, err := a.GeneratePlan(ctx, prof)
	if err != nil {
		if errors.Is(err, app.ErrLocked) || errors.Is(err, app.ErrInvalidProfile) {
			return err
		}
		printDecodeFailure(w, err)
		return errors.New(gateway.FriendlyError(err))
	}

	fmt.Fprint(w, renderMarkdown(dashboard.Markdown(p)))
	printSuccess("Plan %s saved", p.ID)
	return nil
}

func showPlan(a *app.App, w io.Writer, asJSON, raw bool) error {
	p, err := a.CurrentPlan()
	if err != nil {
		return err
	}
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case raw:
		_, err := io.WriteString(w, dashboard.Markdown(p))
		return err
	default:
		_, err := io.WriteString(w, renderMarkdown(dashboard.Markdown(p)))
		return err
	}
}

func listPlans(a *app.App, w io.Writer, limit int) error {
	if limit <= 0 {
		return errors.New("--limit must be positive")
	}
	plans, err := a.PlanHistory(limit)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return app.ErrNoPlan
	}
	for _, p := range plans {
		tickers := make([]string, 0, len(p.Allocations))
		for _, alloc := range p.Allocations {
			tickers = append(tickers, alloc.Ticker)
		}
		fmt.Fprintf(w, "%s  %s  %s\n", p.ID, p.GeneratedAt.Format(time.DateTime), strings.Join(tickers, ", "))
	}
	return nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the advisor about the current plan",
	Long: `Talk to the advisor about the current plan.

With a message argument, asks once and exits. With --about, asks the standard
follow-up about one allocation. Otherwise starts an interactive session; type
/clear to start over and /exit (or Ctrl-D) to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		about, _ := cmd.Flags().GetString("about")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			switch {
			case about != "":
				return askAbout(ctx, a, os.Stdout, about)
			case len(args) > 0:
				return ask(ctx, a, os.Stdout, strings.Join(args, " "))
			default:
				return chatLoop(ctx, a, os.Stdin, os.Stdout)
			}
		})
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the conversation so far",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			for _, m := range a.Advisor.Messages() {
				printMessage(os.Stdout, m)
			}
			return nil
		})
	},
}

var chatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			if err := a.Advisor.Clear(); err != nil {
				return err
			}
			printSuccess("Chat history cleared")
			return nil
		})
	},
}

func init() {
	chatCmd.Flags().String("about", "", "ask about an allocation by ticker")
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatClearCmd)
}

func ask(ctx context.Context, a *app.App, w io.Writer, text string) error {
	reply, err := a.Ask(ctx, text)
	if err != nil {
		return err
	}
	printMessage(w, reply)
	return nil
}

func askAbout(ctx context.Context, a *app.App, w io.Writer, ticker string) error {
	reply, err := a.AskAbout(ctx, ticker)
	if err != nil {
		return err
	}
	printMessage(w, reply)
	return nil
}

func chatLoop(ctx context.Context, a *app.App, in io.Reader, w io.Writer) error {
	msgs := a.Advisor.Messages()
	if len(msgs) > 0 {
		printMessage(w, msgs[len(msgs)-1])
	}

	r := bufio.NewReader(in)
	for {
		fmt.Fprint(w, colorize(colorBold, "> "))
		line, err := readLine(r)
		switch line {
		case "":
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := a.Advisor.Clear(); err != nil {
				return err
			}
			printSuccess("Chat history cleared")
		default:
			if askErr := ask(ctx, a, w, line); askErr != nil {
				return askErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(w)
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Extract text from holdings files",
	Long: `Extract text from holdings files (PDF, HTML, CSV or plain text).

Prints the combined text, or with --append adds it to the profile's
current holdings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appendFlag, _ := cmd.Flags().GetBool("append")
		if !appendFlag {
			text, err := importer.Import(commandContext(cmd), args)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := importIntoProfile(ctx, a, args); err != nil {
				return err
			}
			printSuccess("Imported %d file(s) into current holdings", len(args))
			return nil
		})
	},
}

func init() {
	importCmd.Flags().Bool("append", false, "append to the profile's current holdings")
}

func importIntoProfile(ctx context.Context, a *app.App, paths []string) error {
	text, err := importer.Import(ctx, paths)
	if err != nil {
		return err
	}
	prof, err := a.Profiles.GetProfile()
	if err != nil {
		return err
	}
	return a.Profiles.SetField("current_portfolio", importer.Append(prof.CurrentPortfolio, text))
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
