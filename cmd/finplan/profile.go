package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kalambet/finplan/internal/app"
	"github.com/kalambet/finplan/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the financial profile used for plans",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			return showProfile(a, os.Stdout, asJSON)
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Long: fmt.Sprintf(`Set a profile field. An empty value resets it.

Keys: %v`, profile.FieldKeys()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			if err := a.Profiles.SetField(key, value); err != nil {
				return err
			}
			printSuccess("Set %s = %s", key, value)
			return nil
		})
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the profile form in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			return editProfile(a, func(path string) error {
				editorCmd := exec.Command(editor, path)
				editorCmd.Stdin = os.Stdin
				editorCmd.Stdout = os.Stdout
				editorCmd.Stderr = os.Stderr
				if err := editorCmd.Run(); err != nil {
					return fmt.Errorf("editor exited with error: %w", err)
				}
				return nil
			})
		})
	},
}

var profileResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every profile field to its default",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			if err := a.Profiles.Reset(); err != nil {
				return err
			}
			printSuccess("Profile reset to defaults")
			return nil
		})
	},
}

func init() {
	profileShowCmd.Flags().Bool("json", false, "print the profile as JSON")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileResetCmd)
}

func showProfile(a *app.App, w io.Writer, asJSON bool) error {
	p, err := a.Profiles.GetProfile()
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	fmt.Fprintln(w, p.Summary())
	if err := p.Validate(); err != nil {
		printWarning("Profile is incomplete: %v", err)
	}
	return nil
}

// formValues is the profile as an editable TOML form keyed by field key.
func formValues(p profile.Profile) map[string]any {
	return map[string]any{
		"age":                  p.Age,
		"retirement_age":       p.RetirementAge,
		"annual_income":        p.AnnualIncome.String(),
		"cash_balance":         balanceValue(p.CashBalance),
		"brokerage_balance":    balanceValue(p.BrokerageBalance),
		"retirement_balance":   balanceValue(p.RetirementBalance),
		"monthly_contribution": p.MonthlyContribution.String(),
		"risk_tolerance":       string(p.RiskTolerance),
		"filing_status":        string(p.FilingStatus),
		"goals":                p.Goals,
		"geo_focus":            p.GeoFocus,
		"current_portfolio":    p.CurrentPortfolio,
	}
}

func balanceValue(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// formRaw converts one decoded TOML value back to the raw string form
// accepted by Manager.SetField.
func formRaw(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

// editProfile writes the profile form to a temp file, lets edit change it
// and saves the result.
func editProfile(a *app.App, edit func(path string) error) error {
	p, err := a.Profiles.GetProfile()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(formValues(p))
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "finplan-profile-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := edit(tmpPath); err != nil {
		return err
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := toml.Unmarshal(edited, &fields); err != nil {
		return fmt.Errorf("invalid TOML: %w", err)
	}

	values := make(map[string]string, len(fields))
	for key, v := range fields {
		raw, err := formRaw(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		values[key] = raw
	}
	if err := a.Profiles.SetFields(values); err != nil {
		return err
	}

	printSuccess("Profile updated")
	return nil
}
