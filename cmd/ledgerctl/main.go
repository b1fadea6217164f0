package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	format    string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Command-line client for a ledgerd server",
	Long: `ledgerctl talks to a ledgerd server over its HTTP API.

It manages the chart of accounts, drafts and posts journal entries,
voids posted entries by reversal, prints financial reports, and
verifies the integrity of the hash chain.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("LEDGERCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout), client.WithUserAgent("ledgerctl/"+version))
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// render prints v as JSON when --format=json, otherwise calls text.
func render(v any, text func() error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		return text()
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// ── accounts ─────────────────────────────────────────────────────────────────

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List and create accounts",
}

var accountsType string

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the chart of accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		accts, err := c.ListAccounts(ctx, model.AccountType(accountsType))
		if err != nil {
			return err
		}
		return render(accts, func() error {
			w := newTable()
			fmt.Fprintln(w, "CODE\tNAME\tTYPE\tSUBTYPE\tGROUP")
			for _, a := range accts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", a.Code, a.Name, a.Type, a.Subtype, a.IsGroup)
			}
			return w.Flush()
		})
	},
}

var newAccount model.CreateAccountRequest

var accountsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add an account to the chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := c.CreateAccount(ctx, newAccount)
		if err != nil {
			return err
		}
		return render(a, func() error {
			fmt.Printf("Created account %s %s (%s)\n", a.Code, a.Name, a.ID)
			return nil
		})
	},
}

func init() {
	accountsListCmd.Flags().StringVar(&accountsType, "type", "", "Filter by type: asset, liability, equity, income, expense")

	f := accountsCreateCmd.Flags()
	f.StringVar(&newAccount.Code, "code", "", "Account code (required)")
	f.StringVar(&newAccount.Name, "name", "", "Account name (required)")
	f.StringVar((*string)(&newAccount.Type), "type", "", "Account type (required)")
	f.StringVar(&newAccount.ParentCode, "parent", "", "Parent group account code")
	f.BoolVar(&newAccount.IsGroup, "group", false, "Create a group account that cannot be posted to")
	f.StringVar((*string)(&newAccount.Subtype), "subtype", "", "Account subtype, e.g. cash, bank, receivable")
	f.StringVar(&newAccount.Description, "description", "", "Free-form description")
	_ = accountsCreateCmd.MarkFlagRequired("code")
	_ = accountsCreateCmd.MarkFlagRequired("name")
	_ = accountsCreateCmd.MarkFlagRequired("type")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsCreateCmd)
}

// ── entries ──────────────────────────────────────────────────────────────────

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Draft, post, void and inspect journal entries",
}

var (
	draftDate        string
	draftDescription string
	draftDebits      []string
	draftCredits     []string
	draftCreatedBy   string
	draftPost        bool
)

var entriesDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Create a draft entry",
	Long: `Create a draft journal entry. Lines are given as ACCOUNT=AMOUNT where
ACCOUNT is an account code or ID:

  ledgerctl entries draft --description "Consulting invoice" \
    --debit 1130=750.00 --credit 4100=750.00 --post`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := parseLines(draftDebits, draftCredits)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		d, err := c.CreateDraft(ctx, client.DraftRequest{
			Date:        draftDate,
			Description: draftDescription,
			Lines:       lines,
			CreatedBy:   draftCreatedBy,
		})
		if err != nil {
			return err
		}
		if !draftPost {
			return render(d, func() error {
				fmt.Printf("Draft %s created (%s)\n", d.EntryNumber, d.ID)
				return nil
			})
		}
		p, err := c.Post(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("draft %s created but not posted: %w", d.ID, explain(err))
		}
		return render(p, func() error { return printPosted(p) })
	},
}

func init() {
	f := entriesDraftCmd.Flags()
	f.StringVar(&draftDate, "date", "", "Entry date YYYY-MM-DD (default today)")
	f.StringVar(&draftDescription, "description", "", "Entry description")
	f.StringArrayVar(&draftDebits, "debit", nil, "Debit line ACCOUNT=AMOUNT (repeatable)")
	f.StringArrayVar(&draftCredits, "credit", nil, "Credit line ACCOUNT=AMOUNT (repeatable)")
	f.StringVar(&draftCreatedBy, "created-by", "", "Author recorded on the entry")
	f.BoolVar(&draftPost, "post", false, "Post the draft immediately")
}

// parseLines turns ACCOUNT=AMOUNT pairs into entry lines.
func parseLines(debits, credits []string) ([]client.Line, error) {
	var lines []client.Line
	add := func(arg string, debit bool) error {
		acct, amt, ok := strings.Cut(arg, "=")
		if !ok || acct == "" {
			return fmt.Errorf("invalid line %q: want ACCOUNT=AMOUNT", arg)
		}
		a, err := money.Parse(amt)
		if err != nil {
			return fmt.Errorf("invalid amount in %q: %w", arg, err)
		}
		l := client.Line{Account: acct}
		if debit {
			l.Debit = a
		} else {
			l.Credit = a
		}
		lines = append(lines, l)
		return nil
	}
	for _, s := range debits {
		if err := add(s, true); err != nil {
			return nil, err
		}
	}
	for _, s := range credits {
		if err := add(s, false); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

var entriesPostCmd = &cobra.Command{
	Use:   "post <entry-id>",
	Short: "Validate a draft and append it to the chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		p, err := c.Post(ctx, args[0])
		if err != nil {
			return explain(err)
		}
		return render(p, func() error { return printPosted(p) })
	},
}

var (
	voidReason string
	voidDate   string
	voidBy     string
)

var entriesVoidCmd = &cobra.Command{
	Use:   "void <entry-id>",
	Short: "Void a posted entry by posting its reversal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		p, err := c.Void(ctx, args[0], client.VoidRequest{Date: voidDate, Reason: voidReason, VoidedBy: voidBy})
		if err != nil {
			return explain(err)
		}
		return render(p, func() error { return printPosted(p) })
	},
}

func init() {
	entriesVoidCmd.Flags().StringVar(&voidReason, "reason", "", "Reason for the void (required)")
	entriesVoidCmd.Flags().StringVar(&voidDate, "date", "", "Reversal date YYYY-MM-DD (default today)")
	entriesVoidCmd.Flags().StringVar(&voidBy, "by", "", "Who is voiding the entry")
	_ = entriesVoidCmd.MarkFlagRequired("reason")
}

var entriesGetCmd = &cobra.Command{
	Use:   "get <entry-id>",
	Short: "Show a draft or posted entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		e, err := c.GetEntry(ctx, args[0])
		if err != nil {
			return err
		}
		return render(e, func() error {
			if e.Posted != nil {
				return printPosted(e.Posted)
			}
			return printEntry(string(e.Status), &e.Draft.Entry)
		})
	},
}

var (
	listStatus string
	listLimit  int
	listOffset int
	listFrom   int64
)

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts or posted entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		var entries []client.Entry
		switch model.Status(listStatus) {
		case model.StatusDraft:
			entries, err = c.ListDrafts(ctx, listLimit, listOffset)
		case model.StatusPosted:
			entries, err = c.ListPosted(ctx, listFrom, listLimit)
		default:
			return fmt.Errorf("--status must be draft or posted, got %q", listStatus)
		}
		if err != nil {
			return err
		}
		return render(entries, func() error {
			w := newTable()
			fmt.Fprintln(w, "SEQ\tNUMBER\tDATE\tSTATUS\tAMOUNT\tDESCRIPTION")
			for _, e := range entries {
				if p := e.Posted; p != nil {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						p.Sequence, p.EntryNumber, p.Date.Format(model.DateLayout), e.Status, p.DebitTotal, p.Description)
					continue
				}
				d := e.Draft
				fmt.Fprintf(w, "-\t%s\t%s\t%s\t%s\t%s\n",
					d.EntryNumber, d.Date.Format(model.DateLayout), e.Status, lineTotal(d.Lines), d.Description)
			}
			return w.Flush()
		})
	},
}

func init() {
	entriesListCmd.Flags().StringVar(&listStatus, "status", "posted", "Which entries to list: draft or posted")
	entriesListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum entries to return")
	entriesListCmd.Flags().IntVar(&listOffset, "offset", 0, "Drafts to skip")
	entriesListCmd.Flags().Int64Var(&listFrom, "from", 1, "First sequence for posted entries")

	entriesCmd.AddCommand(entriesDraftCmd)
	entriesCmd.AddCommand(entriesPostCmd)
	entriesCmd.AddCommand(entriesVoidCmd)
	entriesCmd.AddCommand(entriesGetCmd)
	entriesCmd.AddCommand(entriesListCmd)
}

func lineTotal(lines []model.Line) money.Amount {
	var t money.Amount
	for _, l := range lines {
		t += l.Debit
	}
	return t
}

func printPosted(p *model.Posted) error {
	status := string(p.Status())
	if err := printEntry(status, &p.Entry); err != nil {
		return err
	}
	fmt.Printf("Sequence:    %d\n", p.Sequence)
	fmt.Printf("Hash:        %s\n", p.Hash)
	if p.ReversesEntryID != "" {
		fmt.Printf("Reverses:    %s\n", p.ReversesEntryID)
	}
	if p.VoidedByEntryID != "" {
		fmt.Printf("Voided by:   %s\n", p.VoidedByEntryID)
	}
	return nil
}

func printEntry(status string, e *model.Entry) error {
	fmt.Printf("Entry:       %s (%s)\n", e.EntryNumber, e.ID)
	fmt.Printf("Status:      %s\n", status)
	fmt.Printf("Date:        %s\n", e.Date.Format(model.DateLayout))
	fmt.Printf("Description: %s\n", e.Description)
	w := newTable()
	fmt.Fprintln(w, "  ACCOUNT\tDEBIT\tCREDIT\tMEMO")
	for _, l := range e.Lines {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", l.AccountID, l.Debit, l.Credit, l.Description)
	}
	return w.Flush()
}

// explain adds the server's per-line problems to a validation failure.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Problems) == 0 {
		return err
	}
	var b strings.Builder
	b.WriteString(apiErr.Message)
	for _, p := range apiErr.Problems {
		if p.Line >= 0 {
			fmt.Fprintf(&b, "\n  line %d: %s", p.Line+1, p.Message)
		} else {
			fmt.Fprintf(&b, "\n  %s", p.Message)
		}
	}
	return errors.New(b.String())
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledgerctl %s\n", version)
	},
}
