package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"eventsite/internal/data"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the admin password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()

		password, err := readNewPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := e.site.SetAdminPassword(password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Admin password updated.")
		return nil
	},
}

// readNewPassword prompts twice on a terminal, or reads one line from a pipe.
func readNewPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "New admin password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration and what the pages currently show",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()

		out := cmd.OutOrStdout()
		raw, _ := cmd.Flags().GetBool("raw")
		if raw {
			_, err := out.Write(e.site.Content())
			return err
		}

		fmt.Fprintf(out, "Config file: %s\n", e.store.Path())
		fmt.Fprintf(out, "Sections:    %s\n\n", strings.Join(e.site.Sections(), ", "))

		view := e.site.Schedule()
		fmt.Fprintf(out, "Line-up (%s):\n", e.resolver.Now().Format("15:04 MST"))
		for _, dj := range view.Entries {
			marker := " "
			if dj.Name == view.Current {
				marker = ">"
			}
			fmt.Fprintf(out, " %s %-6s %s (%s)\n", marker, dj.Time, dj.Name, dj.Genre)
		}
		fmt.Fprintf(out, "  progress %.0f%%\n", view.Progress*100)
		if view.Note != "" {
			fmt.Fprintf(out, "  note: %s\n", view.Note)
		}

		menu := e.site.Drinks()
		fmt.Fprintln(out, "\nDrinks:")
		for _, g := range menu.Catalog.Groups {
			fmt.Fprintf(out, "  %s\n", g.Category)
			for _, d := range g.Drinks {
				fmt.Fprintf(out, "    %-20s %-8s %6.2f\n", d.Name, d.Amount, d.Price)
			}
		}
		if menu.Note != "" {
			fmt.Fprintf(out, "  note: %s\n", menu.Note)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the configuration and reseed the default layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to clear without --yes")
		}
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.site.ClearAll(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration cleared.")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved configuration revisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()
		if !data.IsInitialized() {
			return errors.New("revision history is disabled (SITE_HISTORY_DB=off)")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		revisions, err := data.ListRevisions(limit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSAVED\tACTION\tCHECKSUM")
		for _, rev := range revisions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.12s\n", rev.ID,
				rev.CreatedAt.In(e.resolver.Location()).Format("2006-01-02 15:04:05"), rev.Action, rev.Checksum)
		}
		return tw.Flush()
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <revision-id>",
	Short: "Restore the configuration from a saved revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid revision id %q", args[0])
		}

		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()
		if !data.IsInitialized() {
			return errors.New("revision history is disabled (SITE_HISTORY_DB=off)")
		}

		rev, err := data.GetRevision(id)
		if err != nil {
			return err
		}
		if err := e.site.RestoreRevision([]byte(rev.Content)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored revision %d (%s).\n", rev.ID, rev.Action)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("raw", false, "print the configuration file verbatim")
	clearCmd.Flags().Bool("yes", false, "confirm clearing the configuration")
	historyCmd.Flags().Int("limit", 20, "number of revisions to list")

	rootCmd.AddCommand(passwdCmd, showCmd, clearCmd, historyCmd, restoreCmd)
}
