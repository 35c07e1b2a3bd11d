// Command csctl manages the support bot's FAQ entries, staff role allow
// list, and notification toggle from the shell, using the same datastore
// and settings file as the bot itself.
package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/7FIl/CS-Bot/config"
	"github.com/7FIl/CS-Bot/domain/infra"
	"github.com/7FIl/CS-Bot/domain/model"
	flag "github.com/spf13/pflag"
)

const usage = `Usage:
  csctl faq list
  csctl faq add <trigger_id> <button_label> <response_text>
  csctl faq delete <trigger_id>
  csctl roles list
  csctl roles add <role>
  csctl roles remove <role>
  csctl notify on|off|status
  csctl stats [--limit N]

Flags:
`

func main() {
	limit := flag.Int("limit", 100, "number of recent tickets to include in stats")
	settingsPath := flag.String("settings", config.DefaultSettingsPath, "path to the bot settings file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	config.LoadEnv()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "faq":
		err = runFAQ(ctx, args[1:])
	case "roles":
		err = runRoles(*settingsPath, args[1:])
	case "notify":
		err = runNotify(*settingsPath, args[1:])
	case "stats":
		err = runStats(ctx, *limit)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "csctl: %v\n", err)
		os.Exit(1)
	}
}

func runFAQ(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("faq needs a subcommand: list, add, delete")
	}

	ds, err := infra.NewDatastore(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		entries, err := ds.LoadFAQ(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TRIGGER\tLABEL\tRESPONSE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.TriggerID, e.ButtonLabel, truncate(e.ResponseText, 60))
		}
		return w.Flush()
	case "add":
		if len(args) != 4 {
			return fmt.Errorf("faq add needs <trigger_id> <button_label> <response_text>")
		}
		entry := &model.FAQEntry{
			TriggerID:    strings.TrimSpace(args[1]),
			ButtonLabel:  strings.TrimSpace(args[2]),
			ResponseText: args[3],
		}
		if entry.TriggerID == "" || entry.ButtonLabel == "" || entry.ResponseText == "" {
			return fmt.Errorf("faq fields must not be empty")
		}
		if err := ds.AppendFAQ(ctx, entry); err != nil {
			return err
		}
		fmt.Printf("added FAQ entry %q\n", entry.TriggerID)
		return nil
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("faq delete needs <trigger_id>")
		}
		ok, err := ds.DeleteFAQ(ctx, args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no FAQ entry with trigger %q", args[1])
		}
		fmt.Printf("deleted FAQ entry %q\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown faq subcommand %q", args[0])
	}
}

func runRoles(settingsPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("roles needs a subcommand: list, add, remove")
	}
	settings, err := config.NewSettingsFile(settingsPath)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		roles := settings.Get().StaffRoles
		if len(roles) == 0 {
			fmt.Println("no staff roles configured")
			return nil
		}
		for _, r := range roles {
			fmt.Println(r)
		}
		return nil
	case "add":
		if len(args) != 2 {
			return fmt.Errorf("roles add needs <role>")
		}
		role := strings.TrimPrefix(strings.TrimSpace(args[1]), "@")
		if role == "" {
			return fmt.Errorf("role must not be empty")
		}
		return settings.Update(func(s *config.Settings) {
			if !slices.Contains(s.StaffRoles, role) {
				s.StaffRoles = append(s.StaffRoles, role)
			}
		})
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("roles remove needs <role>")
		}
		role := strings.TrimPrefix(strings.TrimSpace(args[1]), "@")
		return settings.Update(func(s *config.Settings) {
			s.StaffRoles = slices.DeleteFunc(s.StaffRoles, func(r string) bool {
				return strings.EqualFold(r, role)
			})
		})
	default:
		return fmt.Errorf("unknown roles subcommand %q", args[0])
	}
}

func runNotify(settingsPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("notify needs on, off, or status")
	}
	settings, err := config.NewSettingsFile(settingsPath)
	if err != nil {
		return err
	}

	switch args[0] {
	case "on":
		return settings.Update(func(s *config.Settings) { s.NotifyStaff = true })
	case "off":
		return settings.Update(func(s *config.Settings) { s.NotifyStaff = false })
	case "status":
		if settings.Get().NotifyStaff {
			fmt.Println("staff notifications: on")
		} else {
			fmt.Println("staff notifications: off")
		}
		return nil
	default:
		return fmt.Errorf("unknown notify subcommand %q", args[0])
	}
}

func runStats(ctx context.Context, limit int) error {
	ds, err := infra.NewDatastore(ctx)
	if err != nil {
		return err
	}
	tickets, err := ds.ListTickets(ctx, limit)
	if err != nil {
		return err
	}

	counts := map[model.Status]int{}
	for _, t := range tickets {
		counts[t.Status]++
	}
	fmt.Printf("tickets (last %d): %d\n", limit, len(tickets))
	for _, s := range []model.Status{model.StatusPending, model.StatusInProgress, model.StatusResolved, model.StatusClosed} {
		fmt.Printf("  %-12s %d\n", s, counts[s])
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
