package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gameweek/internal/auth"
	"gameweek/internal/config"
	"gameweek/internal/ics"
	"gameweek/internal/jobs"
	appLog "gameweek/internal/log"
	"gameweek/internal/model"
	"gameweek/internal/schedule"
	"gameweek/internal/store"
)

type app struct {
	out io.Writer

	configPath string
	dataPath   string
	asJSON     bool
	verbose    bool

	conf  *config.Config
	store *store.Store
	now   func() time.Time
}

// execute runs one command line and always releases the database lock,
// including when the command fails.
func execute(out io.Writer, args []string) error {
	cmd, a := newRootCmd(out)
	cmd.SetArgs(args)
	defer a.close()
	return cmd.Execute()
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, now: time.Now}

	cmd := &cobra.Command{
		Use:          "gameweekctl",
		Short:        "Administer servers, events and admins of a gameweek database",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !a.verbose {
				appLog.SetLevel(appLog.LevelWarn)
			}
			return a.open()
		},
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "/etc/gameweek/config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&a.dataPath, "data", "", "Database file (overrides config data_path)")
	cmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of tables")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable info logging")

	cmd.AddCommand(a.adminCmd(), a.serversCmd(), a.eventsCmd(), a.weekCmd(), a.exportCmd(), a.importCmd())
	return cmd, a
}

// open loads the config without writing a default file, so pointing
// --data at a scratch database needs no config at all.
func (a *app) open() error {
	a.conf = config.DefaultConfig()
	if _, err := os.Stat(a.configPath); err == nil {
		conf, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.conf = conf
	}
	if err := a.conf.ApplyEnv(); err != nil {
		return err
	}
	if a.dataPath != "" {
		a.conf.DataPath = a.dataPath
	}
	st, err := store.Open(a.conf.DataPath)
	if err != nil {
		return err
	}
	a.store = st
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) location() *time.Location {
	loc, err := a.conf.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func (a *app) authService() *auth.Service {
	ttl, err := a.conf.SessionDuration()
	if err != nil {
		ttl = auth.DefaultSessionTTL
	}
	return auth.NewService(a.store, ttl)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table(header string, rows [][]string) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Manage admin profiles"}

	var password string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an admin profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.authService().Register(args[0], password, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created admin %s (%s)\n", p.Email, p.ID)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	add.MarkFlagRequired("password")

	var newPassword string
	passwd := &cobra.Command{
		Use:   "passwd <email>",
		Short: "Change a profile's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authService().ChangePassword(args[0], newPassword); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "password changed for %s\n", store.NormalizeEmail(args[0]))
			return nil
		},
	}
	passwd.Flags().StringVar(&newPassword, "password", "", "New password")
	passwd.MarkFlagRequired("password")

	setAdmin := func(use, short string, flag bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <email>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.store.SetAdmin(args[0], flag)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s is_admin=%v\n", p.Email, p.IsAdmin)
				return nil
			},
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := a.store.ListProfiles()
			if err != nil {
				return err
			}
			if a.asJSON {
				type row struct {
					ID      string `json:"id"`
					Email   string `json:"email"`
					IsAdmin bool   `json:"is_admin"`
				}
				out := make([]row, 0, len(profiles))
				for _, p := range profiles {
					out = append(out, row{p.ID, p.Email, p.IsAdmin})
				}
				return a.printJSON(out)
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				rows = append(rows, []string{p.Email, fmt.Sprint(p.IsAdmin), p.ID})
			}
			return a.table("EMAIL\tADMIN\tID", rows)
		},
	}

	cmd.AddCommand(add, passwd, setAdmin("grant", "Give a profile admin rights", true), setAdmin("revoke", "Remove admin rights", false), list)
	return cmd
}

func (a *app) serversCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "servers", Short: "Manage game servers"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := a.store.ListServers()
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(servers)
			}
			rows := make([][]string, 0, len(servers))
			for _, s := range servers {
				week := "-"
				if s.HasStart() {
					week = fmt.Sprint(schedule.WeekIndex(s.StartDate, a.now(), a.location()) + 1)
				}
				rows = append(rows, []string{s.Name, dateOrDash(s.StartDate), week, s.ID})
			}
			return a.table("NAME\tSTART\tWEEK\tID", rows)
		},
	}

	var start string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDate(start)
			if err != nil {
				return err
			}
			srv, err := a.store.CreateServer(model.Server{Name: args[0], StartDate: d})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created server %s (%s)\n", srv.Name, srv.ID)
			return nil
		},
	}
	add.Flags().StringVar(&start, "start", "", "Start date, YYYY-MM-DD")

	setStart := &cobra.Command{
		Use:   "set-start <server> <YYYY-MM-DD>",
		Short: "Set or clear (\"\") a server's start date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			d, err := model.ParseDate(args[1])
			if err != nil {
				return err
			}
			srv, err = a.store.UpdateServer(srv.ID, store.ServerUpdate{StartDate: &d})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s starts %s\n", srv.Name, dateOrDash(srv.StartDate))
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <server>",
		Short: "Delete a server and its own events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteServer(srv.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted server %s\n", srv.Name)
			return nil
		},
	}

	cmd.AddCommand(list, add, setStart, rm)
	return cmd
}

// resolveServer accepts an id or an exact (case-insensitive) name.
func (a *app) resolveServer(ref string) (model.Server, error) {
	if srv, err := a.store.GetServer(ref); err == nil {
		return srv, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Server{}, err
	}
	servers, err := a.store.ListServers()
	if err != nil {
		return model.Server{}, err
	}
	var match []model.Server
	for _, s := range servers {
		if strings.EqualFold(s.Name, ref) {
			match = append(match, s)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return model.Server{}, fmt.Errorf("server %q: %w", ref, store.ErrNotFound)
	default:
		return model.Server{}, fmt.Errorf("server name %q is ambiguous, use the id", ref)
	}
}

func (a *app) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Manage events"}

	var listServer string
	list := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				events []model.Event
				err    error
			)
			if listServer != "" {
				srv, rerr := a.resolveServer(listServer)
				if rerr != nil {
					return rerr
				}
				events, err = a.store.ListEventsForServer(srv.ID)
			} else {
				events, err = a.store.ListEvents()
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(events)
			}
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				when := fmt.Sprintf("w%d d%d", ev.Week, ev.Day)
				if ev.IsAbsolute() {
					when = model.FormatDate(ev.Start)
				}
				repeat := "-"
				if ev.RepeatWeeks > 0 {
					repeat = fmt.Sprintf("every %dw", ev.RepeatWeeks)
				}
				scope := ev.ServerID
				if scope == "" {
					scope = "all"
				}
				rows = append(rows, []string{ev.Name, when, fmt.Sprint(ev.Days), repeat, ev.Reward, scope, ev.ID})
			}
			return a.table("NAME\tWHEN\tDAYS\tREPEAT\tREWARD\tSERVER\tID", rows)
		},
	}
	list.Flags().StringVar(&listServer, "server", "", "Only events shown on this server")

	var (
		ev         model.Event
		evServer   string
		start, end string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an event by week/day or by dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev.Name = args[0]
			if evServer != "" {
				srv, err := a.resolveServer(evServer)
				if err != nil {
					return err
				}
				ev.ServerID = srv.ID
			}
			var err error
			if ev.Start, err = model.ParseDate(start); err != nil {
				return err
			}
			if ev.End, err = model.ParseDate(end); err != nil {
				return err
			}
			if ev.IsAbsolute() && !ev.End.IsZero() && !cmd.Flags().Changed("days") {
				ev.Days = schedule.DaysBetween(ev.Start, ev.End) + 1
			}
			created, err := a.store.CreateEvent(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created event %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	add.Flags().StringVar(&ev.Reward, "reward", "", "Reward text")
	add.Flags().IntVar(&ev.Week, "week", 0, "Week number, 1-based")
	add.Flags().IntVar(&ev.Day, "day", 0, "Day offset into the week, 0-6")
	add.Flags().IntVar(&ev.Days, "days", 1, "Length in days")
	add.Flags().IntVar(&ev.RepeatWeeks, "repeat", 0, "Repeat every N weeks")
	add.Flags().StringVar(&evServer, "server", "", "Limit to one server (id or name)")
	add.Flags().StringVar(&start, "start", "", "Pin to a start date, YYYY-MM-DD")
	add.Flags().StringVar(&end, "end", "", "Last date when pinned, YYYY-MM-DD")

	rm := &cobra.Command{
		Use:   "rm <event-id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteEvent(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted event %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

func (a *app) weekCmd() *cobra.Command {
	var number, offset, maxRows int
	cmd := &cobra.Command{
		Use:   "week <server>",
		Short: "Print a server week as laid out in the viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			events, err := a.store.ListEventsForServer(srv.ID)
			if err != nil {
				return err
			}
			if maxRows <= 0 {
				maxRows = a.conf.MaxRows
			}
			opts := schedule.Options{Now: a.now(), Location: a.location(), MaxRows: maxRows}
			if !srv.HasStart() {
				return schedule.ErrNoStartDate
			}
			index := schedule.CurrentIndex(srv, opts) + offset
			if number > 0 {
				index = number - 1
			}
			week, err := schedule.BuildWeek(srv, events, index, opts)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(week)
			}
			return renderWeek(a.out, srv, week)
		},
	}
	cmd.Flags().IntVar(&number, "week", 0, "Week number, 1-based")
	cmd.Flags().IntVar(&offset, "offset", 0, "Weeks relative to the current week")
	cmd.Flags().IntVar(&maxRows, "rows", 0, "Row cap (defaults to config max_rows)")
	return cmd
}

// renderWeek draws the packed rows as a 7-column text grid.
func renderWeek(w io.Writer, srv model.Server, week schedule.Week) error {
	const cell = 14
	var b bytes.Buffer
	title := fmt.Sprintf("%s  week %d  (%s - %s)", srv.Name, week.Number, model.FormatDate(week.Start), model.FormatDate(week.End))
	if week.Current {
		title += "  current"
	}
	fmt.Fprintln(&b, title)
	for _, d := range week.Days {
		fmt.Fprintf(&b, "%-*s", cell, d.Date.Format("Mon 01-02"))
	}
	fmt.Fprintln(&b)
	for _, row := range week.Rows {
		line := []rune(strings.Repeat(" ", cell*7))
		for _, p := range row {
			label := p.Event.Name
			if p.ContinuesBefore {
				label = "<" + label
			}
			if p.ContinuesAfter {
				label += ">"
			}
			width := p.Width()*cell - 1
			seg := []rune(fmt.Sprintf("[%-*s]", width-2, truncate(label, width-2)))
			copy(line[p.FirstCol*cell:], seg)
		}
		fmt.Fprintln(&b, strings.TrimRight(string(line), " "))
	}
	if len(week.Rows) == 0 {
		fmt.Fprintln(&b, "(no events)")
	}
	if len(week.Overflow) > 0 {
		names := make([]string, 0, len(week.Overflow))
		for _, p := range week.Overflow {
			names = append(names, p.Event.Name)
		}
		fmt.Fprintf(&b, "+%d more: %s\n", len(names), strings.Join(names, ", "))
	}
	_, err := w.Write(b.Bytes())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "~"
}

func (a *app) exportCmd() *cobra.Command {
	var (
		out   string
		weeks int
	)
	cmd := &cobra.Command{
		Use:   "export <server>",
		Short: "Write the server's upcoming weeks as ICS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			events, err := a.store.ListEventsForServer(srv.ID)
			if err != nil {
				return err
			}
			if weeks <= 0 {
				weeks = a.conf.ExportWeeks
			}
			occs, err := schedule.Upcoming(srv, events, weeks, schedule.Options{Now: a.now(), Location: a.location()})
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := ics.Export(&buf, srv, occs, a.now()); err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = a.out.Write(buf.Bytes())
				return err
			}
			return os.WriteFile(out, buf.Bytes(), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&weeks, "weeks", 0, "Weeks to export (defaults to config export_weeks)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var source, server string
	cmd := &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import events from an ICS file, replacing the previous import of the same source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = "file"
			}
			serverID := ""
			if server != "" {
				srv, err := a.resolveServer(server)
				if err != nil {
					return err
				}
				serverID = srv.ID
			}
			events, err := ics.Parse(source, body)
			if err != nil {
				return err
			}
			res, err := jobs.NewImporter(a.store, nil, nil, nil).Apply(source, serverID, events)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "%s: %d created, %d updated, %d removed, %d skipped\n", res.Source, res.Created, res.Updated, res.Removed, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source name owning the imported rows (default \"file\")")
	cmd.Flags().StringVar(&server, "server", "", "Bind imported events to this server (id or name)")
	return cmd
}

func dateOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return model.FormatDate(t)
}
