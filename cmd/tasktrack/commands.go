package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/distribution"
	"github.com/Barrelito/sam-a-sub000/internal/version"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/task"
)

const defaultServer = "http://localhost:9090"

// app carries the persistent flags shared by every subcommand.
type app struct {
	server    string
	token     string
	tokenFile string
	client    *Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:          "tasktrack",
		Short:        "tasktrack: VO and station task tracker client",
		SilenceUsage: true,
		Version:      version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			token := a.token
			if token == "" {
				token = readToken(a.tokenPath())
			}
			a.client = &Client{
				BaseURL:    strings.TrimRight(a.server, "/"),
				Token:      token,
				HTTPClient: &http.Client{Timeout: 15 * time.Second},
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.server, "server", envOr("TASKTRACK_SERVER", defaultServer), "server URL (env: TASKTRACK_SERVER)")
	cmd.PersistentFlags().StringVar(&a.token, "token", os.Getenv("TASKTRACK_TOKEN"), "JWT auth token (env: TASKTRACK_TOKEN)")
	cmd.PersistentFlags().StringVar(&a.tokenFile, "token-file", "", "file the login token is stored in (default: user config dir)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newHashPasswordCmd())
	cmd.AddCommand(a.newStatusCmd())
	cmd.AddCommand(a.newLoginCmd())
	cmd.AddCommand(a.newTasksCmd())
	cmd.AddCommand(a.newTaskCmd())
	cmd.AddCommand(a.newDistributeCmd())
	cmd.AddCommand(a.newDistributionCmd())
	cmd.AddCommand(a.newReviewQueueCmd())
	cmd.AddCommand(a.newOverviewCmd())
	cmd.AddCommand(a.newStationsCmd())
	cmd.AddCommand(a.newActivityCmd())

	cmd.SetVersionTemplate("{{.Version}}\n")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (a *app) tokenPath() string {
	if a.tokenFile != "" {
		return a.tokenFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tasktrack", "token")
}

func readToken(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// --- version / hash-password ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "tasktrack "+version.String())
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for the password_hash field of a config user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := bcrypt.GenerateFromPassword([]byte(args[0]), cost)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(h))
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

// --- status / login ---

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result map[string]string
			if err := a.client.get(cmd.Context(), "/api/status", &result); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "status:  %s\n", result["status"])
			_, _ = fmt.Fprintf(out, "version: %s\n", result["version"])
			if up := result["uptime"]; up != "" {
				_, _ = fmt.Fprintf(out, "uptime:  %s\n", up)
			}
			return nil
		},
	}
}

func (a *app) newLoginCmd() *cobra.Command {
	var username, password string
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("TASKTRACK_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("--username and --password (or TASKTRACK_PASSWORD) are required")
			}
			var resp struct {
				Token     string        `json:"token"`
				ExpiresAt time.Time     `json:"expires_at"`
				Principal org.Principal `json:"principal"`
			}
			body := map[string]string{"username": username, "password": password}
			if err := a.client.post(cmd.Context(), "/api/auth/login", body, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printOnly {
				_, _ = fmt.Fprintln(out, resp.Token)
				return nil
			}
			path := a.tokenPath()
			if path == "" {
				return errors.New("no token file location; use --token-file or --print")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(resp.Token+"\n"), 0o600); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Logged in as %s (%s), token valid until %s\n",
				resp.Principal.ID, resp.Principal.Role, resp.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (env: TASKTRACK_PASSWORD)")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the token instead of storing it")
	return cmd
}

// --- tasks ---

func (a *app) newTasksCmd() *cobra.Command {
	var f task.Filter
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List visible tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			setInt(q, "year", f.Year)
			setInt(q, "month", f.Month)
			setStr(q, "status", string(f.Status))
			setStr(q, "category", f.Category)
			setStr(q, "owner_type", string(f.OwnerType))
			setStr(q, "station_id", f.StationID)
			setStr(q, "vo_id", f.VOID)

			var tasks []*task.Task
			if err := a.client.get(cmd.Context(), withQuery("/api/tasks", q), &tasks); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Year, "year", 0, "Year")
	cmd.Flags().IntVar(&f.Month, "month", 0, "Month (1-12)")
	cmd.Flags().StringVar((*string)(&f.Status), "status", "", "Status")
	cmd.Flags().StringVar(&f.Category, "category", "", "Category")
	cmd.Flags().StringVar((*string)(&f.OwnerType), "owner-type", "", "Owner type (vo, station, personal)")
	cmd.Flags().StringVar(&f.StationID, "station", "", "Station ID")
	cmd.Flags().StringVar(&f.VOID, "vo", "", "VO ID")
	return cmd
}

func setInt(q url.Values, key string, v int) {
	if v != 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

func setStr(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func printTasks(w io.Writer, tasks []*task.Task) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(w, "no tasks")
		return
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tOWNER\tSTATION\tSTATUS\tMONTHS\tREVIEWED")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			t.ID, t.Title, t.OwnerType, dash(t.StationID), t.Status, months(t), t.VOReviewed)
	}
	_ = tw.Flush()
}

func months(t *task.Task) string {
	switch {
	case t.RecurringMonthly:
		return "monthly"
	case t.StartMonth == nil:
		return "-"
	case t.EndMonth == nil || *t.EndMonth == *t.StartMonth:
		return strconv.Itoa(*t.StartMonth)
	}
	return fmt.Sprintf("%d-%d", *t.StartMonth, *t.EndMonth)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// --- task subcommands ---

func (a *app) newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage a single task",
	}
	cmd.AddCommand(a.newTaskGetCmd())
	cmd.AddCommand(a.newTaskCreateCmd())
	cmd.AddCommand(a.newTaskStatusCmd())
	cmd.AddCommand(a.newTaskReviewCmd())
	cmd.AddCommand(a.newTaskDeleteCmd())
	return cmd
}

func (a *app) newTaskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t task.Task
			if err := a.client.get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), &t); err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), &t)
			return nil
		},
	}
}

func printTask(w io.Writer, t *task.Task) {
	tw := newTable(w)
	row := func(k, v string) {
		if v != "" {
			_, _ = fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("id", t.ID)
	row("title", t.Title)
	row("description", t.Description)
	row("category", t.Category)
	row("owner", string(t.OwnerType))
	row("vo", t.VOID)
	row("station", t.StationID)
	row("parent", t.ParentTaskID)
	row("year", strconv.Itoa(t.Year))
	row("months", months(t))
	row("status", string(t.Status))
	row("assigned to", t.AssignedTo)
	row("notes", t.Notes)
	if t.CompletedAt != nil {
		row("completed", fmt.Sprintf("%s by %s", t.CompletedAt.Format(time.DateOnly), t.CompletedBy))
	}
	if t.VOReviewed {
		row("reviewed by", t.VOReviewedBy)
	}
	row("review comment", t.VOComment)
	_ = tw.Flush()
}

func (a *app) newTaskCreateCmd() *cobra.Command {
	var (
		title, description, category string
		ownerType, voID, stationID   string
		assignedTo                   string
		year, start, end, deadline   int
		recurring                    bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a VO, station or personal task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{
				"title":                title,
				"description":          description,
				"category":             category,
				"owner_type":           ownerType,
				"vo_id":                voID,
				"station_id":           stationID,
				"assigned_to":          assignedTo,
				"year":                 year,
				"deadline_day":         deadline,
				"is_recurring_monthly": recurring,
			}
			if start != 0 {
				body["start_month"] = start
			}
			if end != 0 {
				body["end_month"] = end
			}
			var t task.Task
			if err := a.client.post(cmd.Context(), "/api/tasks", body, &t); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&category, "category", "", "Category")
	cmd.Flags().StringVar(&ownerType, "owner-type", string(task.OwnerPersonal), "Owner type (vo, station, personal)")
	cmd.Flags().StringVar(&voID, "vo", "", "VO ID for VO tasks")
	cmd.Flags().StringVar(&stationID, "station", "", "Station ID for station tasks")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "Assignee")
	cmd.Flags().IntVar(&year, "year", 0, "Year (default: current)")
	cmd.Flags().IntVar(&start, "start-month", 0, "First month (1-12)")
	cmd.Flags().IntVar(&end, "end-month", 0, "Last month (1-12)")
	cmd.Flags().IntVar(&deadline, "deadline-day", 0, "Day of month the task is due")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "Recur every month")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (a *app) newTaskStatusCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set task status (not_started, in_progress, done, reported)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"status": args[1]}
			if cmd.Flags().Changed("notes") {
				body["notes"] = notes
			}
			var t task.Task
			if err := a.client.patch(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), body, &t); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is %s\n", t.ID, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Replace the task notes")
	return cmd
}

func (a *app) newTaskReviewCmd() *cobra.Command {
	var comment string
	var unset bool
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Mark a task as reviewed by the VO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"vo_reviewed": !unset}
			if cmd.Flags().Changed("comment") {
				body["vo_comment"] = comment
			}
			var t task.Task
			if err := a.client.patch(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), body, &t); err != nil {
				return err
			}
			if !t.VOReviewed && !unset {
				return fmt.Errorf("task %s was not marked reviewed; your role cannot review it", t.ID)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s reviewed: %v\n", t.ID, t.VOReviewed)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Review comment")
	cmd.Flags().BoolVar(&unset, "unset", false, "Clear the review flag")
	return cmd
}

func (a *app) newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its distributed copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.delete(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}

// --- distribution ---

func (a *app) newDistributeCmd() *cobra.Command {
	var stations []string
	cmd := &cobra.Command{
		Use:   "distribute <task-id>",
		Short: "Distribute a VO task to stations",
		Long:  "Distribute a VO task to stations. Each --station is a station ID, optionally followed by :assignee.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(stations)
			if err != nil {
				return err
			}
			var res distribution.Result
			path := "/api/tasks/" + url.PathEscape(args[0]) + "/distribute"
			if err := a.client.post(cmd.Context(), path, map[string]any{"targets": targets}, &res); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&stations, "station", nil, "Target station as ID or ID:assignee (repeatable)")
	_ = cmd.MarkFlagRequired("station")
	return cmd
}

func parseTargets(specs []string) ([]distribution.Target, error) {
	targets := make([]distribution.Target, 0, len(specs))
	for _, s := range specs {
		id, assignee, _ := strings.Cut(s, ":")
		if id == "" {
			return nil, fmt.Errorf("invalid station %q", s)
		}
		targets = append(targets, distribution.Target{StationID: id, AssignedTo: assignee})
	}
	return targets, nil
}

func (a *app) newDistributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution <task-id>",
		Short: "Show distribution status of a VO task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st distribution.Status
			if err := a.client.get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0])+"/distribution", &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if st.Parent != nil {
				_, _ = fmt.Fprintf(out, "%s\n", st.Parent.Title)
			}
			_, _ = fmt.Fprintf(out, "progress: %s\n\n", formatStats(st.Stats))
			tw := newTable(out)
			_, _ = fmt.Fprintln(tw, "STATION\tSTATUS\tASSIGNED\tREVIEWED")
			for _, c := range st.Children {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", c.StationID, c.Status, dash(c.AssignedTo), c.VOReviewed)
			}
			for _, s := range st.NotDistributed {
				_, _ = fmt.Fprintf(tw, "%s (%s)\tnot distributed\t-\t-\n", s.Name, s.ID)
			}
			return tw.Flush()
		},
	}
}

func formatStats(s rollup.Stats) string {
	return fmt.Sprintf("%d/%d done (%d%%), %d in progress, %d not started",
		s.Completed, s.Total, s.Percentage, s.InProgress, s.NotStarted)
}

// --- rollups ---

func (a *app) newReviewQueueCmd() *cobra.Command {
	var voID string
	cmd := &cobra.Command{
		Use:   "review-queue",
		Short: "List completed station tasks awaiting VO review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			setStr(q, "vo_id", voID)
			var tasks []*task.Task
			if err := a.client.get(cmd.Context(), withQuery("/api/review-queue", q), &tasks); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&voID, "vo", "", "VO ID (default: your own)")
	return cmd
}

func (a *app) newOverviewCmd() *cobra.Command {
	var year, month int
	var tertials bool
	cmd := &cobra.Command{
		Use:   "overview <vo-id>",
		Short: "Show per-station progress for a VO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setInt(q, "year", year)
			out := cmd.OutOrStdout()
			if tertials {
				var tt []rollup.TertialTotals
				if err := a.client.get(cmd.Context(), withQuery("/api/vos/"+url.PathEscape(args[0])+"/tertials", q), &tt); err != nil {
					return err
				}
				tw := newTable(out)
				_, _ = fmt.Fprintln(tw, "TERTIAL\tMONTHS\tPROGRESS")
				for _, t := range tt {
					_, _ = fmt.Fprintf(tw, "T%d\t%d-%d\t%s\n", t.Tertial, t.Months[0], t.Months[len(t.Months)-1], formatStats(t.Stats))
				}
				return tw.Flush()
			}

			setInt(q, "month", month)
			var ov rollup.Overview
			if err := a.client.get(cmd.Context(), withQuery("/api/vos/"+url.PathEscape(args[0])+"/overview", q), &ov); err != nil {
				return err
			}
			if ov.VO != nil {
				_, _ = fmt.Fprintf(out, "%s %d", ov.VO.Name, ov.Year)
				if ov.Month != 0 {
					_, _ = fmt.Fprintf(out, "-%02d", ov.Month)
				}
				_, _ = fmt.Fprintln(out)
			}
			tw := newTable(out)
			_, _ = fmt.Fprintln(tw, "STATION\tPROGRESS")
			for _, s := range ov.Stations {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", s.Station.Name, formatStats(s.Stats))
			}
			_, _ = fmt.Fprintf(tw, "TOTAL\t%s\n", formatStats(ov.Totals))
			if err := tw.Flush(); err != nil {
				return err
			}
			if ov.NotDistributed > 0 {
				_, _ = fmt.Fprintf(out, "%d VO tasks not yet distributed\n", ov.NotDistributed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month (default: whole year)")
	cmd.Flags().BoolVar(&tertials, "tertials", false, "Show tertial totals instead")
	return cmd
}

// --- organization / activity ---

func (a *app) newStationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stations [vo-id]",
		Short: "List VOs, or the stations of a VO",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := newTable(cmd.OutOrStdout())
			if len(args) == 0 {
				var vos []*org.VO
				if err := a.client.get(cmd.Context(), "/api/vos", &vos); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(tw, "ID\tVO")
				for _, vo := range vos {
					_, _ = fmt.Fprintf(tw, "%s\t%s\n", vo.ID, vo.Name)
				}
				return tw.Flush()
			}
			var stations []*org.Station
			if err := a.client.get(cmd.Context(), "/api/vos/"+url.PathEscape(args[0])+"/stations", &stations); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(tw, "ID\tSTATION")
			for _, s := range stations {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) newActivityCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent task activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			setInt(q, "limit", limit)
			var events []*activity.Event
			if err := a.client.get(cmd.Context(), withQuery("/api/activity", q), &events); err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			for _, ev := range events {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					ev.Timestamp.Local().Format(time.DateTime), ev.Actor, ev.Type, ev.Summary)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of events (default 50)")
	return cmd
}
