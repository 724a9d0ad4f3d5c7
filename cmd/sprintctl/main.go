// Command sprintctl submits, follows and approves sprint report jobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const usage = `usage: sprintctl [--server URL] <command> [flags]

commands:
  submit   --sprint ID [--board ID] [--by NAME] [--watch]
  status   JOB_ID
  watch    JOB_ID
  approve  JOB_ID [--reject] [--by NAME] [--comment TEXT]
  download JOB_ID [--out DIR]
`

func main() {
	server := flag.String("server", envOr("SPRINTREPORT_URL", "http://localhost:8001"), "report service base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	c := newClient(*server, *timeout)
	ctx := context.Background()

	switch args[0] {
	case "submit":
		runSubmit(ctx, c, args[1:])
	case "status":
		view, err := c.status(ctx, jobArg(args[1:]))
		if err != nil {
			die("status: %v", err)
		}
		printJSON(view)
	case "watch":
		runWatch(c, jobArg(args[1:]))
	case "approve":
		runApprove(ctx, c, args[1:])
	case "download":
		runDownload(ctx, c, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runSubmit(ctx context.Context, c *client, args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	sprint := fs.String("sprint", "", "JIRA sprint id")
	board := fs.Int("board", 0, "JIRA board id (server default when 0)")
	by := fs.String("by", os.Getenv("USER"), "requester name")
	watch := fs.Bool("watch", false, "follow the job after submitting")
	_ = fs.Parse(args)
	if *sprint == "" {
		die("--sprint is required")
	}

	res, err := c.submit(ctx, *sprint, *board, *by)
	if err != nil {
		die("submit: %v", err)
	}
	if *watch {
		runWatch(c, res.JobID)
		return
	}
	printJSON(res)
}

func runApprove(ctx context.Context, c *client, args []string) {
	if len(args) == 0 {
		die("approve: job id is required")
	}
	jobID := args[0]
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	reject := fs.Bool("reject", false, "reject instead of approving")
	by := fs.String("by", os.Getenv("USER"), "approver name")
	comment := fs.String("comment", "", "decision comment")
	_ = fs.Parse(args[1:])

	view, err := c.approve(ctx, jobID, !*reject, *by, *comment)
	if err != nil {
		die("approve: %v", err)
	}
	printJSON(view)
}

func runDownload(ctx context.Context, c *client, args []string) {
	if len(args) == 0 {
		die("download: job id is required")
	}
	jobID := args[0]
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	out := fs.String("out", ".", "output directory")
	_ = fs.Parse(args[1:])

	data, filename, err := c.download(ctx, jobID)
	if err != nil {
		die("download: %v", err)
	}
	path := filepath.Join(*out, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		die("write %s: %v", path, err)
	}
	fmt.Println(path)
}

func runWatch(c *client, jobID string) {
	final, err := tea.NewProgram(newWatchModel(c, jobID, 2*time.Second)).Run()
	if err != nil {
		die("watch: %v", err)
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		os.Exit(1)
	}
}

func jobArg(args []string) string {
	if len(args) == 0 || args[0] == "" {
		die("job id is required")
	}
	return args[0]
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
