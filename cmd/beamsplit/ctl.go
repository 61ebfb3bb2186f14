package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/ui"
)

const defaultStatusAddr = "127.0.0.1:7780"

var ctlClient = &http.Client{Timeout: 10 * time.Second}

func statusURL(addr, path string) string {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + path
}

func newStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of a running beamsplit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := ctlClient.Get(statusURL(addr, "/status"))
			if err != nil {
				return &exitError{err: err, code: 1}
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return &exitError{err: fmt.Errorf("status: %s", resp.Status), code: 1}
			}
			var st engine.Status
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return &exitError{err: fmt.Errorf("decode status: %w", err), code: 1}
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultStatusAddr, "status server address")
	return cmd
}

func printStatus(w io.Writer, st engine.Status) {
	fmt.Fprintln(w, ui.ProgressLine(st))
	for _, a := range st.Active {
		fmt.Fprintf(w, "  running #%d  %s  pid %d  since %s\n",
			a.ChunkID, a.Source, a.PID, a.Started.Format(time.TimeOnly))
	}
	for _, c := range st.Failed {
		fmt.Fprintf(w, "  failed  #%d  %s  %s\n", c.ID, c.SourcePath, c.LastErrorMessage)
	}
}

func newRetryCmd() *cobra.Command {
	var (
		addr string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "retry [chunk-id]",
		Short: "Requeue a failed chunk, or every failed chunk with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return usageError(fmt.Errorf("give either a chunk id or --all"))
			}
			path := "/retry-failed"
			if !all {
				path = "/chunks/" + args[0] + "/retry"
			}
			return postAction(cmd.OutOrStdout(), addr, path)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultStatusAddr, "status server address")
	cmd.Flags().BoolVar(&all, "all", false, "retry every failed chunk")
	return cmd
}

func newSkipCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "skip <chunk-id>",
		Short: "Give up on a failed chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAction(cmd.OutOrStdout(), addr, "/chunks/"+args[0]+"/skip")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultStatusAddr, "status server address")
	return cmd
}

func postAction(w io.Writer, addr, path string) error {
	resp, err := ctlClient.Post(statusURL(addr, path), "application/json", nil)
	if err != nil {
		return &exitError{err: err, code: 1}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // body is informational
	if resp.StatusCode != http.StatusOK {
		return &exitError{err: fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body))), code: 1}
	}
	fmt.Fprint(w, string(body))
	return nil
}
