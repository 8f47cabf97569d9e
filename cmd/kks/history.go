package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kokos-tools/kks/internal/remote"
)

// Show recent gen/test batches
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent gen and test batches of the current task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all")
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if s.store == nil {
				return errors.New("history store is disabled (store.path is empty)")
			}
			task := s.task.Name()
			if all {
				task = ""
			}
			runs, err := s.store.ListBatches(cmd.Context(), task, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTASK\tMODE\tTARGET\tPASSED\tTOOK\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					humanize.Time(r.StartedAt), r.Task, r.Mode, r.Target, r.Passed, r.Ran,
					r.Duration.Round(time.Millisecond), strings.Join(r.Failed, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "number of batches to show")
	cmd.Flags().Bool("all", false, "show batches of every task")
	return cmd
}

// Download tests of the current task from the course host
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the tests of the current task over SFTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			trust, _ := cmd.Flags().GetBool("trust-new-host")
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			rc := s.cfg.Remote
			if s.task.Root == "" {
				return errors.New("not inside a task directory of a workspace")
			}
			if rc.Host == "" || rc.Root == "" {
				return errors.New("remote.host and remote.root must be set in the user config")
			}

			c := &remote.Client{
				Addr:     s.cfg.RemoteAddr(),
				User:     rc.User,
				Password: rc.Password,
				Timeout:  time.Duration(rc.TimeoutSeconds) * time.Second,
			}
			if rc.KeyPath != "" {
				signer, err := remote.LoadPrivateKeySigner(rc.KeyPath)
				if err != nil {
					return err
				}
				c.Signer = signer
			}
			kh := rc.KnownHosts
			if kh == "" {
				kh = remote.DefaultKnownHosts()
			}
			if trust {
				c.KnownHosts, err = remote.TrustOnFirstUse(kh)
			} else {
				c.KnownHosts, err = remote.LoadKnownHostsCallback(kh)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			sess, err := remote.Open(ctx, c)
			if err != nil {
				return err
			}
			defer sess.Close()

			src := remote.TestsPath(rc.Root, s.task.Contest, s.task.Number)
			dst := s.layout().Dir
			rep, err := remote.FetchTests(ctx, sess.SFTP, src, dst, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d files (%s) into %s", len(rep.Downloaded), humanize.Bytes(uint64(rep.Bytes)), dst)
			if n := len(rep.Skipped); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", kept %d existing (use --force to overwrite)", n)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "overwrite existing local files")
	cmd.Flags().Bool("trust-new-host", false, "accept and record the host key of an unknown host")
	return cmd
}
