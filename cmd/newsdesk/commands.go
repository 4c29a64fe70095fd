package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/RobinCoderZhao/newsdesk/internal/api"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var noJobs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic ingest/publish jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				if err := a.cfg.ValidateServer(); err != nil {
					return err
				}
				return runServe(ctx, a, !noJobs)
			})
		},
	}

	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "rely on external cron calls instead of in-process jobs")
	return cmd
}

func runServe(ctx context.Context, a *app, jobs bool) error {
	sc := a.cfg.Server
	server := api.NewServer(a.store, a.scheduler, api.Options{
		CronSecret:        sc.CronSecret,
		JWTSecret:         sc.JWTSecret,
		AdminUser:         sc.AdminUser,
		AdminPasswordHash: sc.AdminPasswordHash,
		TokenTTL:          sc.TokenTTL,
		PublicURL:         sc.PublicURL,
		CORSOrigin:        sc.CORSOrigin,
	})

	srv := &http.Server{
		Addr:              sc.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	if jobs {
		sched := a.jobs()
		go func() {
			defer close(done)
			sched.Run(ctx)
		}()
	} else {
		close(done)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting newsdesk server", "addr", sc.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	<-done
	return nil
}

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one ingest batch, then publish everything due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				return a.jobs().RunOnce(ctx)
			})
		},
	}
}

func ingestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, rank and schedule one batch of articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				res, err := a.scheduler.FetchAndScheduleBatch(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("candidates: %d  scheduled: %d  failed: %d\n", res.TotalCandidates, res.Scheduled, res.Failed)
				return nil
			})
		},
	}
}

func publishCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish every article whose scheduled time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				res, err := a.scheduler.PublishDue(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("published: %d\n", res.Published)
				return nil
			})
		},
	}
}

func pendingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List articles waiting to be published",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				pending, err := a.scheduler.ListPending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("no pending articles")
					return nil
				}
				printPending(os.Stdout, pending)
				return nil
			})
		},
	}
}

func scheduleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <article-id> <RFC3339 time>",
		Short: "Schedule or reschedule an article for publication",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("parse publish time: %w", err)
			}
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				res := a.scheduler.ScheduleManually(ctx, args[0], at)
				if !res.Success {
					return errors.New(res.Message)
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
}

func tagsCmd(flags *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the distinct tags of stored articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				tags, err := a.store.ListDistinctTags(ctx, !all)
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Println(t)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include tags of unpublished articles")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for server.admin_password_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Println(string(hash))
			return nil
		},
	}
}
