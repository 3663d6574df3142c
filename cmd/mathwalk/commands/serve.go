package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk/internal/config"
	"github.com/livetemplate/mathwalk/internal/server"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		port  int
		host  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve [lessons]",
		Short: "Serve a tutorial in the browser",
		Example: `  mathwalk serve                    # Serve lessons in the current directory
  mathwalk serve ./nn-math          # Serve a lesson directory
  mathwalk serve lessons.md -p 3000 # Serve one lesson file on port 3000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, flags, args)
			if err != nil {
				return err
			}
			defer p.Close()

			// CLI flags override config
			if cmd.Flags().Changed("port") {
				p.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				p.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("watch") {
				p.cfg.Features.HotReload = watch
			}

			return serve(cmd.Context(), cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default 8080)")
	cmd.Flags().StringVar(&host, "host", "", "host to bind (default localhost)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "reload the page when lesson files change")
	return cmd
}

func serve(ctx context.Context, out io.Writer, p *project) error {
	srv, err := server.New(p.cfg, p.lessons, p.logger.Logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	tut := srv.Tutorial()
	fmt.Fprintf(out, "📚 mathwalk\n\n")
	fmt.Fprintf(out, "Serving: %s (%d steps)\n", tut.SourceFile, len(tut.Steps))

	if p.cfg.Features.HotReload {
		if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Fprintf(out, "👀 Watch mode enabled - edit lessons and the page reloads\n")
	}

	addr := net.JoinHostPort(p.cfg.Server.Host, strconv.Itoa(p.cfg.Server.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(out, "\n🌐 Server running at http://%s\n", addr)
	if config.IsExecAllowed() {
		fmt.Fprintf(out, "⚠️  Exec runtime enabled (--allow-exec)\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	p.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
