package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/mhai/internal/client"
	"github.com/zulandar/mhai/internal/config"
	"github.com/zulandar/mhai/internal/conversation"
	"golang.org/x/term"
)

// idleCheckInterval paces waiting for a pending reply in scripted sessions.
const idleCheckInterval = 50 * time.Millisecond

// clientFlags are shared by the commands that talk to a backend.
type clientFlags struct {
	configPath string
	username   string
	baseURL    string
}

func addClientFlags(cmd *cobra.Command, f *clientFlags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to mhai config file")
	cmd.Flags().StringVarP(&f.username, "user", "u", "", "username to sign in as (default: client.username, then $USER)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "backend URL (overrides client.base_url)")
}

func newChatCmd() *cobra.Command {
	return newSurfaceCmd(conversation.Chat,
		"Talk with the companion",
		"Opens an interactive chat. Replies arrive with each message; the\n"+
			"conversation is also polled so messages from other devices show up.")
}

func newDiaryCmd() *cobra.Command {
	return newSurfaceCmd(conversation.Diary,
		"Write diary entries and read the companion's reflections",
		"Opens the diary. Each entry is answered in the background; the\n"+
			"reply appears once it is ready. Only one entry can await a reply at a time.")
}

func newSurfaceCmd(surface conversation.Surface, short, long string) *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   surface.Name,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurface(cmd, surface, flags)
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

// signIn loads config, resolves the username and opens a session.
func signIn(ctx context.Context, f clientFlags) (*config.Config, *client.Client, string, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, nil, "", err
	}
	baseURL := cfg.Client.BaseURL
	if f.baseURL != "" {
		baseURL = f.baseURL
	}
	username := firstNonEmpty(f.username, cfg.Client.Username, os.Getenv("USER"))
	if username == "" {
		return nil, nil, "", fmt.Errorf("no username: pass --user or set client.username")
	}

	c, err := client.New(client.Opts{BaseURL: baseURL, Timeout: cfg.Client.RequestTimeout()})
	if err != nil {
		return nil, nil, "", err
	}
	if _, err := c.Login(ctx, username); err != nil {
		return nil, nil, "", fmt.Errorf("sign in as %q at %s: %w", username, baseURL, err)
	}
	return cfg, c, username, nil
}

func surfaceConfig(cfg *config.Config, s conversation.Surface) config.SurfaceConfig {
	if s.Name == conversation.Diary.Name {
		return cfg.Client.Diary
	}
	return cfg.Client.Chat
}

func runSurface(cmd *cobra.Command, surface conversation.Surface, flags clientFlags) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg, c, username, err := signIn(ctx, flags)
	if err != nil {
		return err
	}
	sc := surfaceConfig(cfg, surface)
	mode, err := conversation.ParsePollMode(sc.PollMode)
	if err != nil {
		return err
	}
	v, err := conversation.NewView(conversation.ViewOpts{
		Transport:      c.Surface(surface),
		Surface:        surface,
		PollInterval:   sc.PollInterval(),
		PollMode:       mode,
		PendingTimeout: cfg.Client.PendingTimeout(),
	})
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	out := &syncWriter{w: cmd.OutOrStdout()}
	p := newPrinter(out, interactive && isTerminal(cmd.OutOrStdout()))
	p.banner(surface, username)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for e := range v.Events() {
			p.event(e)
		}
	}()

	// A failed initial load is shown inline; polling keeps trying.
	_ = v.Mount(ctx)
	runREPL(ctx, v, in, p, interactive)
	v.Unmount()
	<-rendered
	return nil
}

// runREPL reads lines and submits them. Scripted input (not a terminal)
// waits for each reply before sending the next line.
func runREPL(ctx context.Context, v *conversation.View, in io.Reader, p *printer, interactive bool) {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		if interactive {
			p.inputPrompt()
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/quit", "/exit", "exit":
			return
		case "/refresh":
			if err := v.Refresh(ctx); err != nil && !errors.Is(err, conversation.ErrPollInFlight) {
				p.errorLine(err)
			}
			continue
		case "":
			if interactive {
				p.errorLine(conversation.ErrEmptyInput)
			}
			continue
		}

		if !interactive {
			waitIdle(ctx, v)
		}
		if _, err := v.Submit(ctx, line); err != nil && !errors.Is(err, conversation.ErrSubmitFailed) {
			// Submit failures arrive as events; rejections are reported here.
			p.errorLine(err)
		}
	}
	if !interactive {
		waitIdle(ctx, v)
	}
}

// waitIdle blocks until the view accepts a new message. The pending-reply
// timeout bounds the wait.
func waitIdle(ctx context.Context, v *conversation.View) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for !v.Snapshot().CanSubmit() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
