// Package server is a reference backend for the chat and diary surfaces. It
// serves the REST API the client expects, answers chat messages inline and
// diary entries asynchronously, and sweeps messages that never got an answer.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/mhai/internal/alert"
	"github.com/zulandar/mhai/internal/config"
	"gorm.io/gorm"
)

// DefaultSessionTTL is how long a login session lasts.
const DefaultSessionTTL = 14 * 24 * time.Hour

// Opts holds parameters for creating a Server.
type Opts struct {
	DB         *gorm.DB            // required
	Answer     config.AnswerConfig // workers, delay, stale sweep
	SessionTTL time.Duration       // default: DefaultSessionTTL
	Responder  Responder           // default: EchoResponder with Answer.DelayMs
	Notifier   alert.Notifier      // default: alert.Log
	Clock      func() time.Time    // default: time.Now
}

// Server holds the router and the background answer machinery.
type Server struct {
	db         *gorm.DB
	responder  Responder
	notifier   alert.Notifier
	sessionTTL time.Duration
	staleAfter time.Duration
	workers    int
	schedule   cron.Schedule
	now        func() time.Time

	router *gin.Engine
	jobs   chan uint
	wg     sync.WaitGroup
}

// New creates a Server. Background work starts with Run.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Answer.Workers <= 0 {
		opts.Answer.Workers = 4
	}
	if opts.Answer.StaleAfterSec <= 0 {
		opts.Answer.StaleAfterSec = 300
	}
	if opts.Answer.SweepCron == "" {
		opts.Answer.SweepCron = "* * * * *"
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder{Delay: time.Duration(opts.Answer.DelayMs) * time.Millisecond}
	}
	if opts.Notifier == nil {
		opts.Notifier = alert.Log{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	sched, err := cronParser.Parse(opts.Answer.SweepCron)
	if err != nil {
		return nil, fmt.Errorf("server: sweep cron %q: %w", opts.Answer.SweepCron, err)
	}

	s := &Server{
		db:         opts.DB,
		responder:  opts.Responder,
		notifier:   opts.Notifier,
		sessionTTL: opts.SessionTTL,
		staleAfter: time.Duration(opts.Answer.StaleAfterSec) * time.Second,
		workers:    opts.Answer.Workers,
		schedule:   sched,
		now:        opts.Clock,
		jobs:       make(chan uint, opts.Answer.Workers*16),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the answer workers and the stale sweeper. It blocks until ctx
// is cancelled and the workers have exited.
func (s *Server) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(ctx)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweeper(ctx)
	}()
	<-ctx.Done()
	s.wg.Wait()
}

// StartOpts holds configuration for Start.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

// Start launches the backend HTTP server and its background workers. It
// blocks until ctx is cancelled, then shuts down gracefully. If the listener
// fails the workers are stopped before the error is returned.
func Start(ctx context.Context, opts StartOpts) error {
	s, err := New(opts.Opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Port <= 0 {
		opts.Port = 8000
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: s.Handler(),
	}

	bgDone := make(chan struct{})
	go func() {
		defer close(bgDone)
		s.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Backend listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cancel()
		<-bgDone
		return fmt.Errorf("server: %w", err)
	}
	<-bgDone
	return nil
}
