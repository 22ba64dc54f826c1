// Command supportctl is a terminal client for the support inbox. Customers
// chat with the employee pool; staff browse the conversation directory and
// reply to customers.
//
//	supportctl -email alice@autocare360.dev -password ...
//
// Endpoints come from the same .env / environment as the server
// (API_BASE_URL, PUSH_URL).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/messaging"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/autocare360/autocare-backend/pkg/logger"
)

func main() {
	email := flag.String("email", os.Getenv("SUPPORT_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("SUPPORT_PASSWORD"), "account password")
	token := flag.String("token", os.Getenv("SUPPORT_TOKEN"), "existing session token (skips login)")
	flag.Parse()

	config.LoadConfig()
	logger.Init(config.AppConfig.Env)
	cfg := messaging.ClientConfigFrom(config.AppConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sess messaging.Session
		err  error
	)
	if *token != "" {
		sess, err = messaging.ResolveSession(ctx, cfg.APIBaseURL, *token, cfg.RequestTimeout)
	} else {
		sess, err = messaging.Login(ctx, cfg.APIBaseURL, *email, *password, cfg.RequestTimeout)
	}
	if errors.StatusCode(err) == http.StatusUnauthorized {
		logger.Fatal().Msg("❌ Invalid credentials or expired token")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to sign in")
	}

	client := messaging.NewClient(cfg, sess, logger.Log)
	defer client.Close()
	client.Push.OnStatus(func(connected bool) {
		if connected {
			fmt.Println("* live")
		} else {
			fmt.Println("* offline, reconnecting")
		}
	})

	app := &app{client: client, out: os.Stdout}
	if sess.IsStaff() {
		err = app.runStaff(ctx)
	} else {
		err = app.runCustomer(ctx)
	}
	if err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("supportctl stopped")
	}
}

type app struct {
	client *messaging.Client
	out    *os.File
	thread *messaging.Thread
	stopTh func()

	mu    sync.Mutex
	shown map[uint64]bool
}

func (a *app) runCustomer(ctx context.Context) error {
	th, err := a.client.SupportThread(ctx)
	if err != nil {
		return err
	}
	defer th.Unmount()
	a.watch(th)
	defer a.unwatch()

	fmt.Fprintln(a.out, "Type a message and press enter. Ctrl-D quits.")
	composer := a.client.Composer(th)
	return a.readLines(ctx, func(line string) {
		composer.SetDraft(line)
		if _, err := composer.Submit(ctx); err != nil {
			fmt.Fprintf(a.out, "! not sent: %v\n", err)
		}
	})
}

func (a *app) runStaff(ctx context.Context) error {
	dir := a.client.Directory()
	if err := dir.Mount(ctx); err != nil {
		return err
	}
	defer dir.Unmount()

	fmt.Fprintln(a.out, "Commands: /list, /search <name>, /open <customerId>, /retry. Other lines reply to the open thread.")
	a.printList(dir.List())

	var composer *messaging.Composer
	return a.readLines(ctx, func(line string) {
		switch {
		case line == "/list":
			a.printList(dir.List())
		case strings.HasPrefix(line, "/search "):
			a.printList(dir.Search(strings.TrimPrefix(line, "/search ")))
		case strings.HasPrefix(line, "/open "):
			id, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "/open ")), 10, 64)
			if err != nil {
				fmt.Fprintln(a.out, "! usage: /open <customerId>")
				return
			}
			a.unwatch()
			th, err := dir.Select(ctx, uint(id))
			if th == nil {
				fmt.Fprintf(a.out, "! %v\n", err)
				return
			}
			a.watch(th)
			composer = a.client.Composer(th)
			if err != nil {
				fmt.Fprintf(a.out, "! %v (try /retry)\n", err)
			}
		case line == "/retry":
			if a.thread != nil {
				if err := a.thread.Retry(ctx); err != nil {
					fmt.Fprintf(a.out, "! %v\n", err)
				}
			}
		default:
			if composer == nil {
				fmt.Fprintln(a.out, "! open a conversation first")
				return
			}
			composer.SetDraft(line)
			if _, err := composer.Submit(ctx); err != nil {
				fmt.Fprintf(a.out, "! not sent: %v\n", err)
			}
		}
	})
}

// watch prints th's messages as they appear.
func (a *app) watch(th *messaging.Thread) {
	a.thread = th
	a.mu.Lock()
	a.shown = make(map[uint64]bool)
	a.mu.Unlock()
	a.print(th.Snapshot())
	a.stopTh = th.OnChange(a.print)
}

func (a *app) unwatch() {
	if a.stopTh != nil {
		a.stopTh()
		a.stopTh = nil
	}
}

func (a *app) print(v messaging.ThreadView) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.State == messaging.StateError {
		fmt.Fprintf(a.out, "! %v\n", v.Err)
		return
	}
	for _, m := range v.Messages {
		if a.shown[m.ID] {
			continue
		}
		a.shown[m.ID] = true
		who := m.SenderName
		if m.SenderID == a.client.Session.UserID {
			who = "you"
		}
		fmt.Fprintf(a.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Body)
	}
}

func (a *app) printList(list []models.ConversationSummary) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "(no conversations)")
		return
	}
	for _, c := range list {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Fprintf(a.out, "%4d  %-24s %-14s %s%s\n", c.CustomerID, c.Name, c.Time, c.LastMessage, unread)
	}
}

func (a *app) readLines(ctx context.Context, handle func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			if line = strings.TrimSpace(line); line != "" {
				handle(line)
			}
		}
	}
}
