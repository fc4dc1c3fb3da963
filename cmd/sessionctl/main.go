// Command sessionctl is a terminal client for the gateway that keeps its
// session between runs.
//
//	sessionctl login <email>      password from $FINBOARD_PASSWORD or the terminal
//	sessionctl status
//	sessionctl me
//	sessionctl refresh
//	sessionctl logout
//	sessionctl open <path>        apply the view policy to a path
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/finboard/finboard/backend/gateway/internal/client"
	"github.com/finboard/finboard/backend/gateway/internal/common"
	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/finboard/finboard/backend/gateway/internal/session"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sessionctl:", err)
		os.Exit(1)
	}
}

// withTimeout bounds every gateway call made through hc by GATEWAY_TIMEOUT.
func withTimeout(cfg *config.ClientConfig, hc *http.Client) *http.Client {
	hc.Timeout = cfg.Timeout
	return hc
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sessionctl login|status|me|refresh|logout|open [arg]")
	}
	cfg := config.LoadClientConfig()

	var store session.Store = session.NewFileStore(cfg.SessionFile)
	if cfg.SessionRedis != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.SessionRedis})
		defer rdb.Close()
		store = session.NewRedisStore(rdb, "")
	}

	nav := &printNavigator{}
	api := client.New(cfg.GatewayURL, withTimeout(cfg, &http.Client{}))
	guard := session.NewGuard(api, store, session.WithNavigator(nav))

	switch args[0] {
	case "login":
		if len(args) < 2 {
			return errors.New("usage: sessionctl login <email>")
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		if err := guard.Login(ctx, args[1], password); err != nil {
			if errors.Is(err, common.ErrInvalidCredentials) {
				return errors.New("invalid email or password")
			}
			return err
		}
		fmt.Println("logged in")
	case "status":
		fmt.Println(guard.State(ctx))
		if p := guard.Current(ctx); p != nil && p.ExpiresAt != nil {
			fmt.Println("access token expires", p.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		}
	case "me":
		authed := client.New(cfg.GatewayURL, withTimeout(cfg, guard.Client(nil)))
		id, err := authed.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s>\n", id.UserID, id.Email)
	case "refresh":
		if _, err := guard.Refresh(ctx); err != nil {
			return err
		}
		fmt.Println("refreshed")
	case "logout":
		if err := guard.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
	case "open":
		if len(args) < 2 {
			return errors.New("usage: sessionctl open <path>")
		}
		nav.current = args[1]
		d := guard.Navigate(ctx, args[1])
		if d.Allowed() {
			fmt.Printf("%s (%s): allowed\n", args[1], d.Class)
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func readPassword() (string, error) {
	if pw := os.Getenv("FINBOARD_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printNavigator reports redirects instead of rendering views.
type printNavigator struct{ current string }

func (n *printNavigator) Current() string { return n.current }

func (n *printNavigator) Redirect(path string) {
	if path == n.current {
		return
	}
	fmt.Printf("-> redirect to %s\n", path)
	n.current = path
}
