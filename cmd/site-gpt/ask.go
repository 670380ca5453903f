package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/mikeboe/site-gpt/pkg/config"
	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/server"
	"github.com/mikeboe/site-gpt/pkg/session"
)

// assistant is the part of server.Service the prompt loop drives.
type assistant interface {
	LoadSite(ctx context.Context, url string) (*session.Session, error)
	Ask(ctx context.Context, id uuid.UUID, question string) (*qa.Result, error)
	ResetHistory(id uuid.UUID) error
}

func runAsk(ctx context.Context, stdin io.Reader, out io.Writer) error {
	in := bufio.NewReader(stdin)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.APIKey() == "" {
		key, err := prompt(in, out, fmt.Sprintf("Enter your %s API key: ", cfg.Provider))
		if err != nil || key == "" {
			return fmt.Errorf("%w for provider %s", config.ErrMissingCredential, cfg.Provider)
		}
		cfg.SetAPIKey(key)
	}

	url := siteURL
	for {
		if url == "" {
			url, err = prompt(in, out, "Enter the sitemap URL of the website: ")
			if err != nil {
				return err
			}
		}
		if err := crawler.ValidateSitemapURL(url); err != nil {
			fmt.Fprintln(out, "Please write down a sitemap URL (for example https://example.com/sitemap.xml).")
			url = ""
			continue
		}
		break
	}

	svc, closeBackend, err := server.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	sess, err := load(ctx, svc, out, url)
	if err != nil {
		return err
	}

	if question != "" {
		res, err := svc.Ask(ctx, sess.ID, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Markdown())
		return nil
	}
	return repl(ctx, svc, sess, in, out)
}

func load(ctx context.Context, a assistant, out io.Writer, url string) (*session.Session, error) {
	fmt.Fprintf(out, "Indexing %s ...\n", url)
	sess, err := a.LoadSite(ctx, url)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, "Ready. Ask a question, :reset to forget earlier questions, :url <sitemap> to switch site, :quit to leave.")
	return sess, nil
}

// repl reads questions until EOF or :quit. Errors answering one question are
// printed and the loop continues.
func repl(ctx context.Context, a assistant, sess *session.Session, in *bufio.Reader, out io.Writer) error {
	for {
		line, err := prompt(in, out, "> ")
		if errors.Is(err, io.EOF) && line == "" {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		switch {
		case line == "":
			// an empty line is not a reset
		case line == ":quit" || line == ":exit":
			return nil
		case line == ":reset":
			if err := a.ResetHistory(sess.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
		case strings.HasPrefix(line, ":url "):
			next := strings.TrimSpace(strings.TrimPrefix(line, ":url "))
			s, err := load(ctx, a, out, next)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			sess = s
		default:
			res, err := a.Ask(ctx, sess.ID, line)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			fmt.Fprintln(out, res.Markdown())
			if res.Cached {
				fmt.Fprintf(out, "(answered from question %d)\n", res.MatchedIndex)
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	return strings.TrimSpace(line), err
}
