package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// TokenExplorerURL is the page where an operator can generate a fresh token.
const TokenExplorerURL = "https://developers.facebook.com/tools/explorer/"

// minTokenLength filters out obviously truncated pastes.
const minTokenLength = 50

// Extractor is the interactive fallback: it lets a human supply a replacement
// credential string. Implementations classify failure as *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context) (string, error)
}

// PromptExtractor opens the token generation page in the system browser and
// collects the pasted token on the terminal. The wait is bounded by the
// context deadline.
type PromptExtractor struct {
	log zerolog.Logger
	// openBrowser can be disabled for headless operation; the operator then
	// only sees the printed instructions.
	openBrowser bool
}

func NewPromptExtractor(log zerolog.Logger, openBrowser bool) *PromptExtractor {
	return &PromptExtractor{
		log:         log.With().Str("component", "extractor").Logger(),
		openBrowser: openBrowser,
	}
}

func (p *PromptExtractor) Extract(ctx context.Context) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", &ExtractionError{
			Reason: ExtractionSurfaceUnavailable,
			Err:    fmt.Errorf("stdin is not a terminal"),
		}
	}

	if p.openBrowser {
		if err := openURL(TokenExplorerURL); err != nil {
			p.log.Warn().Err(err).Msg("could not open browser, paste the token manually")
		}
	}

	p.log.Info().
		Str("url", TokenExplorerURL).
		Msg("generate a fresh access token (pages_manage_posts, pages_read_engagement) and paste it below")

	type promptResult struct {
		value string
		err   error
	}
	resultCh := make(chan promptResult, 1)

	go func() {
		prompt := promptui.Prompt{
			Label: "Access token",
			Validate: func(input string) error {
				if len(strings.TrimSpace(input)) < minTokenLength {
					return fmt.Errorf("token looks too short")
				}
				return nil
			},
		}
		value, err := prompt.Run()
		resultCh <- promptResult{value: strings.TrimSpace(value), err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ExtractionError{Reason: ExtractionTimeout, Err: ctx.Err()}
		}
		return "", &ExtractionError{Reason: ExtractionCancelled, Err: ctx.Err()}
	case res := <-resultCh:
		if res.err != nil {
			if errors.Is(res.err, promptui.ErrInterrupt) || errors.Is(res.err, promptui.ErrEOF) {
				return "", &ExtractionError{Reason: ExtractionCancelled, Err: res.err}
			}
			return "", &ExtractionError{Reason: ExtractionSurfaceUnavailable, Err: res.err}
		}
		return res.value, nil
	}
}

// openURL launches the default browser for the current platform.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
