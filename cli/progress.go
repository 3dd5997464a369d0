package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
	UpdateText(string)
}

type progressSpinnerFactory func(w io.Writer, text string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(w io.Writer, text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithRemoveWhenDone(false).
		WithWriter(w).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// progress reports long running steps of a command with a spinner per step. Steps run one at a time.
type progress struct {
	w              io.Writer
	spinnerFactory progressSpinnerFactory
	disabled       bool
	now            func() time.Time
}

// newProgress returns a progress reporter writing to w. Spinners are only drawn on terminals.
func newProgress(w io.Writer) *progress {
	f, ok := w.(*os.File)
	return &progress{
		w:              w,
		spinnerFactory: defaultSpinnerFactory,
		disabled:       !ok || !term.IsTerminal(int(f.Fd())),
		now:            time.Now,
	}
}

// step runs f under a spinner showing msg. f returns the text shown when it succeeds.
func (p *progress) step(msg string, f func() (string, error)) error {
	start := p.now()
	var spinner progressSpinner
	if !p.disabled {
		var err error
		if spinner, err = p.spinnerFactory(p.w, msg); err != nil {
			return fmt.Errorf("failed to start spinner: %w", err)
		}
	}

	done, err := f()
	elapsed := fmt.Sprintf(" (%s)", p.now().Sub(start).Round(time.Millisecond))
	if err != nil {
		if spinner != nil {
			spinner.Fail(fmt.Sprintf("%s: %v", msg, err))
		}
		return err
	}
	if done == "" {
		done = msg
	}
	if spinner != nil {
		spinner.Success(done + elapsed)
	} else {
		printf(p.w, "%s%s", done, elapsed)
	}
	return nil
}

// printf prints a message with no decoration.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a warning to w.
func warningf(w io.Writer, format string, a ...interface{}) {
	pterm.Warning.WithWriter(w).Printfln(format, a...)
}
