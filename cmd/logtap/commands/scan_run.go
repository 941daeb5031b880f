package commands

import (
	"context"
	"os"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/scanner"
	"github.com/teranos/logtap/scanner/protocol"
)

// errScanAborted is returned after a second interrupt
var errScanAborted = errors.New("scan aborted")

// scanOutcome accumulates what a scan reported
type scanOutcome struct {
	Hits      []protocol.Hit
	Errors    []protocol.RuleError
	Complete  *protocol.Complete
	Cancelled bool
	Critical  *protocol.CriticalError
}

func (o *scanOutcome) record(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.BatchResults:
		o.Hits = append(o.Hits, e.Hits...)
		o.Errors = append(o.Errors, e.Errors...)
	case protocol.Error:
		o.Errors = append(o.Errors, protocol.RuleError{RuleName: e.RuleName, Message: e.Message})
	case protocol.Complete:
		o.Complete = &e
	case protocol.Cancelled:
		o.Cancelled = true
	case protocol.CriticalError:
		o.Critical = &e
	}
}

// err turns the outcome into the command's exit status
func (o *scanOutcome) err() error {
	switch {
	case o.Critical != nil:
		return errors.Newf("scan crashed: %s", o.Critical.Message)
	case o.Complete != nil && o.Complete.ErrorsOccurred:
		return errors.New("scan finished with errors")
	default:
		return nil
	}
}

// summaryMessage is the one-line verdict printed after a completed scan
func summaryMessage(c protocol.Complete) string {
	if c.HitsFound == 0 {
		return "No hits found."
	}
	return pluralHits(c.HitsFound)
}

// eventSink renders scan events for the user
type eventSink interface {
	Event(ev protocol.Event)
	// Notice reports something the CLI itself did, like sending cancel
	Notice(msg string)
	Close(outcome *scanOutcome)
}

// executeScan runs one scan on an in-process worker. The first interrupt
// sends cancel; a second one tears the worker down and returns errScanAborted.
func executeScan(ctx context.Context, opts scanner.WorkerOptions, start protocol.Start, sink eventSink, interrupts <-chan os.Signal) (*scanOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan protocol.Command)
	out := make(chan protocol.Event, 64)
	done := make(chan error, 1)

	w := scanner.NewWorker(opts)
	go func() { done <- w.Run(ctx, in, out) }()

	outcome := &scanOutcome{}
	finish := func() {
		close(in)
		<-done
		sink.Close(outcome)
	}

	send := func(cmd protocol.Command) error {
		select {
		case in <- cmd:
			return nil
		case err := <-done:
			return errors.Wrapf(workerStopped(err), "sending %s", cmd.CommandType())
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := send(start); err != nil {
		return outcome, err
	}

	cancelSent := false
	for {
		select {
		case ev := <-out:
			sink.Event(ev)
			outcome.record(ev)

			if ie, ok := ev.(protocol.InitError); ok {
				finish()
				return outcome, errors.WithHint(
					errors.Newf("query engine failed to load: %s", ie.Message),
					"Check scanner.engine_path in am.toml or pass --engine",
				)
			}
			if protocol.IsTerminal(ev) {
				finish()
				return outcome, nil
			}

		case <-interrupts:
			if cancelSent {
				cancel()
				<-done
				sink.Close(outcome)
				return outcome, errScanAborted
			}
			cancelSent = true
			sink.Notice("Cancelling after the current batch (Ctrl+C again to abort)")
			if err := send(protocol.Cancel{}); err != nil {
				return outcome, err
			}

		case err := <-done:
			// A crash leaves its critical_error buffered behind the exit
			drainEvents(out, sink, outcome)
			sink.Close(outcome)
			if outcome.Critical != nil {
				return outcome, nil
			}
			return outcome, workerStopped(err)

		case <-ctx.Done():
			<-done
			sink.Close(outcome)
			return outcome, ctx.Err()
		}
	}
}

// drainEvents records whatever the stopped worker left in out
func drainEvents(out <-chan protocol.Event, sink eventSink, outcome *scanOutcome) {
	for {
		select {
		case ev := <-out:
			sink.Event(ev)
			outcome.record(ev)
		default:
			return
		}
	}
}

func workerStopped(err error) error {
	if err == nil {
		return errors.AssertionFailedf("scan worker stopped before the scan ended")
	}
	return err
}
