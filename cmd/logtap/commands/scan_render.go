package commands

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pterm/pterm"

	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/scanner/protocol"
)

// jsonSink prints each event as one JSON line, the same envelope the
// WebSocket host sends
type jsonSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{w: w}
}

func (s *jsonSink) Event(ev protocol.Event) {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		logger.Warnw("Failed to encode event", "type", ev.EventType(), logger.FieldError, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s\n", data)
}

func (s *jsonSink) Notice(msg string) {
	logger.Infow(msg)
}

func (s *jsonSink) Close(*scanOutcome) {}

// prettySink renders a scan for a terminal: hits as they arrive, then a
// summary table
type prettySink struct {
	w     io.Writer
	total int
}

func newPrettySink(w io.Writer, total int) *prettySink {
	fmt.Fprint(w, pterm.DefaultSection.Sprintf("Scanning with %d rule(s)", total))
	return &prettySink{w: w, total: total}
}

func (s *prettySink) Event(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.InitDone:
		logger.Debugw("Query engine ready")
	case protocol.InitError:
		fmt.Fprint(s.w, pterm.Error.Sprintln(e.Message))
	case protocol.ProgressDetail:
		fmt.Fprint(s.w, pterm.Info.Sprintln(e.Message))
	case protocol.Progress:
		logger.Debugw("Scan progress", "processed", e.Processed, logger.FieldTotalCount, e.Total)
	case protocol.BatchResults:
		for _, hit := range e.Hits {
			fmt.Fprint(s.w, pterm.Success.Sprintfln("%s  %s", pterm.Bold.Sprint(hit.RuleName), pterm.Gray(hit.Query)))
			if hit.ResultPreview != "" {
				fmt.Fprintln(s.w, "    "+hit.ResultPreview)
			}
		}
		for _, re := range e.Errors {
			fmt.Fprint(s.w, pterm.Warning.Sprintfln("%s: %s", re.RuleName, re.Message))
		}
	case protocol.Error:
		fmt.Fprint(s.w, pterm.Error.Sprintfln("%s: %s", e.RuleName, e.Message))
	case protocol.Complete, protocol.Cancelled, protocol.CriticalError:
		// summarized in Close
	}
}

func (s *prettySink) Notice(msg string) {
	fmt.Fprint(s.w, pterm.Warning.Sprintln(msg))
}

func (s *prettySink) Close(o *scanOutcome) {
	fmt.Fprintln(s.w)

	if len(o.Hits) > 0 {
		data := pterm.TableData{{"Rule", "Query", "Preview"}}
		for _, hit := range o.Hits {
			data = append(data, []string{hit.RuleName, hit.Query, hit.ResultPreview})
		}
		if table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender(); err == nil {
			fmt.Fprintln(s.w, table)
		}
	}

	switch {
	case o.Critical != nil:
		fmt.Fprint(s.w, pterm.Error.Sprintln(o.Critical.Message))
		logger.Debugw("Worker stack", "stack", o.Critical.Stack)
	case o.Cancelled:
		fmt.Fprint(s.w, pterm.Warning.Sprintfln("Scan cancelled. %s so far.", partialHits(len(o.Hits))))
	case o.Complete != nil:
		if o.Complete.HitsFound == 0 {
			fmt.Fprint(s.w, pterm.Info.Sprintln(summaryMessage(*o.Complete)))
		} else {
			fmt.Fprint(s.w, pterm.Success.Sprintln(summaryMessage(*o.Complete)))
		}
		if o.Complete.ErrorsOccurred {
			fmt.Fprint(s.w, pterm.Warning.Sprintfln("Scan finished with errors (%d rule error(s)).", len(o.Errors)))
		}
	}
}

func pluralHits(n int) string {
	return "Found " + strconv.Itoa(n) + " hit(s)."
}

func partialHits(n int) string {
	if n == 0 {
		return "No hits"
	}
	return strconv.Itoa(n) + " hit(s)"
}

// printWarning writes a warning line to w
func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprint(w, pterm.Warning.Sprintfln(format, args...))
}
