// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-enclave.
//
// go-enclave is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jeremyhahn/go-enclave/pkg/bridge"
	"github.com/jeremyhahn/go-enclave/pkg/health"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	out    io.Writer
	errOut io.Writer
}

// NewPrinter creates a new Printer. Text failures go to errOut.
func NewPrinter(format string, out, errOut io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		out:    out,
		errOut: errOut,
	}
}

// PrintResult prints the result of a bridge operation.
func (p *Printer) PrintResult(operation string, result bridge.Result) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"operation": operation,
			"failed":    result.Failed,
			"message":   result.Message,
		})
	case OutputFormatText:
		if result.Failed {
			fmt.Fprintln(p.errOut, result.Message)
			return nil
		}
		fmt.Fprintln(p.out, result.Message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealth prints health check results.
func (p *Printer) PrintHealth(results []health.CheckResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": health.AggregateStatus(results),
			"checks": results,
		})
	case OutputFormatText:
		w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
		for _, r := range results {
			msg := r.Message
			if r.Error != "" {
				msg = r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, msg)
		}
		fmt.Fprintf(w, "overall\t%s\t\n", health.AggregateStatus(results))
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
