package main

import (
	"fmt"

	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// fmtBytes renders n bytes in the largest whole unit that keeps it >= 1.
func fmtBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// pbNameDecorator renders a fixed-width, left-aligned name label.
func pbNameDecorator(name string) decor.Decorator {
	return decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight})
}

// newProgressSpinner creates an indeterminate spinner labeled with name,
// queued to start once afterBar completes.
func newProgressSpinner(pbs *mpb.Progress, afterBar *mpb.Bar, name string) *mpb.Bar {
	return pbs.AddSpinner(
		-1,
		mpb.SpinnerOnLeft,
		mpb.SpinnerStyle([]string{"∙∙∙", "●∙∙", "∙●∙", "∙∙●", "∙∙∙"}),
		mpb.BarFillerClearOnComplete(),
		mpb.BarQueueAfter(afterBar),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
		),
	)
}

// newProgressDone replaces afterBar with a single static line once the
// transfer it describes has finished.
func newProgressDone(pbs *mpb.Progress, afterBar *mpb.Bar, name, message string) *mpb.Bar {
	bar := pbs.AddBar(
		1,
		mpb.BarQueueAfter(afterBar),
		mpb.PrependDecorators(
			decor.Name("done", decor.WC{W: 6}),
			decor.Name(message),
		),
		mpb.AppendDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
		),
	)
	bar.IncrBy(1)
	return bar
}
