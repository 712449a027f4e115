package ui

import (
	"fmt"
	"io"

	"sfextract/pkg/pipeline"
	"sfextract/pkg/retry"
)

// PrintSummary prints the outcome of a finished job
func PrintSummary(w io.Writer, entity string, res pipeline.Result) {
	verb := "Extracted"
	if res.Resumed {
		verb = "Resumed and extracted"
	}
	fmt.Fprintf(w, "\n%s %s %d records of %s in %d chunks\n",
		Green("✓"), verb, res.Records, Cyan(entity), res.Chunks)

	fmt.Fprintf(w, "  %s %s in %s\n",
		Dim("•"), FormatBytes(int64(res.Bytes)), FormatDuration(res.Duration))
	if res.TotalRecordsProcessed != res.Records {
		fmt.Fprintf(w, "  %s %d records across all runs\n", Dim("•"), res.TotalRecordsProcessed)
	}
	if res.DeadLettered > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"),
			Red(fmt.Sprintf("%d records dead-lettered", res.DeadLettered)))
	}
}

// PrintFailure prints a failed job's error and where to resume from
func PrintFailure(w io.Writer, err error) {
	je, ok := pipeline.AsJobError(err)
	if !ok {
		fmt.Fprintf(w, "\n%s %v\n", Red("✗"), err)
		return
	}
	fmt.Fprintf(w, "\n%s Extraction failed while in %s\n", Red("✗"), Bold(string(je.State)))
	fmt.Fprintf(w, "  %s %v\n", Dim("•"), je.Err)
	if retry.IsExhausted(je.Err) {
		fmt.Fprintf(w, "  %s every attempt failed; raise retry.max_attempts or retry.base_delay if the outage is expected to pass\n", Dim("•"))
	}
	fmt.Fprintf(w, "  %s checkpoint kept at %s, rerun to resume\n", Dim("•"), Yellow(je.CheckpointLocation))
}
