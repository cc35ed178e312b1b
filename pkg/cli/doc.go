/*
Package cli provides command-line helpers for the arbiter command.

Output Formatting:

Command results render as text, JSON or CSV. Values that implement Table
get aligned columns in text mode and one row per record in CSV mode:

	formatter, err := cli.NewFormatter(cli.FormatCSV)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, policyTable); err != nil {
		return err
	}

Progress Reporting:

Long exports report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Update(n)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

Exit Codes:

ExitError carries a process exit code out of a command. decide --exit-code
uses it to fail CI jobs on a blocked change.
*/
package cli
