package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/s3fetch/internal/cloud/download"
	s3http "github.com/rescale/s3fetch/internal/http"
	"github.com/rescale/s3fetch/internal/pathutil"
	"github.com/rescale/s3fetch/internal/progress"
	"github.com/rescale/s3fetch/internal/sigv4"
	"github.com/rescale/s3fetch/internal/validation"
)

// errAborted is returned when the user aborts at a conflict prompt.
var errAborted = errors.New("download aborted by user")

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var (
		output string
		force  bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "download <bucket> <key>",
		Short: "Download one object",
		Long: `Download one object from a private bucket.

The key may be given raw ("folder/My File.pdf") or percent-encoded
("folder/My%20File.pdf"). The file is written to the key's last path
segment in the current directory unless -o is given; -o - writes to stdout.

Examples:
  s3fetch download docs "contracts/Lease (final).pdf"
  s3fetch download docs reports/q3.pdf -o /tmp/q3.pdf
  s3fetch download docs a.pdf --endpoint http://127.0.0.1:9000 --path-style`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			loc := sigv4.Locator{Bucket: args[0], Key: args[1]}

			if output == "" {
				output = validation.OutputName(loc.Key)
			}
			toStdout := output == "-"
			if !toStdout && !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			s, err := newSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.close()

			var reporter progress.Reporter = progress.NewNoOpProgress()
			if !quiet {
				reporter = progress.NewCLIProgress()
			}
			reporter.Start(validation.DisplayKey(loc.Key))

			result, err := fetchObject(ctx, s, s.downloader(), loc, progress.Func(reporter))
			if err != nil {
				reporter.Error(err)
				return err
			}
			reporter.Finish()

			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}

			if toStdout {
				_, err := cmd.OutOrStdout().Write(result.Body)
				return err
			}
			if err := writeFileAtomic(output, result.Body); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "✓ %s -> %s (%s, %s, via %s)\n",
				validation.DisplayKey(loc.Key), output, humanize.IBytes(uint64(result.Size)), result.ContentType, result.Strategy)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (- for stdout)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing output file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show a progress bar")

	return cmd
}

// newBatchCmd creates the 'batch' command.
func newBatchCmd() *cobra.Command {
	var (
		outputDir     string
		maxConcurrent int
		overwrite     bool
		skipExisting  bool
	)

	cmd := &cobra.Command{
		Use:   "batch <bucket> <key>...",
		Short: "Download several objects concurrently",
		Long: `Download several objects from one bucket concurrently.

Each object is written below --dir keeping its key's folder structure.
When a file already exists you are asked what to do unless --overwrite
or --skip-existing is given; without a terminal existing files are skipped.

Examples:
  s3fetch batch docs a.pdf b.pdf reports/q3.pdf --dir ./out
  s3fetch batch docs $(cat keys.txt) --dir ./out --max-concurrent 8 --overwrite`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if overwrite && skipExisting {
				return fmt.Errorf("--overwrite and --skip-existing are mutually exclusive")
			}
			if maxConcurrent < 1 || maxConcurrent > 32 {
				return fmt.Errorf("--max-concurrent must be between 1 and 32")
			}

			dir, err := pathutil.ResolveAbsolutePath(outputDir)
			if err != nil {
				return fmt.Errorf("invalid output directory: %w", err)
			}

			ctx := GetContext()
			s, err := newSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.close()

			mode := DownloadSkipOnce
			switch {
			case overwrite:
				mode = DownloadOverwriteAll
			case skipExisting || !term.IsTerminal(int(os.Stdin.Fd())):
				mode = DownloadSkipAll
			}

			b := &batch{
				session:  s,
				bucket:   args[0],
				keys:     args[1:],
				dir:      dir,
				mode:     mode,
				prompt:   os.Stdin,
				ui:       progress.NewDownloadUI(len(args) - 1),
				parallel: maxConcurrent,
			}
			return b.run(cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&outputDir, "dir", "d", ".", "Output directory")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 4, "Maximum concurrent downloads (1-32)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing files without asking")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip existing files without asking")

	return cmd
}

// batch downloads keys from one bucket with bounded concurrency.
type batch struct {
	session  *session
	bucket   string
	keys     []string
	dir      string
	prompt   io.Reader
	ui       progress.BatchUI
	parallel int

	conflictMu sync.Mutex
	mode       DownloadConflictAction
}

func (b *batch) run(summary io.Writer) error {
	ctx := GetContext()
	dl := b.session.downloader()

	// Log lines go above the bars while they are drawn
	prevOut := b.session.logger.Output()
	b.session.logger.SetOutput(b.ui.Writer())
	defer b.session.logger.SetOutput(prevOut)

	semaphore := make(chan struct{}, b.parallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var downloaded, skipped int
	var failures []error

	for i, key := range b.keys {
		wg.Add(1)
		go func(idx int, key string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", key, ctx.Err()))
				mu.Unlock()
				return
			}

			ok, err := b.one(idx+1, key, dl)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, fmt.Errorf("%s: %w", key, err))
			case ok:
				downloaded++
			default:
				skipped++
			}
		}(i, key)
	}

	wg.Wait()
	b.ui.Wait()

	fmt.Fprintf(summary, "\nDownloaded %d, skipped %d, failed %d of %d object(s)\n",
		downloaded, skipped, len(failures), len(b.keys))
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d downloads failed: %w", len(failures), len(b.keys), errors.Join(failures...))
	}
	return nil
}

// one downloads a single key. It reports false with no error when the
// object was skipped.
func (b *batch) one(index int, key string, dl *download.Downloader) (bool, error) {
	ctx := GetContext()

	localPath, err := validation.LocalPathForKey(b.dir, key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(localPath); err == nil {
		action, err := b.resolveConflict(key, localPath)
		if err != nil {
			return false, err
		}
		if action == DownloadSkipOnce || action == DownloadSkipAll {
			fmt.Fprintf(b.ui.Writer(), "Skipping existing %s\n", filepath.ToSlash(localPath))
			return false, nil
		}
	}

	bar := b.ui.AddFileBar(index, validation.DisplayKey(key), localPath)
	ctx = s3http.WithRetryNotify(ctx, bar.SetRetry)

	loc := sigv4.Locator{Bucket: b.bucket, Key: key}
	result, err := fetchObject(ctx, b.session, dl, loc, progress.BarFunc(bar))
	if err == nil {
		for _, w := range result.Warnings {
			fmt.Fprintf(b.ui.Writer(), "Warning: %s: %s\n", validation.DisplayKey(key), w)
		}
		err = writeFileAtomic(localPath, result.Body)
	}
	if err != nil {
		bar.Complete(0, err)
		return false, err
	}

	bar.Complete(result.Size, nil)
	return true, nil
}

// resolveConflict serializes prompts so only one question is on screen.
func (b *batch) resolveConflict(key, localPath string) (DownloadConflictAction, error) {
	b.conflictMu.Lock()
	defer b.conflictMu.Unlock()

	switch b.mode {
	case DownloadSkipAll, DownloadOverwriteAll:
		return b.mode, nil
	}

	action, err := promptDownloadConflict(b.prompt, b.ui.Writer(), key, localPath)
	if err != nil {
		return DownloadAbort, fmt.Errorf("conflict prompt failed: %w", err)
	}
	if action == DownloadAbort {
		return action, errAborted
	}
	if action == DownloadSkipAll || action == DownloadOverwriteAll {
		b.mode = action
	}
	return action, nil
}
