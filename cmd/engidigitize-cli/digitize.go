package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/app"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/encoder"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/views"
)

const progressTick = 150 * time.Millisecond

// DigitizeResult is the --json output of digitize.
type DigitizeResult struct {
	File      string   `json:"file"`
	MIMEType  string   `json:"mimeType"`
	Status    string   `json:"status"`
	Formatted bool     `json:"formatted,omitempty"`
	Outputs   []string `json:"outputs,omitempty"`
	Error     string   `json:"error,omitempty"`
	ElapsedMs int64    `json:"elapsedMs"`
}

func newDigitizeCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "digitize <file>",
		Short: "Convert one drawing into JSON data and a vector drawing",
		Long: `Digitize runs one processing cycle for a PNG, JPEG or PDF drawing.

A progress bar follows the usual processing stages. If the model takes longer,
a spinner keeps running until it answers or the remote timeout expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ui := NewUI(outputJSON, noColor)
			return runDigitize(ctx, ui, args[0], outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: next to the input file)")

	return cmd
}

func runDigitize(ctx context.Context, ui *UI, path, outDir string) error {
	mimeType, err := detectMIME(path)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = filepath.Dir(path)
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	objects := session.NewMemoryObjects("blob:engidigitize-cli/")
	m := session.NewMachine(uuid.NewString(), a.MachineConfig(ctx, objects))
	defer m.Reset()

	start := time.Now()
	ui.Step("Digitizing %s (%s)", filepath.Base(path), mimeType)
	if _, err := m.Upload(encoder.NewFileSource(path, mimeType)); err != nil {
		return err
	}

	if err := watchProcessing(ctx, ui, m, cfg.Processing.SimulatedDuration); err != nil {
		return err
	}

	result := DigitizeResult{
		File:      path,
		MIMEType:  mimeType,
		ElapsedMs: time.Since(start).Milliseconds(),
	}

	snap := m.Snapshot()
	switch snap.Status {
	case domain.StatusSuccess:
		rv := views.NewResultsView(snap.Document, snap.ObjectURL, *snap.Result, views.ResultsOptions{
			VectorExtension: cfg.Downloads.VectorExtension,
		})
		written, err := writeDownloads(outDir, rv.Downloads)
		if err != nil {
			return err
		}
		result.Status = string(snap.Status)
		result.Formatted = rv.Formatted
		result.Outputs = written

		if !rv.Formatted {
			ui.Warning("Structured data is not valid JSON; saved as returned")
		}
		for _, p := range written {
			ui.Success("Wrote %s", p)
		}
	default:
		result.Status = string(domain.StatusError)
		result.Error = snap.Error
		ui.Error("%s", snap.Error)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if result.Status != string(domain.StatusSuccess) {
		return errors.New("digitize failed")
	}
	return nil
}

// watchProcessing renders the simulated progress view until the cycle
// settles. Once the bar is full a spinner covers the remaining wait.
func watchProcessing(ctx context.Context, ui *UI, m *session.Machine, total time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- m.Wait(ctx) }()

	bar := ui.ProgressBar(views.ProcessingSteps[0])
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case err := <-done:
			bar.Finish(views.ProcessingSteps[len(views.ProcessingSteps)-1])
			return err
		case <-ticker.C:
			percent, step := views.SimulatedProgress(time.Since(started), total)
			bar.Set(percent, views.ProcessingSteps[step])
			if percent < 100 {
				continue
			}

			sp := ui.Spinner(views.ProcessingNote)
			sp.Start()
			err := <-done
			sp.Stop()
			return err
		}
	}
}

// detectMIME resolves the upload type from the extension and the file header.
func detectMIME(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.ReadFailure("open document", err)
	}
	defer f.Close()

	head := make([]byte, views.SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", domain.ReadFailure("read document", err)
	}

	mimeType, err := views.ValidateUpload(mime.TypeByExtension(filepath.Ext(path)), head[:n])
	if err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return mimeType, nil
}

// writeDownloads writes each artifact into dir and returns the paths.
func writeDownloads(dir string, downloads []views.Download) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, 0, len(downloads))
	for _, d := range downloads {
		p := filepath.Join(dir, d.Filename)
		if err := os.WriteFile(p, []byte(d.Content), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", d.Filename, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
