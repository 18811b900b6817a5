// Package writer is the per-symbol writer (spec component F): drains
// its queue, rotates bucket files, compresses on rotation, and
// triggers a day-level merge the first time a new day is observed.
// Grounded on
// original_source/binance/REFACTOR/REFACTOR_symbol_dump_snapshot.py
// and the teacher's internal/logger/csv.go rotation-by-ticker pattern,
// generalised from daily-only rotation to arbitrary bucket suffixes.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fordicus/RT-Data-sub001/internal/archive"
	"github.com/fordicus/RT-Data-sub001/internal/clock"
	"github.com/fordicus/RT-Data-sub001/internal/lifecycle"
	"github.com/fordicus/RT-Data-sub001/internal/merge"
	"github.com/fordicus/RT-Data-sub001/internal/metrics"
	"github.com/fordicus/RT-Data-sub001/internal/model"
)

// handle is the WriterHandle entity from spec.md §3: exclusively owned
// by the Writer goroutine for one symbol, never read or written by
// anything else.
type handle struct {
	suffix string
	file   *os.File
}

func (h *handle) open() bool { return h.file != nil }

// Writer drains one symbol's snapshot channel and persists it to
// rotated, compressed, newline-delimited JSON files.
type Writer struct {
	symbol          string
	symbolUpper     string
	lobDir          string
	saveIntervalMin int

	in   <-chan model.Snapshot
	life *lifecycle.Controller
	mrg  *merge.Dispatcher
	m    *metrics.Metrics
	log  zerolog.Logger

	h         handle
	lastFlush time.Time
}

// New builds a Writer for symbol. in is the receive side of that
// symbol's queue.Registry channel.
func New(
	symbol string,
	lobDir string,
	saveIntervalMin int,
	in <-chan model.Snapshot,
	life *lifecycle.Controller,
	mrg *merge.Dispatcher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Writer {
	return &Writer{
		symbol:          symbol,
		symbolUpper:     strings.ToUpper(symbol),
		lobDir:          lobDir,
		saveIntervalMin: saveIntervalMin,
		in:              in,
		life:            life,
		mrg:             mrg,
		m:               m,
		log:             log.With().Str("symbol", symbol).Logger(),
	}
}

// Run drains the queue until it is closed (shutdown) and returns once
// the handle has been flushed and closed — spec.md §4.H's "writers on
// exit flush and close their handles".
func (w *Writer) Run() {
	for snap := range w.in {
		w.process(snap)
	}
	w.closeHandle()
}

func (w *Writer) process(snap model.Snapshot) {
	if !w.life.StreamEnabled() {
		return
	}

	suffix := clock.Suffix(w.saveIntervalMin, snap.EventTime)
	day := clock.Day(suffix)

	dir := filepath.Join(w.lobDir, "temporary", fmt.Sprintf("%s_orderbook_%s", w.symbolUpper, day))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Error().Err(err).Str("dir", dir).Msg("failed to create bucket directory")
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_orderbook_%s.jsonl", w.symbolUpper, suffix))

	if w.h.suffix != suffix {
		w.rotate(suffix, path)
		if !w.h.open() {
			// open failed; handle stays empty so the next snapshot
			// re-attempts from scratch.
			return
		}
	}

	if err := w.writeLine(snap); err != nil {
		w.log.Error().Err(err).Msg("write failed, dropping handle")
		w.closeHandle()
		return
	}

	now := time.Now()
	if w.m != nil && !w.lastFlush.IsZero() {
		w.m.FlushInterval.WithLabelValues(w.symbol).Observe(now.Sub(w.lastFlush).Seconds())
	}
	w.lastFlush = now
}

// rotate closes and compresses the previous bucket file (if any),
// triggers a day merge if the day changed, and opens the new bucket
// file. A compression failure is logged and the ".jsonl" is left in
// place; if the new file cannot be opened the handle is left empty so
// the caller retries on the next snapshot.
func (w *Writer) rotate(newSuffix, newPath string) {
	prevSuffix := w.h.suffix

	if w.h.open() {
		if err := w.h.file.Close(); err != nil {
			w.log.Error().Err(err).Msg("failed to close previous bucket file")
		}

		prevDay := clock.Day(prevSuffix)
		prevDir := filepath.Join(w.lobDir, "temporary", fmt.Sprintf("%s_orderbook_%s", w.symbolUpper, prevDay))
		prevPath := filepath.Join(prevDir, fmt.Sprintf("%s_orderbook_%s.jsonl", w.symbolUpper, prevSuffix))

		if err := archive.ZipAndRemove(prevPath); err != nil {
			w.log.Error().Err(err).Str("path", prevPath).Msg("compression failed on rotation; leaving .jsonl in place")
			if w.m != nil {
				w.m.CompressFailures.WithLabelValues(w.symbol).Inc()
			}
		}

		if w.m != nil {
			w.m.BucketRotations.WithLabelValues(w.symbol).Inc()
		}
	}

	f, err := os.OpenFile(newPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.log.Error().Err(err).Str("path", newPath).Msg("failed to open bucket file")
		w.h = handle{}
		return
	}
	w.h = handle{suffix: newSuffix, file: f}

	// Compression above runs synchronously, so every previous bucket
	// file for prevDay is already .zip at this point unless its
	// compression failed.
	if prevSuffix != "" {
		prevDay := clock.Day(prevSuffix)
		newDay := clock.Day(newSuffix)
		if prevDay != newDay {
			w.mrg.Submit(w.symbol, prevDay)
			w.log.Info().Str("day", prevDay).Msg("triggered day merge")
		}
	}
}

func (w *Writer) writeLine(snap model.Snapshot) error {
	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("writer: marshal snapshot: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.h.file.Write(line); err != nil {
		return fmt.Errorf("writer: write: %w", err)
	}
	if err := w.h.file.Sync(); err != nil {
		return fmt.Errorf("writer: flush: %w", err)
	}
	return nil
}

func (w *Writer) closeHandle() {
	if w.h.open() {
		if err := w.h.file.Close(); err != nil {
			w.log.Error().Err(err).Msg("failed to close bucket file on drop")
		}
	}
	w.h = handle{}
}
