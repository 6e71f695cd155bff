// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package lines provides observables of text lines read from readers and files.
package lines

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/joamaki/filtermap/stream"
)

// MaxLineSize is the longest line the scanners accept.
const MaxLineSize = 1024 * 1024

// FromReader emits the lines of 'r' without line terminators. The reader is
// consumed by the first observer. Reading happens on a separate goroutine so
// that cancelling stops the observer even while 'r' is blocked; the pending
// read is abandoned and the goroutine exits when it returns.
func FromReader(r io.Reader) stream.Observable[string] {
	return stream.FuncObservable[string](
		func(ctx context.Context, next func(string) error) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			lines := make(chan string)
			scanErr := make(chan error, 1)
			stop := make(chan struct{})
			defer close(stop)

			go func() {
				scanner := bufio.NewScanner(r)
				scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-stop:
						return
					}
				}
				scanErr <- scanner.Err()
			}()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case line := <-lines:
					if err := next(line); err != nil {
						return err
					}
				case err := <-scanErr:
					if ctx.Err() != nil {
						// Readers tied to 'ctx' fail with their own errors on cancel.
						return ctx.Err()
					}
					return err
				}
			}
		})
}

// FromFile emits the lines of the file at 'path'. The file is opened anew
// for each observer and closed when observing stops. The path "-" reads
// standard input.
func FromFile(path string) stream.Observable[string] {
	if path == "-" {
		return FromReader(os.Stdin)
	}
	return stream.FuncObservable[string](
		func(ctx context.Context, next func(string) error) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return FromReader(f).Observe(ctx, next)
		})
}
