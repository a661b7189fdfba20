// Copyright 2016 The Sandpass Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// kdbxdump decrypts a KeePass 2.x database and writes its XML document.
//
// Usage:
//
//	kdbxdump -db passwords.kdbx [-keyfile key] [-out file.xml]
//	kdbxdump -db passwords.kdbx -metadata
//	kdbxdump -db passwords.kdbx -find "bank"
//	kdbxdump -listen localhost:8080
//
// The password is read from the KDBXDUMP_PASSWORD environment variable
// or prompted for on the terminal.
package main // import "zombiezen.com/go/kdbxdump"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxdump/pkg/kdbx"
)

var (
	dbPath      = flag.String("db", "", "path to database")
	keyFilePath = flag.String("keyfile", "", "path to key file (optional)")
	outPath     = flag.String("out", "-", "path to write the decrypted XML to (- for stdout)")
	metadata    = flag.Bool("metadata", false, "print the header fields instead of decrypting")
	indent      = flag.Int("indent", 0, "re-indent the XML with this many spaces per level (0 keeps the original layout)")
	find        = flag.String("find", "", "list the entries whose title, user name or URL match the query instead of writing XML")
	listen      = flag.String("listen", "", "address to serve the decode API on; if empty, decode -db once and exit")
	logFormat   = flag.String("log_format", "text", "log format: text or json")
	logLevel    = flag.String("log_level", "info", "minimum log level")
	maxDBSize   = flag.Int64("max_db_size", 64<<20, "number of bytes to limit database files and uploads to")
)

func main() {
	flag.Parse()
	if err := initLogging(); err != nil {
		fmt.Fprintln(os.Stderr, "kdbxdump:", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *listen != "" {
		if err := serve(ctx, *listen); err != nil {
			log.WithError(err).Error("listen")
			os.Exit(1)
		}
		return
	}
	if *dbPath == "" {
		log.Error("must specify -db or -listen")
		os.Exit(2)
	}
	if err := run(ctx); err != nil {
		log.WithError(err).WithField("db", *dbPath).Error("decode failed")
		os.Exit(1)
	}
}

func initLogging() error {
	switch *logFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: *listen == ""})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown -log_format %q", *logFormat)
	}
	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	return nil
}

// run decodes the database named by -db and writes the requested output.
func run(ctx context.Context) error {
	data, err := (&storage{path: *dbPath}).read(*maxDBSize)
	if err != nil {
		return err
	}
	if *metadata {
		h, err := kdbx.ReadHeader(data)
		if err != nil {
			return err
		}
		return writeOutput(func(w io.Writer) error {
			return writeMetadata(w, h)
		})
	}

	opts := &kdbx.Options{Trace: logTrace(log.WithField("db", *dbPath))}
	if opts.Password, err = readPassword("Password: "); err != nil {
		return err
	}
	if *keyFilePath != "" {
		kf, err := os.Open(*keyFilePath)
		if err != nil {
			return err
		}
		defer kf.Close()
		opts.KeyFile = kf
	}
	start := time.Now()
	db, err := kdbx.Open(ctx, data, opts)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"version": fmt.Sprintf("%d.%d", db.Header().MajorVersion(), db.Header().MinorVersion()),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("database decrypted")

	if *find != "" {
		pq := parseQuery(*find)
		if pq == nil {
			return errors.New("empty -find query")
		}
		return writeOutput(func(w io.Writer) error {
			return writeResults(w, search(db.Entries(), pq))
		})
	}
	xml, err := db.XML(*indent)
	if err != nil {
		return err
	}
	return writeOutput(func(w io.Writer) error {
		_, err := w.Write(xml)
		return err
	})
}

// writeOutput calls f with the writer named by -out.
func writeOutput(f func(io.Writer) error) error {
	if *outPath == "-" {
		return f(os.Stdout)
	}
	w, err := (&storage{path: *outPath}).writer()
	if err != nil {
		return err
	}
	if err := f(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// logTrace reports pipeline progress at debug level.
func logTrace(entry *log.Entry) *kdbx.Trace {
	return &kdbx.Trace{
		StageStart: func(s kdbx.Stage) {
			entry.WithField("stage", s.String()).Debug("stage start")
		},
		BlockVerified: func(index uint32, size int) {
			entry.WithFields(log.Fields{"block": index, "size": size}).Debug("block verified")
		},
	}
}

func serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/decode", appHandler(handleDecode)).Methods("POST")
	r.Handle("/header", appHandler(handleHeader)).Methods("POST")
	r.Handle("/search", appHandler(handleSearch)).Methods("POST")
	return r
}
