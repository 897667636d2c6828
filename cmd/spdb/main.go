// Package main provides the spdb CLI tool for inspecting and editing spdb
// databases.
//
// Usage:
//
//	spdb --db=<path> <command> [options]
//
// Commands:
//
//	get <key>          Print the value of a key
//	set <key> <value>  Store a key/value pair
//	delete <key>       Delete a key
//	scan               Print records in a key range
//	count              Print the number of records
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aalhour/spdb"
	"github.com/aalhour/spdb/internal/logging"
)

type globals struct {
	DB          string `name:"db" required:"" type:"path" help:"Path to the database directory."`
	Backend     string `default:"journal" enum:"journal,bolt" help:"Storage engine (${enum})."`
	Compression string `default:"snappy" enum:"none,snappy,lz4,zstd" help:"Journal compression (${enum})."`
	Sync        bool   `help:"Fsync after every write."`
	Hex         bool   `help:"Keys and values on the command line and in the output are hex encoded."`
	Verbose     bool   `short:"v" help:"Log engine diagnostics to stderr."`
}

type cmdGet struct {
	Key string `arg:"" help:"Key to look up."`
}

type cmdSet struct {
	Key   string `arg:"" help:"Key to store."`
	Value string `arg:"" help:"Value to store."`
}

type cmdDelete struct {
	Key string `arg:"" help:"Key to delete."`
}

type cmdScan struct {
	Start    string `help:"Scan bound. Empty scans from the open end."`
	Order    string `default:">=" enum:">=,>,<=,<" help:"Scan order (${enum})."`
	Limit    int    `help:"Stop after this many records (0 = unlimited)."`
	KeysOnly bool   `name:"keys-only" help:"Print keys only."`
}

type cmdCount struct{}

type cliArgs struct {
	globals `embed:""`

	Get    cmdGet    `cmd:"" help:"Print the value of a key."`
	Set    cmdSet    `cmd:"" help:"Store a key/value pair."`
	Delete cmdDelete `cmd:"" help:"Delete a key."`
	Scan   cmdScan   `cmd:"" help:"Print records in a key range."`
	Count  cmdCount  `cmd:"" help:"Print the number of records."`
}

// session is the state shared by every command.
type session struct {
	db     *spdb.DB
	stdout io.Writer
	hex    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes one command and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var cli cliArgs
	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("spdb"),
		kong.Description("Inspect and edit spdb databases."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	ctx, err := parser.Parse(args)
	if exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	s, err := openSession(&cli.globals, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	err = ctx.Run(s)
	if derr := s.db.Destroy(); err == nil {
		err = derr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func openSession(g *globals, stdout, stderr io.Writer) (*session, error) {
	opts := spdb.DefaultOptions()
	opts.Sync = g.Sync
	opts.Logger = logging.Discard
	if g.Verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(stderr),
			zapcore.DebugLevel,
		)
		opts.Logger = logging.NewZapLogger(zap.New(core))
	}
	switch g.Backend {
	case "bolt":
		opts.Backend = spdb.BackendBolt
	default:
		opts.Backend = spdb.BackendJournal
	}
	switch g.Compression {
	case "none":
		opts.Compression = spdb.CompressionNone
	case "lz4":
		opts.Compression = spdb.CompressionLZ4
	case "zstd":
		opts.Compression = spdb.CompressionZstd
	default:
		opts.Compression = spdb.CompressionSnappy
	}

	db, err := spdb.New(opts)
	if err != nil {
		return nil, err
	}
	if _, err := db.Open(g.DB); err != nil {
		_ = db.Destroy()
		return nil, err
	}
	return &session{db: db, stdout: stdout, hex: g.Hex}, nil
}

func (s *session) parse(arg string) ([]byte, error) {
	if !s.hex {
		return []byte(arg), nil
	}
	b, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("bad hex input %q: %w", arg, err)
	}
	return b, nil
}

func (s *session) format(data []byte) string {
	if s.hex {
		return hex.EncodeToString(data)
	}
	return string(data)
}

func (c *cmdGet) Run(s *session) error {
	key, err := s.parse(c.Key)
	if err != nil {
		return err
	}
	v, err := s.db.Get(key)
	if errors.Is(err, spdb.ErrNotFound) {
		return fmt.Errorf("key %q not found", c.Key)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, s.format(v))
	return nil
}

func (c *cmdSet) Run(s *session) error {
	key, err := s.parse(c.Key)
	if err != nil {
		return err
	}
	value, err := s.parse(c.Value)
	if err != nil {
		return err
	}
	return s.db.Set(key, value)
}

func (c *cmdDelete) Run(s *session) error {
	key, err := s.parse(c.Key)
	if err != nil {
		return err
	}
	return s.db.Delete(key)
}

func (c *cmdScan) Run(s *session) error {
	opts := &spdb.ScanOptions{Order: parseOrder(c.Order)}
	if c.Start != "" {
		start, err := s.parse(c.Start)
		if err != nil {
			return err
		}
		opts.Start = start
	}
	cur, err := s.db.Items(opts)
	if err != nil {
		return err
	}
	return s.print(cur, c.KeysOnly, c.Limit)
}

// records is the part of *spdb.Cursor the scan printer uses.
type records interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// print writes up to limit records (all when limit is 0) and closes cur.
func (s *session) print(cur records, keysOnly bool, limit int) error {
	n := 0
	for cur.Next() {
		if keysOnly {
			fmt.Fprintln(s.stdout, s.format(cur.Key()))
		} else {
			fmt.Fprintf(s.stdout, "%s => %s\n", s.format(cur.Key()), s.format(cur.Value()))
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return multierr.Append(cur.Err(), cur.Close())
}

func parseOrder(s string) spdb.Order {
	switch s {
	case ">":
		return spdb.OrderGT
	case "<=":
		return spdb.OrderLTE
	case "<":
		return spdb.OrderLT
	default:
		return spdb.OrderGTE
	}
}

func (c *cmdCount) Run(s *session) error {
	n, err := s.db.Count()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, n)
	return nil
}
