package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/stowbase"
	"github.com/t7a/stowbase/config"
	"github.com/t7a/stowbase/wlog"
)

const usage = `stowkwik

Usage:
  stowkwik [options] init
  stowkwik [options] put [<filename>]
  stowkwik [options] get <id>
  stowkwik [options] find <id>
  stowkwik [options] prefix <prefix>
  stowkwik [options] ls [<prefix>]
  stowkwik [options] optimize <id>
  stowkwik [options] verify [-w <workers>]
  stowkwik [options] putstream [<filename>]
  stowkwik [options] catstream <id>
  stowkwik [options] log [<since>]
  stowkwik algos

Options:
  -h --help          Show this screen.
  --version          Show version.
  -c <config>        Configuration file.
  -w <workers>       Verify with this many workers.
`

// exit codes
const (
	rcOk        = 0
	rcOther     = 1
	rcUsage     = 2
	rcNotFound  = 3
	rcAmbiguous = 4
	rcCorrupt   = 5
)

type Opts struct {
	Init      bool
	Put       bool
	Get       bool
	Find      bool
	PrefixCmd bool `docopt:"prefix"`
	Ls        bool
	Optimize  bool
	Verify    bool
	Putstream bool
	Catstream bool
	Log       bool
	Algos     bool
	Config    string `docopt:"-c"`
	Workers   string `docopt:"-w"`
	Filename  string `docopt:"<filename>"`
	Id        string `docopt:"<id>"`
	Prefix    string `docopt:"<prefix>"`
	Since     string `docopt:"<since>"`
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {
	parser := &docopt.Parser{
		OptionsFirst: false,
		HelpHandler: func(err error, usage string) {
			if err != nil {
				fmt.Fprintln(os.Stderr, usage)
				return
			}
			fmt.Println(usage)
		},
	}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	if err != nil {
		return rcUsage
	}
	if o == nil {
		// help or version
		return rcOk
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return rcUsage
	}
	log.Debug(opts)

	if opts.Algos {
		for _, algo := range stowbase.Algos() {
			fmt.Println(algo)
		}
		return rcOk
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Error(err)
		return rcUsage
	}
	err = cfg.Logging.Apply()
	if err != nil {
		log.Error(err)
		return rcUsage
	}

	err = dispatch(cfg, opts)
	if err != nil {
		log.Error(err)
		return exitCode(err)
	}
	return rcOk
}

func dispatch(cfg *config.Config, opts Opts) (err error) {
	switch true {
	case opts.Init:
		return create(cfg)
	case opts.Put:
		return put(cfg, opts.Filename)
	case opts.Get:
		return get(cfg, opts.Id)
	case opts.Find:
		return find(cfg, opts.Id)
	case opts.PrefixCmd:
		return resolve(cfg, opts.Prefix)
	case opts.Ls:
		return ls(cfg, opts.Prefix)
	case opts.Optimize:
		return optimize(cfg, opts.Id)
	case opts.Verify:
		workers := cfg.Workers
		if opts.Workers != "" {
			workers, err = strconv.Atoi(opts.Workers)
			if err != nil {
				return errors.Wrapf(stowbase.ErrInvalid, "workers %q", opts.Workers)
			}
		}
		return verify(cfg, workers)
	case opts.Putstream:
		return putStream(cfg, opts.Filename)
	case opts.Catstream:
		return catStream(cfg, opts.Id, os.Stdout)
	case opts.Log:
		return showLog(cfg, opts.Since)
	}
	return
}

// errVerify reports a verify run that found corrupt objects.
var errVerify = errors.Wrap(stowbase.ErrCorrupt, "verify")

func exitCode(err error) int {
	switch {
	case errors.Is(err, stowbase.ErrNotFound):
		return rcNotFound
	case errors.Is(err, stowbase.ErrAmbiguous):
		return rcAmbiguous
	case errors.Is(err, stowbase.ErrCorrupt):
		return rcCorrupt
	case errors.Is(err, stowbase.ErrInvalid), errors.Is(err, stowbase.ErrUnsupportedAlgo):
		return rcUsage
	}
	return rcOther
}

func openStore(cfg *config.Config) (s *stowbase.Store[[]byte], err error) {
	codec, err := stowbase.NewBytesCodec(cfg.MaxBytes)
	if err != nil {
		return
	}
	return stowbase.Open[[]byte](cfg.Store(), codec)
}

func openStreams(cfg *config.Config) (*stowbase.StreamStore, error) {
	return stowbase.OpenStreamStore(cfg.Store(), stowbase.Chunker{}, 0)
}

// input returns the named file's contents, or stdin's.
func input(filename string) (rd io.ReadCloser, err error) {
	if filename == "" {
		return ioutil.NopCloser(os.Stdin), nil
	}
	return os.Open(filename)
}

func create(cfg *config.Config) (err error) {
	_, err = openStore(cfg)
	if err != nil {
		return
	}
	fmt.Printf("Initialized empty store in %s\n", cfg.Dir)
	return
}

func put(cfg *config.Config, filename string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	rd, err := input(filename)
	if err != nil {
		return
	}
	defer rd.Close()
	buf, err := ioutil.ReadAll(rd)
	if err != nil {
		return
	}
	id, err := s.Write(buf)
	if err != nil {
		return
	}
	fmt.Println(id)
	return
}

func get(cfg *config.Config, id string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	buf, err := s.Read(id)
	if err != nil {
		return
	}
	_, err = os.Stdout.Write(buf)
	return
}

// rel shows file relative to the store root.
func rel(s *stowbase.Store[[]byte], file string) string {
	r, err := filepath.Rel(s.Root(), file)
	if err != nil {
		return file
	}
	return r
}

func find(cfg *config.Config, id string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	file, err := s.File(id)
	if err != nil {
		return
	}
	fmt.Println(rel(s, file))
	return
}

func resolve(cfg *config.Config, prefix string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	id, _, err := s.ResolvePrefix(prefix)
	if err != nil {
		return
	}
	fmt.Println(id)
	return
}

func ls(cfg *config.Config, prefix string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	return s.StreamIds(prefix, func(id string) error {
		_, err := fmt.Println(id)
		return err
	})
}

func optimize(cfg *config.Config, id string) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	file, err := s.Optimize(id)
	if err != nil {
		return
	}
	fmt.Println(rel(s, file))
	return
}

func verify(cfg *config.Config, workers int) (err error) {
	s, err := openStore(cfg)
	if err != nil {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := s.Verify(ctx, workers)
	if err != nil {
		return
	}
	fmt.Printf("checked %d objects, %d corrupt\n", report.Checked, len(report.Corrupt))
	for _, id := range report.Corrupt {
		fmt.Println(id)
	}
	if len(report.Corrupt) > 0 {
		return errVerify
	}
	return
}

func putStream(cfg *config.Config, filename string) (err error) {
	ss, err := openStreams(cfg)
	if err != nil {
		return
	}
	rd, err := input(filename)
	if err != nil {
		return
	}
	defer rd.Close()
	id, err := ss.Put(rd)
	if err != nil {
		return
	}
	fmt.Println(id)
	return
}

func catStream(cfg *config.Config, id string, w io.Writer) (err error) {
	ss, err := openStreams(cfg)
	if err != nil {
		return
	}
	_, err = ss.Cat(id, w)
	return
}

func showLog(cfg *config.Config, since string) (err error) {
	path, err := wlog.Path(cfg.Dir, cfg.Ext)
	if err != nil {
		return
	}
	r, err := wlog.OpenReader(path)
	if os.IsNotExist(errors.Cause(err)) {
		// nothing stowed yet
		return nil
	}
	if err != nil {
		return
	}
	defer r.Close()
	entries, err := r.ListFrom(since)
	if err != nil {
		return
	}
	for _, e := range entries {
		fmt.Printf("%s %s\n", e.Timestamp, e.Hex)
	}
	return
}
