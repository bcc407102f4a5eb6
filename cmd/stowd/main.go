package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/stowbase"
	"github.com/t7a/stowbase/config"
	"github.com/t7a/stowbase/fuse"
	"github.com/t7a/stowbase/stow"
	"github.com/t7a/stowbase/wlog"
)

const usage = `stowd

Usage:
  stowd [-c <config>] stow <dir>
  stowd [-c <config>] mount <dir> <mountpoint>

Options:
  -h --help     Show this screen.
  --version     Show version.
  -c <config>   Configuration file.
`

type Opts struct {
	Stow       bool
	Mount      bool
	Config     string `docopt:"-c"`
	Dir        string `docopt:"<dir>"`
	Mountpoint string `docopt:"<mountpoint>"`
}

func main() {
	rc, msg := Run()
	if len(msg) > 0 {
		fmt.Fprintf(os.Stderr, msg+"\n")
	}
	os.Exit(rc)
}

func Run() (rc int, msg string) {
	defer Halt(&rc, &msg)

	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, os.Args[1:], "0.0")
	var opts Opts
	err := o.Bind(&opts)
	Ck(err)

	cfg, err := config.Load(opts.Config)
	Ck(err)
	if opts.Dir != "" {
		cfg.Dir = opts.Dir
	}
	err = cfg.Logging.Apply()
	Ck(err)

	// stop on SIGINT or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if opts.Stow {
		err = runStower(cfg, sig, nil)
		Ck(err)
	}

	if opts.Mount {
		err = serve(cfg, opts.Mountpoint, sig)
		Ck(err)
	}

	return
}

// runStower stows files dropped into the configured directories until
// stop fires.
func runStower(cfg *config.Config, stop <-chan os.Signal, stowed func(src, id string)) (err error) {
	defer Return(&err)

	fs, err := stowbase.OpenFileStore(cfg.Store(), true)
	Ck(err)

	var l wlog.Log
	if cfg.Stow.WriteLog {
		l, err = wlog.OpenForStore(fs.HexPath().Root(), cfg.Ext)
		Ck(err)
	}

	s, err := stow.New(fs, l, cfg.Stow.Dirs...)
	Ck(err)
	s.Stowed = func(src, id string) {
		log.Infof("%s -> %s", src, id)
		if stowed != nil {
			stowed(src, id)
		}
	}
	defer func() {
		cerr := s.Close()
		if err == nil {
			err = cerr
		}
	}()
	err = s.Start()
	Ck(err)

	got := <-stop
	log.Infof("%v: stopping", got)
	return
}

func serve(cfg *config.Config, mountpoint string, stop <-chan os.Signal) (err error) {
	defer Return(&err)

	codec, err := stowbase.NewBytesCodec(cfg.MaxBytes)
	Ck(err)
	store, err := stowbase.Open[[]byte](cfg.Store(), codec)
	Ck(err)

	var server *gofuse.Server
	server, err = fuse.Serve(store, mountpoint, cfg.Mount.Debug)
	Ck(err)

	// unmount on signal
	go func() {
		got := <-stop
		log.Infof("%v: unmounting %s", got, mountpoint)
		umount(server)
	}()

	server.Wait()
	return
}

func umount(server *gofuse.Server) {
	if server != nil {
		err := server.Unmount()
		if err != nil {
			log.Error(err)
		}
	}
}
