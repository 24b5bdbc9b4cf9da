package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/joho/godotenv"
	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/adminapi"
	"github.com/silamd/wabothub/internal/app"
	"github.com/silamd/wabothub/internal/archive"
	"github.com/silamd/wabothub/internal/dispatcher"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/supervisor"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/silamd/wabothub/internal/whatsapp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	h        bool
	showVer  bool
	conffile string
)

func init() {
	flag.BoolVar(&h, "h", false, "help usage")
	flag.BoolVar(&showVer, "v", false, "show version")
	flag.StringVar(&conffile, "c", "", "config yaml file")
}

func printHelp() {
	if h {
		fmt.Fprintf(os.Stderr, "wabothub usage:\n")
		flag.PrintDefaults()
		os.Exit(0)
	}
}

func main() {
	flag.Parse()
	printHelp()
	if showVer {
		fmt.Println("wabothub")
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg := config.LoadConfig(conffile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	bus := EventBus.New()
	botStore := store.New(application.DB())

	var blob archive.Blob
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCSBlob(context.Background(), cfg.Archive.Bucket, cfg.Archive.CredentialFile)
		if err != nil {
			zap.L().Fatal("session archive init failed", zap.Error(err))
		}
		blob = gcs
	} else {
		zap.L().Warn("no archive bucket configured, session ids will be local only")
	}
	vault := archive.NewVault(blob, cfg.Bot.SessionBasePath, cfg.System.Workdir)

	factory := whatsapp.NewMeowFactory(bus)
	sup := supervisor.New(cfg, supervisor.NewRegistry(), botStore, vault, factory, application)
	boot := supervisor.NewBootstrapper(sup, botStore, vault)

	disp := dispatcher.New(cfg, bus, botStore, application)
	if err := disp.Start(); err != nil {
		zap.L().Fatal("dispatcher start failed", zap.Error(err))
	}

	ws := webserver.Init(cfg, application.DB())
	adminapi.InitRouter(cfg, sup, botStore)

	if spec := cfg.Bot.ReconnectSweep; spec != "" {
		_, err := application.Scheduler().AddFunc(spec, func() {
			boot.StartAll(context.Background())
		})
		if err != nil {
			zap.L().Error("reconnect sweep schedule invalid", zap.String("spec", spec), zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return ws.Start()
	})

	g.Go(func() error {
		// give the http listener a moment before hammering reconnects
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil
		}
		boot.StartAll(ctx)
		return nil
	})

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			zap.L().Info("shutdown signal received", zap.String("signal", s.String()))
			sup.Registry().CloseAll()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ws.Echo().Shutdown(shutdownCtx)
		case <-ctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		zap.L().Panic("server exited", zap.Error(err))
	}
}
