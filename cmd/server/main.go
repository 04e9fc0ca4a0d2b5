package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"gamelobby/internal/app"
)

func main() {
	a := app.NewApp(app.DefaultConfig())
	a.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutdown signal received...")

	a.Shutdown()
}
