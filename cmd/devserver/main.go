// devserver runs the in-memory stub server so the client can be exercised
// without the real backend.
package main

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/ccr-game/client/internal/testserver"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	addr := ":5000"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	srv := testserver.New(log)
	log.Info("devserver listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}
