package main

import (
	"log"
	"net/http"

	"orcaflow/internal/api"
	"orcaflow/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	h := api.NewServer(cfg)
	log.Printf("orcaflow api listening on %s models=%q doc_backend=%s", cfg.APIAddr, cfg.ModelCandidates, cfg.DocBackend)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
