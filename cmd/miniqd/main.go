package main

import (
	"context"
	"errors"
	"log"

	"miniq/internal/daemonrun"
)

func main() {
	cfg, err := loadConfig(configPathFromEnv())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("miniqd: %v", err)
	}
}
