package main

import (
	"MoonshotBridge/internal/ai"
	"MoonshotBridge/internal/app/bridge"
	"MoonshotBridge/internal/config"
	"MoonshotBridge/internal/service/image"
	"MoonshotBridge/internal/service/session"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
)

// Модель задаётся общим флагом -model
var (
	query     = flag.String("q", "", "текст запроса")
	imagePath = flag.String("image", "", "путь к картинке (png/jpg)")
	normalize = flag.Bool("normalize", false, "перед отправкой перекодировать картинку в jpg")
	sessionID = flag.String("session", "cli", "идентификатор сессии")
)

func main() {
	store, err := config.NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := store.Current()

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() { _ = logger.Sync() }()

	qc := bridge.Context{Type: bridge.TypeText, SessionID: *sessionID}
	text := *query
	if *imagePath != "" {
		qc.Type = bridge.TypeImage
		text = *imagePath
		if *normalize {
			if text, err = image.NewProcessor().Normalize(*imagePath); err != nil {
				sugar.Fatalw("failed to normalize image", "path", *imagePath, "error", err)
			}
		}
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: ask -q \"вопрос\" | -image path.png")
		os.Exit(2)
	}

	sender, err := ai.NewSender(cfg)
	if err != nil {
		sugar.Fatalw("failed to create sender", "error", err)
	}
	br := bridge.New(store, session.NewManager(store, sugar), ai.NewClient(sender, sugar), sugar)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	reply := br.Handle(ctx, text, qc)

	fmt.Printf("[%s] %s\n", reply.Kind, reply.Content)
	if reply.Kind == bridge.KindError {
		os.Exit(1)
	}
}
