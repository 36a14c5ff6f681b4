package main

import (
	"context"
	"os"

	"github.com/sqlanalyst/sqlanalyst/internal/cli/chat"
)

func main() {
	if err := chat.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
