package main

import (
	"log/slog"
	"os"

	"github.com/postwing/postwing/internal/app"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app.Execute()
}
