package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/nhle/reminders/internal/cli"
)

func main() {
	// A .env file is optional; REMINDERS_* variables may come from the shell.
	_ = godotenv.Load()

	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
