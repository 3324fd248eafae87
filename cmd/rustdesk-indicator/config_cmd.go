package main

import (
	"fmt"
	"os"

	"github.com/e7d/rustdesk-indicator/internal/config"
)

// handleConfig manages config.toml (init, path).
func handleConfig(args []string) {
	if len(args) == 0 {
		printConfigHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "path":
		path, err := config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)

	case "init":
		path, err := config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		written, err := config.CreateExample()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		if written {
			fmt.Printf("%s Wrote example config to %s\n", successSymbol, path)
		} else {
			fmt.Printf("%s %s already exists, left untouched\n", bulletSymbol, path)
		}

	case "help", "--help", "-h":
		printConfigHelp()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown config command %q\n", args[0])
		printConfigHelp()
		os.Exit(1)
	}
}

func printConfigHelp() {
	fmt.Println("Usage: rustdesk-indicator config <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init    Write a commented example config.toml (never overwrites)")
	fmt.Println("  path    Print the config.toml location")
}
