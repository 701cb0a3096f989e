package main

import (
	"flag"
	"log"

	"github.com/danmuck/wirekit/internal/config"
)

func main() {
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to cmd/wirectl/wirectl.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	const defaultPath = "cmd/wirectl/wirectl.toml"

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated wirectl config at %s", path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote wirectl config template to %s", target)
}
