package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/garnizeh/campuscare/internal/config"
)

// Restore must run while the server is stopped.
func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	in := flag.String("in", "", "Backup file (default: <database_path>.bak)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	dst := cfg.DatabasePath
	src := *in
	if src == "" {
		src = dst + ".bak"
	}

	srcFile, err := os.Open(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	defer srcFile.Close()

	// stale journal files would be replayed over the restored database
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(dst + suffix); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
			os.Exit(1)
		}
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database restored from %s.\n", src)
}
