// main.go - Entry point: flags, machine assembly, frontend wiring

/*
 ██▓     ▄▄▄      ▒███████▒ █    ██  ██▓     ██▓
▓██▒    ▒████▄    ▒ ▒ ▒ ▄▀░ ██  ▓██▒▓██▒    ▓██▒
▒██░    ▒██  ▀█▄  ░ ▒ ▄▀▒░ ▓██  ▒██░▒██░    ▒██▒
▒██░    ░██▄▄▄▄██   ▄▀▒   ░▓▓█  ░██░▒██░    ░██░
░██████▒ ▓█   ▓██▒▒███████▒▒▒█████▓ ░██████▒░██░
░ ▒░▓  ░ ▒▒   ▓▒█░░▒▒ ▓░▒░▒░▒▓▒ ▒ ▒ ░ ▒░▓  ░░▓
░ ░ ▒  ░  ▒   ▒▒ ░░░▒ ▒ ░ ▒░░▒░ ░ ░ ░ ░ ▒  ░ ▒ ░
  ░ ░     ░   ▒   ░ ░ ░ ░ ░ ░░░ ░ ░   ░ ░    ▒ ░
    ░  ░      ░  ░  ░ ░       ░         ░  ░ ░
                  ░

(c) 2025 - 2026 the lazuli authors
https://github.com/vxpm/lazuli
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

const BANNER = `lazuli - console hardware execution core`

func main() {
	fs := flag.NewFlagSet("lazuli", flag.ContinueOnError)
	dolPath := fs.String("dol", "", "DOL executable to boot")
	discPath := fs.String("disc", "", "raw disc image to insert")
	iplPath := fs.String("ipl", "", "boot ROM image")
	monitor := fs.Bool("monitor", false, "start paused in the debug monitor")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *dolPath == "" && *iplPath == "" {
		fmt.Fprintln(os.Stderr, "lazuli: need -dol or -ipl to boot from")
		fs.Usage()
		os.Exit(2)
	}

	fmt.Println(BANNER)

	cfg := MachineConfig{}
	var err error
	if *dolPath != "" {
		if cfg.DOL, err = os.ReadFile(*dolPath); err != nil {
			log.Fatalf("lazuli: %v", err)
		}
	}
	if *iplPath != "" {
		if cfg.IPL, err = os.ReadFile(*iplPath); err != nil {
			log.Fatalf("lazuli: %v", err)
		}
	}
	if *discPath != "" {
		if cfg.Disc, err = os.ReadFile(*discPath); err != nil {
			log.Fatalf("lazuli: %v", err)
		}
	}

	video, err := NewEbitenOutput()
	if err != nil {
		log.Fatalf("lazuli: video: %v", err)
	}
	audio, err := NewOtoPlayer()
	if err != nil {
		log.Fatalf("lazuli: audio: %v", err)
	}
	cfg.Video = video
	cfg.Audio = audio

	m, err := NewMachine(cfg)
	if err != nil {
		log.Fatalf("lazuli: %v", err)
	}

	video.Start()
	if err := audio.Start(); err != nil {
		log.Printf("lazuli: audio start: %v", err)
	}

	r := NewRunner(m)
	r.Start()

	if *monitor {
		go func() {
			NewMonitor(r).Run()
			r.Quit()
			os.Exit(0)
		}()
	} else {
		r.Resume()
	}

	// The window loop owns the main goroutine until the user closes it.
	if err := video.Run(r); err != nil {
		log.Printf("lazuli: %v", err)
	}
	r.Quit()
	audio.Stop()
	video.Stop()
}
