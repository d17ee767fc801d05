// Command sr400scan runs the coordinated generator and counter scan without
// the GUI, or prints the column means of a recorded data file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/reading"
	"github.com/itohio/gosr400/pkg/report"
	"github.com/itohio/gosr400/pkg/sequence"
	"github.com/itohio/gosr400/pkg/sr400"
	"github.com/itohio/gosr400/pkg/wavegen"
	"github.com/theckman/yacspin"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		genFlag    = flag.String("gen", "", "Generator port override (e.g., COM4 or /dev/ttyUSB1)")
		portFlag   = flag.String("p", "", "Counter port override (e.g., COM3 or /dev/ttyUSB0)")
		mockFlag   = flag.Bool("mock", false, "Use a mocked counter and log generator commands")
		meanFlag   = flag.String("mean", "", "Print the column means of a data file and exit")
		debugFlag  = flag.Bool("debug", false, "Log every command sent")
	)
	flag.Parse()

	if *meanFlag != "" {
		if err := printMeans(os.Stdout, *meanFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Instrument.Port = *portFlag
	}
	if *genFlag != "" {
		cfg.Generator.Port = *genFlag
	}
	if *mockFlag {
		cfg.Instrument.Transport = config.TransportMock
	}
	cfg.Instrument.Debug = cfg.Instrument.Debug || *debugFlag

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *mockFlag); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("Scan cancelled")
			os.Exit(130)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, mock bool) (err error) {
	p := sequence.FromConfig(cfg.Scan)
	if err := p.Validate(); err != nil {
		return err
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " scan",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return fmt.Errorf("failed to create spinner: %w", err)
	}

	gen, err := openGenerator(cfg, mock)
	if err != nil {
		return err
	}
	gen.SetDebug(cfg.Instrument.Debug)
	defer func() {
		if cerr := gen.Close(); cerr != nil {
			log.Printf("Failed to close generator: %v", cerr)
		}
	}()

	dev, err := sr400.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to counter: %w", err)
	}
	defer dev.Close()

	if err := spinner.Start(); err != nil {
		return fmt.Errorf("failed to start spinner: %w", err)
	}
	logf := func(format string, args ...any) {
		spinner.Message(fmt.Sprintf(format, args...))
	}

	start := time.Now()
	if err := sequence.Run(ctx, gen, dev, p, logf); err != nil {
		spinner.StopFailMessage(err.Error())
		_ = spinner.StopFail()
		return err
	}

	spinner.StopMessage(fmt.Sprintf("%d cycles in %s", p.Cycles, time.Since(start).Round(time.Millisecond)))
	return spinner.Stop()
}

// openGenerator opens the generator port. A mock generator logs its commands
// instead.
func openGenerator(cfg *config.Config, mock bool) (*wavegen.Generator, error) {
	if mock {
		return wavegen.New(logWriter{}, cfg.Generator.CommandDelay), nil
	}
	return wavegen.Open(cfg.Generator.Port, cfg.Generator.BaudRate, cfg.Generator.CommandDelay, cfg.Generator.OpenTimeout)
}

// logWriter sends every write to the log.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Printf("gen <- %s", strings.TrimSpace(string(p)))
	return len(p), nil
}

func printMeans(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sep := reading.Space
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		sep = reading.Comma
	}

	cols, err := report.ColumnMeans(f, sep)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, c := range cols {
		fmt.Fprintf(w, "%s\t%s\t(n=%d)\n", c.Name, reading.FormatFloat(c.Mean), c.N)
	}
	return nil
}
