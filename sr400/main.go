package main

import (
	"flag"
	"log"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gosr400/pkg/acquire"
	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/monitor"
	"github.com/itohio/gosr400/pkg/recorder"
	"github.com/itohio/gosr400/pkg/scope"
	"github.com/itohio/gosr400/pkg/sr400"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Instrument port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked counter instead of the instrument")
		fileFlag   = flag.String("file", "", "Tail a data file instead of reading the instrument")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Instrument.Port = *portFlag
	}
	if *mockFlag {
		cfg.Instrument.Transport = config.TransportMock
	}

	application := app.NewWithID("com.itohio.gosr400")

	window := application.NewWindow("SR400 Photon Counter")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	worker := acquire.NewWorker(cfg.Acquisition.QueueSize)
	rec := recorder.New(cfg.Recorder.Dir, cfg.Recorder.Prefix)

	state := &appState{
		cfg:           cfg,
		configPath:    *configFlag,
		window:        window,
		dataFile:      *fileFlag,
		worker:        worker,
		rec:           rec,
		monitor:       monitor.New(worker.Queue(), cfg.Display, rec),
		recordOnStart: cfg.Recorder.RecordOnStart,
		closing:       make(chan struct{}),
	}
	if state.dataFile != "" {
		state.fileSource = &acquire.FileSource{Path: state.dataFile, Interval: cfg.Display.UpdateInterval}
	}
	state.monitor.OnUpdate(func(monitor.Snapshot) {
		state.dirty.Store(true)
	})

	state.scopeWidget = scope.New(10 * time.Second)

	content := container.NewBorder(
		createToolbar(state),
		createStatusBar(state),
		nil,
		createValuePanel(state),
		state.scopeWidget,
	)
	window.SetContent(content)
	window.SetOnClosed(func() {
		shutdown(state)
	})

	updateButtonStates(state)
	go runDisplayLoop(state)

	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	window     fyne.Window
	dataFile   string
	// fileSource keeps its offset across Stop and Start.
	fileSource *acquire.FileSource

	device  sr400.Device
	poller  *acquire.Poller
	worker  *acquire.Worker
	rec     *recorder.Recorder
	monitor *monitor.Monitor

	scopeWidget *scope.ScopeWidget

	connectBtn       *widget.Button
	startBtn         *widget.Button
	stopBtn          *widget.Button
	recordBtn        *widget.Button
	recordOnStartBtn *widget.Button

	tsetEntry        *widget.Entry
	periodsEntry     *widget.Entry
	experimentsEntry *widget.Entry
	pollQA, pollQB   *widget.Check

	aLabel, bLabel   *widget.Label
	qaLabel, qbLabel *widget.Label
	avgLabel         *widget.Label
	linesLabel       *widget.Label
	statusLabel      *widget.Label

	recordOnStart bool
	dirty         atomic.Bool
	closing       chan struct{}
}

// createToolbar creates the toolbar with Connect, Settings, Start, Stop,
// Record, Record on Start and Export buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("Connect", theme.LoginIcon(), func() {
		handleConnect(state)
	})

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		handleStart(state)
	})
	state.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		handleStop(state)
	})
	state.recordBtn = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() {
		handleRecord(state)
	})
	state.recordOnStartBtn = widget.NewButton(recordOnStartText(state.recordOnStart), func() {
		state.recordOnStart = !state.recordOnStart
		state.recordOnStartBtn.SetText(recordOnStartText(state.recordOnStart))
	})

	exportBtn := widget.NewButtonWithIcon("", theme.DocumentSaveIcon(), func() {
		handleExport(state)
	})

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.connectBtn, settingsBtn),
		container.NewHBox(exportBtn),
		container.NewHBox(state.startBtn, state.stopBtn, state.recordBtn, state.recordOnStartBtn),
	)
}

// createValuePanel creates the parameter entries and value labels.
func createValuePanel(state *appState) fyne.CanvasObject {
	state.tsetEntry = newValidatedEntry(formatTset(state.cfg.Acquisition.Tset), tsetValidator)
	state.periodsEntry = newValidatedEntry(itoa(state.cfg.Acquisition.Periods), periodsValidator)
	state.experimentsEntry = newValidatedEntry(itoa(state.cfg.Acquisition.Experiments), experimentsValidator)

	state.pollQA = widget.NewCheck("Poll QA", func(on bool) {
		state.cfg.Acquisition.PollQA = on
		restartPoller(state)
	})
	state.pollQA.SetChecked(state.cfg.Acquisition.PollQA)
	state.pollQB = widget.NewCheck("Poll QB", func(on bool) {
		state.cfg.Acquisition.PollQB = on
		restartPoller(state)
	})
	state.pollQB.SetChecked(state.cfg.Acquisition.PollQB)

	params := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Tset (s)", Widget: state.tsetEntry},
			{Text: "N periods", Widget: state.periodsEntry},
			{Text: "M experiments", Widget: state.experimentsEntry},
		},
	}

	state.aLabel = widget.NewLabel(formatValue(0))
	state.bLabel = widget.NewLabel(formatValue(0))
	state.qaLabel = widget.NewLabel(formatValue(0))
	state.qbLabel = widget.NewLabel(formatValue(0))
	state.avgLabel = widget.NewLabel(formatValue(0))

	values := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "A", Widget: state.aLabel},
			{Text: "B", Widget: state.bLabel},
			{Text: "QA", Widget: state.qaLabel},
			{Text: "QB", Widget: state.qbLabel},
			{Text: "Avg", Widget: state.avgLabel},
		},
	}

	state.linesLabel = widget.NewLabel("")
	state.linesLabel.TextStyle = fyne.TextStyle{Monospace: true}

	return container.NewVBox(
		widget.NewLabelWithStyle("Parameters", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		params,
		container.NewHBox(state.pollQA, state.pollQB),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Values", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		values,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Recent data", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		state.linesLabel,
	)
}

func createStatusBar(state *appState) fyne.CanvasObject {
	state.statusLabel = widget.NewLabel("Disconnected")
	if state.dataFile != "" {
		state.statusLabel.SetText("Source: " + state.dataFile)
	}
	return state.statusLabel
}

func recordOnStartText(on bool) string {
	if on {
		return "Record on Start: On"
	}
	return "Record on Start: Off"
}
