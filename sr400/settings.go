package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/param"
	"github.com/itohio/gosr400/pkg/sr400"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createInstrumentTab(state),
		createAcquisitionTab(state),
		createRecorderTab(state),
		createDisplayTab(state),
		createScanTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) bool {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// portSelect lists the serial ports, keeping current selectable even when it
// is not present.
func portSelect(current string) (*widget.Select, map[string]string) {
	ports, err := sr400.Ports()
	options := []string{}
	portMap := make(map[string]string) // display name -> port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			options = append(options, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentDisplay := current
	found := false
	for _, opt := range options {
		if portMap[opt] == current {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && current != "" {
		options = append(options, current)
		portMap[current] = current
	}

	sel := widget.NewSelect(options, nil)
	if currentDisplay != "" {
		sel.SetSelected(currentDisplay)
	}
	return sel, portMap
}

func selectedPort(sel *widget.Select, portMap map[string]string) string {
	if p := portMap[sel.Selected]; p != "" {
		return p
	}
	return sel.Selected
}

// createInstrumentTab creates the counter connection tab. Changing it while
// connected reconnects.
func createInstrumentTab(state *appState) *container.TabItem {
	transportSelect := widget.NewSelect([]string{config.TransportSerial, config.TransportGPIB, config.TransportMock}, nil)
	transportSelect.SetSelected(state.cfg.Instrument.Transport)

	ports, portMap := portSelect(state.cfg.Instrument.Port)

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Instrument.BaudRate))

	addrEntry := widget.NewEntry()
	addrEntry.SetText(strconv.Itoa(state.cfg.Instrument.GPIBAddress))

	readTimeoutEntry := widget.NewEntry()
	readTimeoutEntry.SetText(state.cfg.Instrument.ReadTimeout.String())

	openTimeoutEntry := widget.NewEntry()
	openTimeoutEntry.SetText(state.cfg.Instrument.OpenTimeout.String())

	debugCheck := widget.NewCheck("", nil)
	debugCheck.SetChecked(state.cfg.Instrument.Debug)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Transport", Widget: transportSelect},
			{Text: "Port", Widget: ports},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "GPIB Address", Widget: addrEntry},
			{Text: "Read Timeout", Widget: readTimeoutEntry},
			{Text: "Open Timeout", Widget: openTimeoutEntry},
			{Text: "Log Commands", Widget: debugCheck},
		},
		OnSubmit: func() {
			old := state.cfg.Instrument
			in := &state.cfg.Instrument

			if transportSelect.Selected != "" {
				in.Transport = transportSelect.Selected
			}
			if ports.Selected != "" {
				in.Port = selectedPort(ports, portMap)
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				in.BaudRate = baud
			}
			if addr, err := strconv.Atoi(addrEntry.Text); err == nil && addr >= 0 && addr <= 30 {
				in.GPIBAddress = addr
			}
			if rt, err := time.ParseDuration(readTimeoutEntry.Text); err == nil {
				in.ReadTimeout = rt
			}
			if ot, err := time.ParseDuration(openTimeoutEntry.Text); err == nil {
				in.OpenTimeout = ot
			}
			in.Debug = debugCheck.Checked

			if !saveConfig(state) {
				return
			}

			if *in != old && state.device != nil {
				disconnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Instrument", form)
}

// createAcquisitionTab creates the run parameter tab.
func createAcquisitionTab(state *appState) *container.TabItem {
	acq := &state.cfg.Acquisition

	channelSelect := widget.NewSelect([]string{"A", "B", "T"}, nil)
	channelSelect.SetSelected(acq.Channel)

	pauseEntry := widget.NewEntry()
	pauseEntry.SetText(acq.Pause.String())

	settleEntry := widget.NewEntry()
	settleEntry.SetText(acq.Settle.String())

	pollEntry := widget.NewEntry()
	pollEntry.SetText(acq.PollInterval.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Dump Channel", Widget: channelSelect},
			{Text: "Pause Between Experiments", Widget: pauseEntry},
			{Text: "Settle Delay", Widget: settleEntry},
			{Text: "Poll Interval", Widget: pollEntry},
		},
		OnSubmit: func() {
			if channelSelect.Selected != "" {
				acq.Channel = channelSelect.Selected
			}
			if p, err := time.ParseDuration(pauseEntry.Text); err == nil && p >= 0 {
				acq.Pause = p
			}
			if s, err := time.ParseDuration(settleEntry.Text); err == nil && s >= 0 {
				acq.Settle = s
			}
			pollChanged := false
			if pi, err := time.ParseDuration(pollEntry.Text); err == nil && pi > 0 {
				pollChanged = acq.PollInterval != pi
				acq.PollInterval = pi
			}
			if !saveConfig(state) {
				return
			}

			if pollChanged && state.device != nil {
				state.poller.SetInterval(acq.PollInterval)
				restartPoller(state)
			}
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// createRecorderTab creates the data logging tab. The directory and prefix
// apply to the next recording.
func createRecorderTab(state *appState) *container.TabItem {
	dirEntry := widget.NewEntry()
	dirEntry.SetText(state.cfg.Recorder.Dir)

	prefixEntry := widget.NewEntry()
	prefixEntry.SetText(state.cfg.Recorder.Prefix)

	recordOnStart := widget.NewCheck("", nil)
	recordOnStart.SetChecked(state.cfg.Recorder.RecordOnStart)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Directory", Widget: dirEntry},
			{Text: "File Prefix", Widget: prefixEntry},
			{Text: "Record on Start", Widget: recordOnStart},
		},
		OnSubmit: func() {
			if dirEntry.Text != "" {
				state.cfg.Recorder.Dir = dirEntry.Text
			}
			if prefixEntry.Text != "" {
				state.cfg.Recorder.Prefix = prefixEntry.Text
			}
			state.cfg.Recorder.RecordOnStart = recordOnStart.Checked
			state.recordOnStart = recordOnStart.Checked
			state.recordOnStartBtn.SetText(recordOnStartText(state.recordOnStart))
			state.rec.SetLocation(state.cfg.Recorder.Dir, state.cfg.Recorder.Prefix)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Recorder", form)
}

// createDisplayTab creates the display tab. History sizes apply after restart.
func createDisplayTab(state *appState) *container.TabItem {
	updateEntry := widget.NewEntry()
	updateEntry.SetText(state.cfg.Display.UpdateInterval.String())

	pointsEntry := widget.NewEntry()
	pointsEntry.SetText(strconv.Itoa(state.cfg.Display.MaxDataPoints))

	linesEntry := widget.NewEntry()
	linesEntry.SetText(strconv.Itoa(state.cfg.Display.RecentLines))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Update Interval", Widget: updateEntry},
			{Text: "Max Data Points", Widget: pointsEntry},
			{Text: "Recent Lines", Widget: linesEntry},
		},
		OnSubmit: func() {
			if ui, err := time.ParseDuration(updateEntry.Text); err == nil && ui > 0 {
				state.cfg.Display.UpdateInterval = ui
			}
			if mp, err := strconv.Atoi(pointsEntry.Text); err == nil && mp > 0 {
				state.cfg.Display.MaxDataPoints = mp
			}
			if rl, err := strconv.Atoi(linesEntry.Text); err == nil && rl > 0 {
				state.cfg.Display.RecentLines = rl
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Display", form)
}

// createScanTab edits the generator link and the scan sequence used by
// sr400scan.
func createScanTab(state *appState) *container.TabItem {
	gen := &state.cfg.Generator
	scan := &state.cfg.Scan

	genPorts, genPortMap := portSelect(gen.Port)

	genBaudEntry := widget.NewEntry()
	genBaudEntry.SetText(strconv.Itoa(gen.BaudRate))

	hzEntry := widget.NewEntry()
	hzEntry.SetText(strconv.Itoa(scan.Hz))
	hzEntry.Validator = intValidator(param.HzRange)

	cyclesEntry := widget.NewEntry()
	cyclesEntry.SetText(strconv.Itoa(scan.Cycles))
	cyclesEntry.Validator = intValidator(param.CyclesRange)

	rampStepsEntry := widget.NewEntry()
	rampStepsEntry.SetText(strconv.Itoa(scan.RampSteps))

	tsetEntry := widget.NewEntry()
	tsetEntry.SetText(formatTset(scan.Tset))
	tsetEntry.Validator = tsetValidator

	dwellEntry := widget.NewEntry()
	dwellEntry.SetText(formatTset(scan.Dwell))
	dwellEntry.Validator = floatValidator(param.DwellRange)

	levelEntry := widget.NewEntry()
	levelEntry.SetText(fmt.Sprintf("%.3f", scan.Level))
	levelEntry.Validator = floatValidator(param.LevelRange)

	stepEntry := widget.NewEntry()
	stepEntry.SetText(fmt.Sprintf("%.3f", scan.Step))
	stepEntry.Validator = floatValidator(param.StepRange)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Generator Port", Widget: genPorts},
			{Text: "Generator Baud Rate", Widget: genBaudEntry},
			{Text: "Frequency (Hz)", Widget: hzEntry},
			{Text: "Cycles", Widget: cyclesEntry},
			{Text: "Ramp Steps", Widget: rampStepsEntry},
			{Text: "Tset (s)", Widget: tsetEntry},
			{Text: "Dwell (s)", Widget: dwellEntry},
			{Text: "Scan Level (V)", Widget: levelEntry},
			{Text: "Scan Step (V)", Widget: stepEntry},
		},
		OnSubmit: func() {
			if genPorts.Selected != "" {
				gen.Port = selectedPort(genPorts, genPortMap)
			}
			if baud, err := strconv.Atoi(genBaudEntry.Text); err == nil && baud > 0 {
				gen.BaudRate = baud
			}
			if hz, err := param.HzRange.Parse(hzEntry.Text); err == nil {
				scan.Hz = hz
			}
			if c, err := param.Cycles(cyclesEntry.Text); err == nil {
				scan.Cycles = c
			}
			if rs, err := strconv.Atoi(rampStepsEntry.Text); err == nil && rs > 0 {
				scan.RampSteps = rs
			}
			if t, err := param.Tset(tsetEntry.Text); err == nil {
				scan.Tset = t
			}
			if d, err := param.Dwell(dwellEntry.Text); err == nil {
				scan.Dwell = d
			}
			if l, err := param.ScanLevel(levelEntry.Text); err == nil {
				scan.Level = l
			}
			if s, err := param.ScanStep(stepEntry.Text); err == nil {
				scan.Step = s
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Scan", form)
}

// createMockTab creates the Mock counter configuration tab.
func createMockTab(state *appState) *container.TabItem {
	rateAEntry := widget.NewEntry()
	rateAEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.RateA))

	rateBEntry := widget.NewEntry()
	rateBEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.RateB))

	seedEntry := widget.NewEntry()
	seedEntry.SetText(strconv.FormatInt(state.cfg.Mock.Seed, 10))

	timeScaleEntry := widget.NewEntry()
	timeScaleEntry.SetText(fmt.Sprintf("%g", state.cfg.Mock.TimeScale))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Rate A (counts/s)", Widget: rateAEntry},
			{Text: "Rate B (counts/s)", Widget: rateBEntry},
			{Text: "Seed", Widget: seedEntry},
			{Text: "Time Scale", Widget: timeScaleEntry},
		},
		OnSubmit: func() {
			if ra, err := strconv.ParseFloat(rateAEntry.Text, 64); err == nil && ra >= 0 {
				state.cfg.Mock.RateA = ra
			}
			if rb, err := strconv.ParseFloat(rateBEntry.Text, 64); err == nil && rb >= 0 {
				state.cfg.Mock.RateB = rb
			}
			if seed, err := strconv.ParseInt(seedEntry.Text, 10, 64); err == nil {
				state.cfg.Mock.Seed = seed
			}
			if ts, err := strconv.ParseFloat(timeScaleEntry.Text, 64); err == nil && ts > 0 {
				state.cfg.Mock.TimeScale = ts
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}

func intValidator(r param.IntRange) fyne.StringValidator {
	return param.Partial(r.Parse)
}

func floatValidator(r param.FloatRange) fyne.StringValidator {
	return param.Partial(r.Parse)
}
