package main

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gosr400/pkg/acquire"
	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/monitor"
	"github.com/itohio/gosr400/pkg/param"
	"github.com/itohio/gosr400/pkg/reading"
	"github.com/itohio/gosr400/pkg/report"
	"github.com/itohio/gosr400/pkg/sr400"
)

var errNotConnected = errors.New("counter is not connected")

// handleConnect opens or closes the counter. In file mode there is nothing to
// connect to.
func handleConnect(state *appState) {
	if state.dataFile != "" {
		return
	}

	if state.device != nil {
		disconnect(state)
		state.statusLabel.SetText("Disconnected")
		updateButtonStates(state)
		return
	}

	device, err := sr400.Open(state.cfg)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Instrument.Port, err), state.window)
		return
	}
	state.device = device
	state.poller = acquire.NewPoller(device, state.cfg.Acquisition.PollInterval)
	restartPoller(state)

	status := fmt.Sprintf("Connected to %s (%s)", state.cfg.Instrument.Port, state.cfg.Instrument.Transport)
	if state.cfg.Instrument.Transport == config.TransportMock {
		status = "Connected to mocked counter"
	}
	log.Println(status)
	state.statusLabel.SetText(status)
	updateButtonStates(state)
}

// disconnect stops everything using the device before closing it.
func disconnect(state *appState) {
	if state.poller != nil {
		state.poller.Stop()
	}
	state.worker.Stop()
	state.worker.Wait()
	if state.poller != nil {
		state.poller.Wait()
		state.poller = nil
	}
	if state.device != nil {
		if err := state.device.Close(); err != nil {
			log.Printf("Failed to close counter: %v", err)
		}
		state.device = nil
	}
	log.Println("Disconnected from counter")
}

// handleStart validates the parameters and starts a session.
func handleStart(state *appState) {
	if state.worker.Running() {
		return
	}

	var src acquire.Source
	if state.fileSource != nil {
		src = state.fileSource
	} else {
		if state.device == nil {
			dialog.ShowError(errNotConnected, state.window)
			return
		}
		p, experiments, err := runParams(state)
		if err != nil {
			dialog.ShowError(err, state.window)
			return
		}
		src = &acquire.DeviceSource{
			Device:      state.device,
			Params:      p,
			Experiments: experiments,
			Pause:       state.cfg.Acquisition.Pause,
		}
		state.cfg.Acquisition.Tset = p.Tset
		state.cfg.Acquisition.Periods = p.Periods
		state.cfg.Acquisition.Experiments = experiments
	}

	state.monitor.Reset()
	if state.recordOnStart && !state.rec.Recording() {
		if err := state.rec.Start(time.Now()); err != nil {
			dialog.ShowError(fmt.Errorf("failed to start recording: %w", err), state.window)
		}
	}
	if err := state.worker.Start(src); err != nil {
		stopRecording(state)
		dialog.ShowError(err, state.window)
		return
	}
	updateButtonStates(state)
}

// runParams reads the run parameters from the entries.
func runParams(state *appState) (sr400.RunParams, int, error) {
	ch, err := sr400.ParseChannel(state.cfg.Acquisition.Channel)
	if err != nil {
		return sr400.RunParams{}, 0, err
	}
	tset, err := param.Tset(state.tsetEntry.Text)
	if err != nil {
		return sr400.RunParams{}, 0, err
	}
	periods, err := param.Periods(state.periodsEntry.Text)
	if err != nil {
		return sr400.RunParams{}, 0, err
	}
	experiments, err := param.Experiments(state.experimentsEntry.Text)
	if err != nil {
		return sr400.RunParams{}, 0, err
	}
	return sr400.RunParams{
		Channel: ch,
		Tset:    tset,
		Periods: periods,
		Settle:  state.cfg.Acquisition.Settle,
	}, experiments, nil
}

// handleStop requests the session to stop. Button states follow the Stopped
// event.
func handleStop(state *appState) {
	state.worker.Stop()
	stopRecording(state)
}

func handleRecord(state *appState) {
	if _, err := state.rec.Toggle(time.Now()); err != nil {
		dialog.ShowError(fmt.Errorf("failed to toggle recording: %w", err), state.window)
	}
	updateButtonStates(state)
}

func stopRecording(state *appState) {
	if !state.rec.Recording() {
		return
	}
	if err := state.rec.Stop(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to stop recording: %w", err), state.window)
	}
	updateButtonStates(state)
}

// handleExport saves the displayed history and the experiment values as
// PNG plots next to the recordings.
func handleExport(state *appState) {
	snap := state.monitor.Snapshot()
	stamp := time.Now().Format("20060102_150405")

	var lines []report.Line
	for _, name := range []string{monitor.SeriesA, monitor.SeriesB, monitor.SeriesX} {
		lines = append(lines, report.TimeLine(name, snap.Times, snap.Series[name]))
	}
	path := filepath.Join(state.cfg.Recorder.Dir, "plot_"+stamp+".png")
	if err := report.SavePNG(path, "SR400", "Time (s)", "Counts", lines...); err != nil {
		dialog.ShowError(fmt.Errorf("failed to export plot: %w", err), state.window)
		return
	}
	exported := []string{path}

	if len(snap.Experiments[monitor.SeriesValue]) > 0 {
		expPath := filepath.Join(state.cfg.Recorder.Dir, "experiments_"+stamp+".png")
		err := report.SavePNG(expPath, "Experiments", "Experiment", "Counts",
			report.IndexLine(monitor.SeriesValue, snap.Experiments[monitor.SeriesValue]),
			report.IndexLine(monitor.SeriesX, snap.Experiments[monitor.SeriesX]),
		)
		if err != nil {
			dialog.ShowError(fmt.Errorf("failed to export experiments: %w", err), state.window)
			return
		}
		exported = append(exported, expPath)
	}

	log.Printf("Exported %v", exported)
	state.statusLabel.SetText(fmt.Sprintf("Exported %s", filepath.Base(path)))
}

// restartPoller polls the checked Q channels while connected.
func restartPoller(state *appState) {
	if state.poller == nil {
		return
	}
	var channels []sr400.Channel
	if state.cfg.Acquisition.PollQA {
		channels = append(channels, sr400.ChannelA)
	}
	if state.cfg.Acquisition.PollQB {
		channels = append(channels, sr400.ChannelB)
	}
	state.poller.Start(state.monitor.SetQ, channels...)
}

// updateButtonStates must run on the UI goroutine.
func updateButtonStates(state *appState) {
	running := state.worker.Running()
	ready := state.device != nil || state.dataFile != ""

	if state.dataFile != "" {
		state.connectBtn.Disable()
	} else if state.device != nil {
		state.connectBtn.SetText("Disconnect")
	} else {
		state.connectBtn.SetText("Connect")
	}
	setEnabled(state.startBtn, ready && !running)
	setEnabled(state.stopBtn, running)

	if state.rec.Recording() {
		state.recordBtn.SetText("Stop Rec")
	} else {
		state.recordBtn.SetText("Record")
	}

	for _, e := range []*widget.Entry{state.tsetEntry, state.periodsEntry, state.experimentsEntry} {
		if e == nil {
			continue
		}
		if running || state.dataFile != "" {
			e.Disable()
		} else {
			e.Enable()
		}
	}
}

func setEnabled(w fyne.Disableable, on bool) {
	if on {
		w.Enable()
	} else {
		w.Disable()
	}
}

// runDisplayLoop drains the queue and the worker events on the display
// interval and pushes changes to the widgets.
func runDisplayLoop(state *appState) {
	ticker := time.NewTicker(state.cfg.Display.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-state.closing:
			return
		case e := <-state.worker.Events():
			handleEvent(state, e)
		case <-ticker.C:
			state.monitor.Drain()
			if state.dirty.Swap(false) {
				snap := state.monitor.Snapshot()
				fyne.Do(func() {
					updateValues(state, snap)
				})
			}
		}
	}
}

// handleEvent runs on the display loop goroutine.
func handleEvent(state *appState, e acquire.Event) {
	switch e.Kind {
	case acquire.Experiment:
		// The experiment's rows were queued before the event.
		state.monitor.Drain()
		state.monitor.ObserveExperiment(e)
		log.Printf("Experiment %d of %d: A=%s B=%s X=%s", e.Index, e.Total,
			reading.FormatFloat(e.AvgA), reading.FormatFloat(e.AvgB), reading.FormatFloat(e.X))
		fyne.Do(func() {
			state.statusLabel.SetText(fmt.Sprintf("Experiment %d of %d", e.Index, e.Total))
		})
	case acquire.Started:
		fyne.Do(func() {
			state.statusLabel.SetText("Running")
			updateButtonStates(state)
		})
	case acquire.Completed, acquire.Stopped, acquire.Failed:
		state.monitor.Drain()
		fyne.Do(func() {
			stopRecording(state)
			updateButtonStates(state)
			state.statusLabel.SetText(statusText(e))
			if e.Kind == acquire.Failed {
				dialog.ShowError(e.Err, state.window)
			}
		})
	}
}

func statusText(e acquire.Event) string {
	switch e.Kind {
	case acquire.Completed:
		return "Completed"
	case acquire.Stopped:
		return "Stopped"
	case acquire.Failed:
		return "Failed: " + e.Err.Error()
	}
	return e.Kind.String()
}

func updateValues(state *appState, snap monitor.Snapshot) {
	state.aLabel.SetText(formatValue(snap.A))
	state.bLabel.SetText(formatValue(snap.B))
	state.qaLabel.SetText(formatValue(snap.QA))
	state.qbLabel.SetText(formatValue(snap.QB))
	state.avgLabel.SetText(formatValue(snap.Avg))

	state.linesLabel.SetText(strings.Join(snap.Lines, "\n"))
	state.scopeWidget.UpdateData(snap)
}

// shutdown runs when the window closes.
func shutdown(state *appState) {
	close(state.closing)
	if state.device != nil {
		disconnect(state)
	} else {
		state.worker.Stop()
		state.worker.Wait()
	}
	if err := state.rec.Stop(); err != nil {
		log.Printf("Failed to close recording: %v", err)
	}
}

// newValidatedEntry returns an entry that flags invalid text as it is typed.
func newValidatedEntry(text string, validator fyne.StringValidator) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	e.Validator = validator
	return e
}

var (
	tsetValidator        = fyne.StringValidator(param.Partial(param.Tset))
	periodsValidator     = fyne.StringValidator(param.Partial(param.Periods))
	experimentsValidator = fyne.StringValidator(param.Partial(param.Experiments))
)

func formatTset(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func itoa(v int) string { return strconv.Itoa(v) }

func formatValue(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
