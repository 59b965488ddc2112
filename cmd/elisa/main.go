package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"elisa/internal/audio"
	"elisa/internal/bus"
	"elisa/internal/command"
	"elisa/internal/config"
	"elisa/internal/conversation"
	"elisa/internal/ipc"
	"elisa/internal/llm"
	"elisa/internal/notify"
	"elisa/internal/proxy"
	"elisa/internal/session"
	"elisa/internal/tts"
	"elisa/internal/ui"
	"elisa/pkg/stt"
)

const greeting = "¡Hola! Soy %s, tu asistente virtual. ¿Cómo te llamas?"

func main() {
	cfg, logFile, err := config.Boot(os.Args[1:], os.Stdout)
	if err != nil {
		if logFile != nil {
			// already logged
			logFile.Close()
		} else {
			fmt.Fprintln(os.Stderr, "elisa:", err)
		}
		os.Exit(1)
	}
	defer logFile.Close()

	log.Info("Booting up", "dir", cfg.Dir)

	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(cfg.Whisper.ModelPath)
	if err != nil {
		log.Error("Failed to init whisper", "model", cfg.Whisper.ModelPath, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	httpClient, err := proxy.NewClient(cfg.Proxy, 2*cfg.LLM.Timeout)
	if err != nil {
		log.Error("Failed to set up proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	completer := llm.NewOpenAICompleter(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, httpClient)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := completer.Ping(pingCtx); err != nil {
		log.Warn("Language model not reachable", "url", cfg.LLM.BaseURL, "err", err)
	}
	cancel()

	player := audio.NewPlayer()

	transcriber := stt.NewFileTranscriber(whisper, stt.Options{
		Language:    cfg.Whisper.Language,
		Threads:     cfg.Whisper.Threads,
		BeamSize:    cfg.Whisper.BeamSize,
		Temperature: cfg.Whisper.Temperature,
	}, stt.NewCleaner(cfg.Whisper.Denylist))

	capture := audio.NewCapture(rec, notify.NewChime(cfg.Capture.CuePath, player), audio.CaptureConfig{
		Path:       cfg.Capture.Path,
		Duration:   cfg.Capture.Duration,
		SampleRate: cfg.Capture.SampleRate,
	})

	responder := llm.NewResponder(completer, llm.ResponderConfig{
		AssistantName: cfg.AssistantName,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout,
	})

	var synth tts.Synthesizer = tts.NewGoogle(cfg.TTS.Language, httpClient)
	if cfg.TTS.Engine == "espeak" {
		synth = tts.NewEspeak(cfg.TTS.Language)
	}

	var ducker tts.Ducker
	if cfg.TTS.Duck {
		ducker = audio.NewDucker([]string{"elisa", "ELISA"}, 5)
	}

	speaker := tts.NewSpeaker(synth, player, ducker, tts.SpeakerConfig{
		Dir:        cfg.TempDir,
		Grace:      cfg.TTS.Grace,
		DuckFactor: cfg.TTS.DuckFactor,
	})

	views := ui.Multi{ui.NewConsole(cfg.AssistantName, nil)}

	var bridge *bus.Bridge
	if cfg.BusURL != "" {
		bridge, err = bus.Dial(ctx, bus.Config{
			URL:           cfg.BusURL,
			AssistantName: cfg.AssistantName,
			Reconnect:     2 * time.Second,
		})
		if err != nil {
			log.Warn("UI bus unavailable", "url", cfg.BusURL, "err", err)
		} else {
			defer bridge.Close()
			views = append(views, bridge)
		}
	}

	ctrl := session.New(session.Deps{
		Recorder:    capture,
		Transcriber: transcriber,
		Responder:   responder,
		Speaker:     speaker,
		Dispatcher:  command.NewDispatcher(command.DefaultTable(runtime.GOOS), command.SystemRunner{}),
		Log:         conversation.NewLog(cfg.TranscriptPath, cfg.AssistantName),
		View:        views,
	}, session.Config{
		Greeting: fmt.Sprintf(greeting, cfg.AssistantName),
	})

	srv, err := ipc.StartServer(cfg.Socket, func(msg ipc.ControlMessage) error {
		return handleControl(ctrl, msg)
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	if bridge != nil {
		go func() {
			if err := bridge.Serve(ctx, ctrl); err != nil {
				log.Warn("UI bus closed", "err", err)
			}
		}()
	}

	if cfg.Stdin {
		go readStdin(ctx, ctrl)
	}

	log.Info("Boot up - successful")

	if err := ctrl.Run(ctx); err != nil {
		log.Error("Session stopped", "err", err)
	}

	log.Info("Shutting down")
}

var errBusy = errors.New("busy")

func handleControl(ctrl *session.Controller, msg ipc.ControlMessage) error {
	switch msg.Cmd {
	case ipc.CmdRecord:
		if !ctrl.RequestRecording() {
			return errBusy
		}
	case ipc.CmdText:
		if !ctrl.SubmitText(msg.Arg) {
			return errors.New("empty text")
		}
	case ipc.CmdFile:
		if !ctrl.SubmitFile(msg.Arg) {
			return errBusy
		}
	case ipc.CmdClear:
		ctrl.Clear()
	case ipc.CmdCancel:
		ctrl.Cancel()
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return fmt.Errorf("unknown command %q", msg.Cmd)
	}
	return nil
}

// readStdin submits every typed line. An empty line starts a recording.
func readStdin(ctx context.Context, ctrl *session.Controller) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !ctrl.SubmitText(sc.Text()) {
			ctrl.RequestRecording()
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("Stdin closed", "err", err)
	}
}
