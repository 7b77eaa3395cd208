package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/config"
	"lingua-practice-service/internal/evaluation"
	"lingua-practice-service/internal/infra/memory"
	"lingua-practice-service/internal/media"
	"lingua-practice-service/internal/session"
)

// NewPracticeCmd runs a speaking practice session against the local
// microphone, for trying out lessons without the server.
func NewPracticeCmd(configPath *string) *cobra.Command {
	var lessonID string
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a practice session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPractice(cmd.Context(), *configPath, lessonID)
		},
	}
	cmd.Flags().StringVar(&lessonID, "lesson", "speak-intro", "lesson to practice")
	return cmd
}

func runPractice(ctx context.Context, configPath, lessonID string) error {
	mediaDir := ""
	if cfg, err := config.Load(configPath); err == nil {
		mediaDir = cfg.Media.Dir
	}
	logger := newLogger("warn")

	lessons := memory.NewLessonRepository(memory.NewStaticLessonLoader(sampleLessons()), time.Minute)
	broker := media.NewBroker(
		func() media.CaptureDevice { return media.NewMicrophoneCapture(mediaDir) },
		func() media.PlaybackController { return media.NewTimedPlayback(media.PCMFileDuration) },
		logger,
	)
	service := app.NewPracticeService(lessons, memory.NewSubmissionRepository(), evaluation.New(), broker, logger)

	ctrl, err := service.OpenSession(ctx, "local", lessonID)
	if ctrl == nil {
		return err
	}
	if err != nil {
		fmt.Printf("device not ready: %v\n", err)
	}
	defer service.CloseSession("local")

	events, cancel := ctrl.Subscribe()
	defer cancel()
	go func() {
		for ev := range events {
			switch ev.Type {
			case session.EventTick:
				fmt.Printf("\r%ds remaining ", int(ev.Remaining.Seconds()))
			case session.EventState:
				fmt.Printf("\n[%s]\n", ev.State)
			case session.EventAttempt:
				fmt.Printf("\nrecorded %ds -> %s\n", ev.Attempt.RecordingDurationSeconds, ev.Attempt.RecordingRef)
			}
		}
	}()

	fmt.Println("commands: skip, stop, retry, submit, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch scanner.Text() {
		case "skip":
			if err := ctrl.SkipPreparation(ctx); err != nil {
				fmt.Println(err)
			}
		case "stop":
			if err := ctrl.StopCapture(ctx); err != nil {
				fmt.Println(err)
			}
		case "retry":
			if err := ctrl.Retry(ctx); err != nil {
				fmt.Println(err)
			}
		case "submit":
			sub, err := service.Submit(ctx, "local")
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("submitted %s\n", sub.ID)
			return nil
		case "quit":
			return nil
		}
	}
	return scanner.Err()
}
