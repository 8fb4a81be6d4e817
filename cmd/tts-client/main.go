// main package for tts-client, the command-line companion of tts-pad.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/azure"
	"github.com/book-expert/tts-pad/internal/controller"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/playback/speaker"
	"github.com/book-expert/tts-pad/internal/settings"
	"github.com/book-expert/tts-pad/internal/ssml"
	"github.com/book-expert/tts-pad/internal/ttsutils"
	"github.com/book-expert/tts-pad/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagText    = "text"
	flagFile    = "file"
	flagOutput  = "output"
	flagVoice   = "voice"
	flagRate    = "rate"
	flagPlay    = "play"
	flagKey     = "key"
	flagRegion  = "region"
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagTimeout = "timeout"
	flagNATS    = "nats"
	flagSubject = "subject"
	flagName    = "name"
	flagSlot    = "slot"
	flagStart   = "start"
	flagEnd     = "end"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagFileDesc    = "File containing the text to convert to speech"
	flagOutputDesc  = "Output file path (.mp3); derived from the text when empty"
	flagVoiceDesc   = "Voice identifier; the first configured voice when empty"
	flagRateDesc    = "Prosody rate token"
	flagPlayDesc    = "Play the clip on the default audio output after writing it"
	flagKeyDesc     = "Azure subscription key; overrides the configuration"
	flagRegionDesc  = "Azure region; overrides the configuration"
	flagConfigDesc  = "Path to the bundled azureConfig (JSON or YAML)"
	flagEnvFileDesc = "Dotenv file read when no other credentials are found"
	flagTimeoutDesc = "Timeout for one request"
	flagNATSDesc    = "NATS server of a running tts-pad"
	flagSubjectDesc = "Subject tts-pad listens on for actions"
	flagNameDesc    = "Action to run: speak-all, speak-selection, repeat-last, close-modal"
	flagSlotDesc    = "Text slot (1 or 2); the active slot when 0"
	flagStartDesc   = "Selection start, in characters"
	flagEndDesc     = "Selection end, in characters"
)

// Error and log messages.
const (
	errFmtLoggerFailed     = "failed to initialize logger: %w"
	errFmtReadTextFile     = "failed to read text file: %w"
	errFmtWriteOutput      = "failed to write %s: %w"
	errFmtSynthesisCancel  = "synthesis canceled: %s"
	errFmtUnexpectedReason = "unexpected synthesis result: %s"
	errFmtConnectNATS      = "failed to connect to NATS at %s: %w"
	errFmtRequestFailed    = "action request failed: %w"
	errFmtDecodeReply      = "failed to decode reply: %w"
	errFmtEncodeEvent      = "failed to encode action: %w"

	logClientStarted    = "tts-client %s started"
	logFmtSynthesizing  = "Synthesizing %d chars with %s at rate %s"
	logFmtWroteClip     = "Wrote %s (%s, %s)"
	logFmtSendingAction = "Sending %s to %s on %s"
)

// Defaults.
const (
	defaultTimeout        = 30 * time.Second
	defaultSubject        = "ttspad.actions"
	defaultOutputName     = "speech"
	maxOutputNameRunes    = 32
	outputExtension       = ".mp3"
	logFileName           = "tts-client.log"
	logsSubdir            = "logs"
	defaultEnvFile        = ".env"
	healthyMessage        = "Azure speech service is healthy"
	voiceListLineFormat   = "%-36s %-8s %s\n"
	actionReplyLineFormat = "%s: %s\n"
)

// Validation errors.
var (
	ErrTextRequired      = errors.New("either --text or --file must be provided")
	ErrTextEmpty         = errors.New("text is empty")
	ErrOutputNotAudio    = errors.New("output must be an .mp3 file")
	ErrUnknownRate       = errors.New("unknown rate")
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidSlot       = errors.New("slot must be 0, 1 or 2")
	ErrMissingCredential = errors.New("azure key and region are required (flags, bundled config, environment or .env)")
)

type speakFlags struct {
	text   string
	file   string
	output string
	voice  string
	rate   string
	play   bool
}

type credentialFlags struct {
	key     string
	region  string
	config  string
	envFile string
	timeout time.Duration
}

type actionFlags struct {
	natsURL string
	subject string
	name    string
	slot    int
	start   int
	end     int
	timeout time.Duration
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tts-client",
		Short:         "Command-line companion of tts-pad",
		Long:          "tts-client synthesizes text with Azure speech, lists voices, checks credentials\nand sends actions to a running tts-pad over NATS.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newSpeakCmd(), newVoicesCmd(), newHealthCmd(), newActionCmd())

	return rootCmd
}

func addCredentialFlags(cmd *cobra.Command, creds *credentialFlags) {
	cmd.Flags().StringVar(&creds.key, flagKey, "", flagKeyDesc)
	cmd.Flags().StringVar(&creds.region, flagRegion, "", flagRegionDesc)
	cmd.Flags().StringVar(&creds.config, flagConfig, "", flagConfigDesc)
	cmd.Flags().StringVar(&creds.envFile, flagEnvFile, defaultEnvFile, flagEnvFileDesc)
	cmd.Flags().DurationVar(&creds.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
}

func newSpeakCmd() *cobra.Command {
	var (
		flags speakFlags
		creds credentialFlags
	)

	cmd := &cobra.Command{
		Use:   "speak",
		Short: "Synthesize text into an MP3 file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := resolveText(flags)
			if err != nil {
				return err
			}

			output, err := resolveOutput(flags.output, text)
			if err != nil {
				return err
			}

			err = validateRate(flags.rate)
			if err != nil {
				return err
			}

			return runSpeak(cmd, text, output, flags, creds)
		},
	}

	cmd.Flags().StringVar(&flags.text, flagText, "", flagTextDesc)
	cmd.Flags().StringVar(&flags.file, flagFile, "", flagFileDesc)
	cmd.Flags().StringVarP(&flags.output, flagOutput, "o", "", flagOutputDesc)
	cmd.Flags().StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	cmd.Flags().StringVar(&flags.rate, flagRate, ssml.DefaultRate, flagRateDesc)
	cmd.Flags().BoolVar(&flags.play, flagPlay, false, flagPlayDesc)
	cmd.MarkFlagsMutuallyExclusive(flagText, flagFile)
	addCredentialFlags(cmd, &creds)

	return cmd
}

func newVoicesCmd() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices available in the configured region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			client, _, err := newAzureClient(log, creds)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), creds.timeout)
			defer cancel()

			voices, err := client.ListVoices(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, voice := range voices {
				fmt.Fprintf(out, voiceListLineFormat, voice.ID, voice.Lang, voice.Name)
			}

			return nil
		},
	}

	addCredentialFlags(cmd, &creds)

	return cmd
}

func newHealthCmd() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the Azure credentials are accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			client, _, err := newAzureClient(log, creds)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), creds.timeout)
			defer cancel()

			err = client.HealthCheck(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), healthyMessage)

			return nil
		},
	}

	addCredentialFlags(cmd, &creds)

	return cmd
}

func newActionCmd() *cobra.Command {
	var flags actionFlags

	cmd := &cobra.Command{
		Use:   "action",
		Short: "Run an action on a running tts-pad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := buildActionEvent(flags)
			if err != nil {
				return err
			}

			return runAction(cmd, flags, event)
		},
	}

	cmd.Flags().StringVar(&flags.natsURL, flagNATS, nats.DefaultURL, flagNATSDesc)
	cmd.Flags().StringVar(&flags.subject, flagSubject, defaultSubject, flagSubjectDesc)
	cmd.Flags().StringVar(&flags.name, flagName, "", flagNameDesc)
	cmd.Flags().IntVar(&flags.slot, flagSlot, 0, flagSlotDesc)
	cmd.Flags().IntVar(&flags.start, flagStart, 0, flagStartDesc)
	cmd.Flags().IntVar(&flags.end, flagEnd, 0, flagEndDesc)
	cmd.Flags().DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	_ = cmd.MarkFlagRequired(flagName)

	return cmd
}

func newLogger() (*logger.Logger, error) {
	logsDir := filepath.Join(ttsutils.GetDataDir(), logsSubdir)

	err := ttsutils.EnsureDir(logsDir)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoggerFailed, err)
	}

	log, err := logger.New(logsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoggerFailed, err)
	}

	return log, nil
}

// resolveText returns the text from --text or --file.
func resolveText(flags speakFlags) (string, error) {
	text := flags.text

	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return "", fmt.Errorf(errFmtReadTextFile, err)
		}

		text = string(data)
	} else if flags.text == "" {
		return "", ErrTextRequired
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrTextEmpty
	}

	return text, nil
}

// resolveOutput validates the output path, deriving one from the text when empty.
func resolveOutput(output, text string) (string, error) {
	if output == "" {
		return defaultOutputFor(text), nil
	}

	if !ttsutils.IsValidAudioFile(output) || !strings.EqualFold(filepath.Ext(output), outputExtension) {
		return "", fmt.Errorf("%w: %s", ErrOutputNotAudio, output)
	}

	return output, nil
}

func defaultOutputFor(text string) string {
	name := strings.Join(strings.Fields(text), "_")
	if utf8.RuneCountInString(name) > maxOutputNameRunes {
		name = string([]rune(name)[:maxOutputNameRunes])
	}

	name = strings.Trim(ttsutils.SanitizeFilename(name), "._")
	if name == "" {
		name = defaultOutputName
	}

	return name + outputExtension
}

func validateRate(rate string) error {
	if !slices.Contains(controller.Rates, rate) {
		return fmt.Errorf("%w %q (one of %s)", ErrUnknownRate, rate, strings.Join(controller.Rates, ", "))
	}

	return nil
}

// newAzureClient resolves the credentials the way tts-pad does, with the flags taking precedence.
func newAzureClient(log *logger.Logger, creds credentialFlags) (*azure.Client, core.Settings, error) {
	bundledPath, err := ttsutils.FindBundledConfig(creds.config, ttsutils.GetDataDir())
	if err != nil {
		log.Info("No bundled configuration: %v", err)

		bundledPath = ""
	}

	loaded := settings.NewLoader(settings.Options{
		Log:         log,
		BundledPath: bundledPath,
		EnvFile:     creds.envFile,
	}).Load(context.Background()).Settings

	if creds.key != "" {
		loaded.AzureKey = creds.key
	}

	if creds.region != "" {
		loaded.AzureRegion = creds.region
	}

	if !loaded.Credentials().Complete() {
		return nil, loaded, ErrMissingCredential
	}

	client, err := azure.NewClient(loaded.Credentials(), azure.Options{Timeout: creds.timeout})
	if err != nil {
		return nil, loaded, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return client, loaded, nil
}

func runSpeak(cmd *cobra.Command, text, output string, flags speakFlags, creds credentialFlags) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	log.Info(logClientStarted, "speak")

	client, loaded, err := newAzureClient(log, creds)
	if err != nil {
		return err
	}

	voice := flags.voice
	if voice == "" {
		voice = settings.ResolveVoices(loaded)[0].ID
	}

	log.Info(logFmtSynthesizing, utf8.RuneCountInString(text), voice, flags.rate)

	ctx, cancel := context.WithTimeout(cmd.Context(), creds.timeout)
	defer cancel()

	result, err := client.SpeakSSML(ctx, ssml.Build(ssml.Document{Text: text, Voice: voice, Rate: flags.rate}))
	if err != nil {
		return fmt.Errorf("%s: %w", controller.MsgSynthesisFailed, err)
	}

	switch result.Reason {
	case core.ReasonCompleted:
	case core.ReasonCanceled:
		_, message := controller.ClassifyCancellation(result.ErrorDetails)

		return fmt.Errorf(errFmtSynthesisCancel, message)
	default:
		return fmt.Errorf(errFmtUnexpectedReason, result.Reason)
	}

	err = os.WriteFile(output, result.Audio, 0o600)
	if err != nil {
		return fmt.Errorf(errFmtWriteOutput, output, err)
	}

	summary := fmt.Sprintf(logFmtWroteClip, output,
		ttsutils.FormatFileSize(int64(len(result.Audio))),
		ttsutils.FormatDuration(result.AudioDuration.Seconds()))
	log.Info("%s", summary)
	fmt.Fprintln(cmd.OutOrStdout(), summary)

	if !flags.play {
		return nil
	}

	sink, err := speaker.New(log)
	if err != nil {
		return err
	}

	defer func() {
		_ = sink.Close()
	}()

	return sink.Deliver(cmd.Context(), result.Audio)
}

// buildActionEvent validates the flags and builds the request event.
func buildActionEvent(flags actionFlags) (*worker.ActionEvent, error) {
	action := core.Action(flags.name)

	switch action {
	case core.ActionSpeakAll, core.ActionSpeakSelection, core.ActionRepeatLast, core.ActionCloseModal:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, flags.name)
	}

	if flags.slot < 0 || flags.slot > int(core.Slot2) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, flags.slot)
	}

	return &worker.ActionEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Action: action,
		Slot:   flags.slot,
		Start:  flags.start,
		End:    flags.end,
	}, nil
}

func runAction(cmd *cobra.Command, flags actionFlags, event *worker.ActionEvent) error {
	natsConnection, err := nats.Connect(flags.natsURL, nats.Name("tts-client"))
	if err != nil {
		return fmt.Errorf(errFmtConnectNATS, flags.natsURL, err)
	}
	defer natsConnection.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf(errFmtEncodeEvent, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), logFmtSendingAction+"\n", event.Action, flags.subject, flags.natsURL)

	msg, err := natsConnection.Request(flags.subject, data, flags.timeout)
	if err != nil {
		return fmt.Errorf(errFmtRequestFailed, err)
	}

	var reply worker.ActionReply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return fmt.Errorf(errFmtDecodeReply, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), actionReplyLineFormat, reply.Outcome, reply.Message)

	return nil
}
