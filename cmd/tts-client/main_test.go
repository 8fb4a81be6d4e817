package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveText(t *testing.T) {
	t.Parallel()

	textFile := filepath.Join(t.TempDir(), "chapter.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("  Dobrý den\n"), 0o600))

	tests := []struct {
		wantErr error
		name    string
		want    string
		flags   speakFlags
	}{
		{name: "text flag", flags: speakFlags{text: " Hello, world! "}, want: "Hello, world!"},
		{name: "file flag", flags: speakFlags{file: textFile}, want: "Dobrý den"},
		{name: "neither", flags: speakFlags{}, wantErr: ErrTextRequired},
		{name: "whitespace only", flags: speakFlags{text: " \n\t"}, wantErr: ErrTextEmpty},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveText(testCase.flags)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestResolveText_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := resolveText(speakFlags{file: filepath.Join(t.TempDir(), "missing.txt")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveOutput(t *testing.T) {
	t.Parallel()

	got, err := resolveOutput("clips/hello.MP3", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "clips/hello.MP3", got)

	for _, output := range []string{"hello.wav", "hello.txt", "hello"} {
		_, err = resolveOutput(output, "ignored")
		require.ErrorIs(t, err, ErrOutputNotAudio, output)
	}

	got, err = resolveOutput("", "Hello: world / again")
	require.NoError(t, err)
	assert.Equal(t, "Hello__world___again.mp3", got)
}

func TestDefaultOutputFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "speech.mp3", defaultOutputFor("???"))
	assert.Equal(t, "Příliš_žluťoučký_kůň.mp3", defaultOutputFor("Příliš žluťoučký kůň"))

	long := defaultOutputFor("one two three four five six seven eight nine ten")
	assert.Equal(t, "one_two_three_four_five_six_seve.mp3", long)
}

func TestValidateRate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateRate("default"))
	require.NoError(t, validateRate("+25%"))
	require.ErrorIs(t, validateRate("fast"), ErrUnknownRate)
}

func TestBuildActionEvent(t *testing.T) {
	t.Parallel()

	event, err := buildActionEvent(actionFlags{name: "speak-selection", slot: 2, start: 1, end: 5})
	require.NoError(t, err)
	assert.Equal(t, core.ActionSpeakSelection, event.Action)
	assert.Equal(t, 2, event.Slot)
	assert.Equal(t, 1, event.Start)
	assert.Equal(t, 5, event.End)
	assert.NotEmpty(t, event.Header.WorkflowID)
	assert.NotEmpty(t, event.Header.EventID)

	_, err = buildActionEvent(actionFlags{name: "save-config"})
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = buildActionEvent(actionFlags{name: "speak-all", slot: 3})
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSpeakCommand_ArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		args    []string
	}{
		{name: "no text", args: []string{"speak"}, wantErr: ErrTextRequired},
		{name: "bad output", args: []string{"speak", "--text", "hi", "--output", "hi.wav"}, wantErr: ErrOutputNotAudio},
		{name: "bad rate", args: []string{"speak", "--text", "hi", "--rate", "fast"}, wantErr: ErrUnknownRate},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cmd := newRootCmd()
			cmd.SetArgs(testCase.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			require.ErrorIs(t, cmd.Execute(), testCase.wantErr)
		})
	}
}

func TestSpeakCommand_TextAndFileAreExclusive(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"speak", "--text", "hi", "--file", "hi.txt"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestActionCommand_SendsEventAndPrintsReply(t *testing.T) {
	t.Parallel()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	responder, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(responder.Close)

	received := make(chan worker.ActionEvent, 1)

	_, err = responder.Subscribe("test.actions", func(msg *nats.Msg) {
		var event worker.ActionEvent
		if json.Unmarshal(msg.Data, &event) == nil {
			received <- event
		}

		reply, _ := json.Marshal(worker.ActionReply{Outcome: core.OutcomeCompleted, Message: "Playing (80 ms)"})
		_ = msg.Respond(reply)
	})
	require.NoError(t, err)
	require.NoError(t, responder.Flush())

	var stdout bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"action", "--nats", server.ClientURL(), "--subject", "test.actions",
		"--name", "speak-all", "--slot", "1", "--timeout", "2s",
	})
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "completed: Playing (80 ms)\n", stdout.String())

	select {
	case event := <-received:
		assert.Equal(t, core.ActionSpeakAll, event.Action)
		assert.Equal(t, 1, event.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("action event was not received")
	}
}
