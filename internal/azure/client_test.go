package azure_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/tts-pad/internal/azure"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test constants.
const (
	testKey    = "test-key"
	testRegion = "westeurope"
	testSSML   = "<speak version='1.0'>hello</speak>"
	testAudio  = "ID3-not-really-mp3"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *azure.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := azure.NewClient(
		core.Credentials{Key: testKey, Region: testRegion},
		azure.Options{BaseURL: server.URL, Timeout: 5 * time.Second},
	)
	require.NoError(t, err)

	return client
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := azure.NewClient(core.Credentials{Region: testRegion}, azure.Options{})
	require.ErrorIs(t, err, azure.ErrMissingKey)

	_, err = azure.NewClient(core.Credentials{Key: testKey, Region: "  "}, azure.Options{})
	require.ErrorIs(t, err, azure.ErrMissingRegion)

	client, err := azure.NewClient(core.Credentials{Key: testKey, Region: testRegion}, azure.Options{})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestSpeakSSML_Completed(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/cognitiveservices/v1", request.URL.Path)
		assert.Equal(t, testKey, request.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/ssml+xml", request.Header.Get("Content-Type"))
		assert.Equal(t, azure.DefaultOutputFormat, request.Header.Get("X-Microsoft-OutputFormat"))

		body, err := io.ReadAll(request.Body)
		assert.NoError(t, err)
		assert.Equal(t, testSSML, string(body))

		writer.Header().Set("Content-Type", "audio/mpeg")
		_, _ = writer.Write([]byte(testAudio))
	})

	result, err := client.SpeakSSML(context.Background(), testSSML)
	require.NoError(t, err)

	assert.Equal(t, core.ReasonCompleted, result.Reason)
	assert.Equal(t, []byte(testAudio), result.Audio)
	// The payload is not decodable, so no duration is reported.
	assert.Zero(t, result.AudioDuration)
}

func TestSpeakSSML_StatusBecomesCanceled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantContain string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "", wantContain: "401 Unauthorized"},
		{name: "forbidden", status: http.StatusForbidden, body: "quota", wantContain: "403 Forbidden: quota"},
		{name: "bad request", status: http.StatusBadRequest, body: "bad ssml", wantContain: "bad ssml"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			})

			result, err := client.SpeakSSML(context.Background(), testSSML)
			require.NoError(t, err)

			assert.Equal(t, core.ReasonCanceled, result.Reason)
			assert.Equal(t, testCase.status, result.ErrorCode)
			assert.Contains(t, result.ErrorDetails, testCase.wantContain)
		})
	}
}

func TestSpeakSSML_UnreachableIsConnectionCancel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := azure.NewClient(
		core.Credentials{Key: testKey, Region: testRegion},
		azure.Options{BaseURL: url, Timeout: time.Second},
	)
	require.NoError(t, err)

	result, err := client.SpeakSSML(context.Background(), testSSML)
	require.NoError(t, err)

	assert.Equal(t, core.ReasonCanceled, result.Reason)
	assert.Contains(t, result.ErrorDetails, "Connection failed")
}

func TestSpeakSSML_TransportErrors(t *testing.T) {
	t.Parallel()

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "text/html")
			_, _ = writer.Write([]byte("<html></html>"))
		})

		_, err := client.SpeakSSML(context.Background(), testSSML)
		require.ErrorIs(t, err, azure.ErrUnexpectedAudio)
	})

	t.Run("empty audio", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "audio/mpeg")
		})

		_, err := client.SpeakSSML(context.Background(), testSSML)
		require.ErrorIs(t, err, azure.ErrEmptyAudio)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
			t.Error("no request expected")
		})

		_, err := client.SpeakSSML(context.Background(), " ")
		require.ErrorIs(t, err, azure.ErrSSMLEmpty)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "audio/mpeg")
			_, _ = writer.Write([]byte(testAudio))
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.SpeakSSML(ctx, testSSML)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/cognitiveservices/voices/list", request.URL.Path)
		assert.Equal(t, testKey, request.Header.Get("Ocp-Apim-Subscription-Key"))

		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`[
			{"ShortName":"de-DE-ChristophNeural","DisplayName":"Christoph","LocalName":"Christoph","Locale":"de-DE"},
			{"ShortName":"cs-CZ-AntoninNeural","DisplayName":"Antonin","LocalName":"Antonín","Locale":"cs-CZ"}
		]`))
	})

	voices, err := client.ListVoices(context.Background())
	require.NoError(t, err)

	require.Len(t, voices, 2)
	assert.Equal(t, core.Voice{ID: "de-DE-ChristophNeural", Name: "Christoph", Lang: "de-DE"}, voices[0])
	assert.Equal(t, "Antonin (Antonín)", voices[1].Name)

	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestHealthCheck_Unauthorized(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	})

	err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSessionFactory(t *testing.T) {
	t.Parallel()

	factory := azure.NewSessionFactory(azure.Options{})

	_, err := factory(core.Credentials{})
	require.Error(t, err)

	session, err := factory(core.Credentials{Key: testKey, Region: testRegion})
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestMP3Duration_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := azure.MP3Duration([]byte("definitely not an mp3 stream"))
	require.Error(t, err)
}
